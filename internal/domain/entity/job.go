package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type RequestType string

const (
	RequestTypeTextPrompt RequestType = "text-prompt"
	RequestTypeCategory   RequestType = "category"
	RequestTypeTimeRange  RequestType = "time-range"
)

// RequestData is the type-specific payload. Exactly one field is set, matching the job's RequestType.
type RequestData struct {
	Prompt     string      `json:"prompt,omitempty"`
	Category   string      `json:"category,omitempty"`
	TimeRanges []TimeRange `json:"time_ranges,omitempty"`
}

const DefaultOutputFormat = "mp4"

type Job struct {
	ID                     uuid.UUID
	VideoID                string
	UserID                 string
	VideoKey               string
	Title                  string
	RequestType            RequestType
	RequestData            RequestData
	TargetDurationSeconds  float64
	SelectedScenes         []Scene
	SummaryDurationSeconds int
	OutputFormat           string
	StoragePath            string
	FileSize               int64
	Status                 JobStatus
	ProgressPercent        int
	ErrorMessage           string
	Attempt                int
	MaxAttempts            int
	CreatedAt              time.Time
	UpdatedAt              time.Time
	CompletedAt            *time.Time
}

func NewJob(videoID, userID, videoKey string, reqType RequestType, data RequestData, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		VideoID:      videoID,
		UserID:       userID,
		VideoKey:     videoKey,
		RequestType:  reqType,
		RequestData:  data,
		OutputFormat: DefaultOutputFormat,
		Status:       JobStatusProcessing,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Output is everything a completed job records about its summary.
type Output struct {
	StoragePath     string
	FileSize        int64
	DurationSeconds int
	Scenes          []Scene
}

func (o Output) validate() error {
	if o.StoragePath == "" {
		return fmt.Errorf("%w: empty storage path", ErrInvalidRequest)
	}
	if o.FileSize <= 0 {
		return fmt.Errorf("%w: empty output file", ErrInvalidRequest)
	}
	if len(o.Scenes) == 0 {
		return fmt.Errorf("%w: no scenes in output", ErrInvalidRequest)
	}
	return ValidateSceneOrder(o.Scenes)
}

// BeginAttempt records one more delivery of this job's task.
func (j *Job) BeginAttempt() {
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.MaxAttempts <= 0 || j.Attempt <= j.MaxAttempts
}

func (j *Job) Advance(percent int) error {
	if j.Status.Terminal() {
		return ErrJobTerminal
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("progress %d out of range", percent)
	}
	if percent < j.ProgressPercent {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, j.ProgressPercent, percent)
	}
	j.ProgressPercent = percent
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete is a no-op on an already completed job and rejected on a failed one.
func (j *Job) Complete(out Output) error {
	switch j.Status {
	case JobStatusCompleted:
		return nil
	case JobStatusFailed:
		return ErrJobTerminal
	}
	if err := out.validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ProgressPercent = 100
	j.StoragePath = out.StoragePath
	j.FileSize = out.FileSize
	j.SummaryDurationSeconds = out.DurationSeconds
	j.SelectedScenes = append([]Scene(nil), out.Scenes...)
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// Fail is a no-op on an already failed job and rejected on a completed one. Progress is left as is.
func (j *Job) Fail(message string) error {
	switch j.Status {
	case JobStatusFailed:
		return nil
	case JobStatusCompleted:
		return ErrJobTerminal
	}
	if message == "" {
		message = "unknown error"
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Validate checks a record read back from the store before it enters the pipeline.
func (j *Job) Validate() error {
	switch j.Status {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
	default:
		return fmt.Errorf("unknown job status %q", j.Status)
	}
	if j.ProgressPercent < 0 || j.ProgressPercent > 100 {
		return fmt.Errorf("progress %d out of range", j.ProgressPercent)
	}
	if j.Status == JobStatusCompleted && j.ProgressPercent != 100 {
		return fmt.Errorf("completed job at %d%%", j.ProgressPercent)
	}
	if err := ValidateSceneOrder(j.SelectedScenes); err != nil {
		return err
	}
	return ValidateRequest(j.RequestType, j.RequestData, nil)
}
