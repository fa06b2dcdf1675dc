package entity

import "github.com/google/uuid"

// Task names carried in the queue message type.
const (
	TaskSummarizeTextPrompt = "summarize.text_prompt"
	TaskSummarizeCategory   = "summarize.category"
	TaskSummarizeTimeRange  = "summarize.time_range"
)

func TaskFor(t RequestType) string {
	switch t {
	case RequestTypeCategory:
		return TaskSummarizeCategory
	case RequestTypeTimeRange:
		return TaskSummarizeTimeRange
	default:
		return TaskSummarizeTextPrompt
	}
}

// SummarizationMessage is the task payload. The request itself lives on the job row.
type SummarizationMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email,omitempty"`
}

// JobStatusMessage is published on every terminal transition.
type JobStatusMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	VideoID         string    `json:"video_id"`
	Status          JobStatus `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	StoragePath     string    `json:"storage_path,omitempty"`
	FileSize        int64     `json:"file_size,omitempty"`
	DurationSeconds int       `json:"summary_duration_seconds,omitempty"`
	SceneCount      int       `json:"scene_count,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
}

func NewJobStatusMessage(job *Job) JobStatusMessage {
	return JobStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		VideoID:         job.VideoID,
		Status:          job.Status,
		ProgressPercent: job.ProgressPercent,
		StoragePath:     job.StoragePath,
		FileSize:        job.FileSize,
		DurationSeconds: job.SummaryDurationSeconds,
		SceneCount:      len(job.SelectedScenes),
		ErrorMessage:    job.ErrorMessage,
		Attempt:         job.Attempt,
		MaxAttempts:     job.MaxAttempts,
	}
}
