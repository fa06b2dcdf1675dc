package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

// JobRepository stores jobs in an embedded SQLite database for single-node deployments.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, video_id, user_id, video_key, title, request_type, request_data,
	target_duration_seconds, selected_scenes, summary_duration_seconds,
	output_format, storage_path, file_size, status, progress_percent,
	error_message, attempt, max_attempts, created_at, updated_at, completed_at`

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	reqData, scenes, err := encodeJSON(job)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO summarization_jobs (`+jobColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID.String(), job.VideoID, job.UserID, job.VideoKey, job.Title, string(job.RequestType), reqData,
		job.TargetDurationSeconds, scenes, job.SummaryDurationSeconds,
		job.OutputFormat, job.StoragePath, job.FileSize, string(job.Status), job.ProgressPercent,
		job.ErrorMessage, job.Attempt, job.MaxAttempts,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	_, scenes, err := encodeJSON(job)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE summarization_jobs SET
			selected_scenes=?, summary_duration_seconds=?, storage_path=?, file_size=?,
			status=?, progress_percent=?, error_message=?, attempt=?,
			updated_at=?, completed_at=?
		WHERE id=? AND user_id=? AND status='processing' AND progress_percent <= ?`,
		scenes, job.SummaryDurationSeconds, job.StoragePath, job.FileSize,
		string(job.Status), job.ProgressPercent, job.ErrorMessage, job.Attempt,
		formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt),
		job.ID.String(), job.UserID, job.ProgressPercent,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var status string
	var progress int
	err = r.db.QueryRowContext(ctx,
		`SELECT status, progress_percent FROM summarization_jobs WHERE id=? AND user_id=?`,
		job.ID.String(), job.UserID,
	).Scan(&status, &progress)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if entity.JobStatus(status).Terminal() {
		return entity.ErrJobTerminal
	}
	return fmt.Errorf("%w: stored %d, got %d", entity.ErrProgressRegression, progress, job.ProgressPercent)
}

func (r *JobRepository) FindForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM summarization_jobs WHERE id=? AND user_id=?`, id.String(), userID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListByVideo(ctx context.Context, videoID, userID string) ([]*entity.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM summarization_jobs
		WHERE video_id=? AND user_id=? ORDER BY created_at DESC`, videoID, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM summarization_jobs WHERE id=? AND user_id=?`, id.String(), userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) FailStale(ctx context.Context, before time.Time, message string) ([]*entity.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE summarization_jobs SET status='failed', error_message=?, updated_at=?
		WHERE status='processing' AND updated_at < ?
		RETURNING `+jobColumns,
		message, formatTime(time.Now()), formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*entity.Job, error) {
	defer rows.Close()
	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*entity.Job, error) {
	job := &entity.Job{}
	var (
		id, reqType, status, reqData, scenes string
		createdAt, updatedAt                 string
		completedAt                          sql.NullString
	)
	err := s.Scan(
		&id, &job.VideoID, &job.UserID, &job.VideoKey, &job.Title, &reqType, &reqData,
		&job.TargetDurationSeconds, &scenes, &job.SummaryDurationSeconds,
		&job.OutputFormat, &job.StoragePath, &job.FileSize, &status, &job.ProgressPercent,
		&job.ErrorMessage, &job.Attempt, &job.MaxAttempts, &createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.RequestType = entity.RequestType(reqType)
	job.Status = entity.JobStatus(status)
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		job.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(reqData), &job.RequestData); err != nil {
		return nil, fmt.Errorf("decode request data: %w", err)
	}
	if err := json.Unmarshal([]byte(scenes), &job.SelectedScenes); err != nil {
		return nil, fmt.Errorf("decode selected scenes: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	return job, nil
}

func encodeJSON(job *entity.Job) (string, string, error) {
	reqData, err := json.Marshal(job.RequestData)
	if err != nil {
		return "", "", fmt.Errorf("encode request data: %w", err)
	}
	scenes := job.SelectedScenes
	if scenes == nil {
		scenes = []entity.Scene{}
	}
	sceneData, err := json.Marshal(scenes)
	if err != nil {
		return "", "", fmt.Errorf("encode selected scenes: %w", err)
	}
	return string(reqData), string(sceneData), nil
}
