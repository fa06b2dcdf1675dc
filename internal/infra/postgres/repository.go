package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `
	id, video_id, user_id, video_key, title, request_type, request_data,
	target_duration_seconds, selected_scenes, summary_duration_seconds,
	output_format, storage_path, file_size, status, progress_percent,
	error_message, attempt, max_attempts, created_at, updated_at, completed_at`

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	reqData, scenes, err := encodeJSON(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO summarization_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

	_, err = r.pool.Exec(ctx, query,
		job.ID, job.VideoID, job.UserID, job.VideoKey, job.Title, string(job.RequestType), reqData,
		job.TargetDurationSeconds, scenes, job.SummaryDurationSeconds,
		job.OutputFormat, job.StoragePath, job.FileSize, string(job.Status), job.ProgressPercent,
		job.ErrorMessage, job.Attempt, job.MaxAttempts, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update only touches rows still processing whose stored progress does not exceed the new value.
func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	_, scenes, err := encodeJSON(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE summarization_jobs SET
			selected_scenes=$3, summary_duration_seconds=$4, storage_path=$5, file_size=$6,
			status=$7, progress_percent=$8, error_message=$9, attempt=$10,
			updated_at=$11, completed_at=$12
		WHERE id=$1 AND user_id=$2 AND status='processing' AND progress_percent <= $8`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, scenes, job.SummaryDurationSeconds, job.StoragePath, job.FileSize,
		string(job.Status), job.ProgressPercent, job.ErrorMessage, job.Attempt,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainRejectedUpdate(ctx, job)
}

func (r *JobRepository) explainRejectedUpdate(ctx context.Context, job *entity.Job) error {
	var status string
	var progress int
	err := r.pool.QueryRow(ctx,
		`SELECT status, progress_percent FROM summarization_jobs WHERE id=$1 AND user_id=$2`,
		job.ID, job.UserID,
	).Scan(&status, &progress)
	if errors.Is(err, pgx.ErrNoRows) {
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
	query := `SELECT ` + jobColumns + ` FROM summarization_jobs WHERE id=$1 AND user_id=$2`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListByVideo(ctx context.Context, videoID, userID string) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM summarization_jobs
		WHERE video_id=$1 AND user_id=$2 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, videoID, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM summarization_jobs WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) FailStale(ctx context.Context, before time.Time, message string) ([]*entity.Job, error) {
	query := `
		UPDATE summarization_jobs SET status='failed', error_message=$2, updated_at=$3
		WHERE status='processing' AND updated_at < $1
		RETURNING ` + jobColumns
	rows, err := r.pool.Query(ctx, query, before, message, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*entity.Job, error) {
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

func scanJob(row pgx.Row) (*entity.Job, error) {
	job := &entity.Job{}
	var reqType, status string
	var reqData, scenes []byte
	err := row.Scan(
		&job.ID, &job.VideoID, &job.UserID, &job.VideoKey, &job.Title, &reqType, &reqData,
		&job.TargetDurationSeconds, &scenes, &job.SummaryDurationSeconds,
		&job.OutputFormat, &job.StoragePath, &job.FileSize, &status, &job.ProgressPercent,
		&job.ErrorMessage, &job.Attempt, &job.MaxAttempts, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.RequestType = entity.RequestType(reqType)
	job.Status = entity.JobStatus(status)
	if err := json.Unmarshal(reqData, &job.RequestData); err != nil {
		return nil, fmt.Errorf("decode request data: %w", err)
	}
	if err := json.Unmarshal(scenes, &job.SelectedScenes); err != nil {
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
