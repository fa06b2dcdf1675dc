package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/infra/metrics"
	"go.opentelemetry.io/otel"
)

const (
	StageDownload = "download"
	StageSample   = "sample"
	StageEmbed    = "embed"
	StageMatch    = "match"
	StageSelect   = "select"
	StageProbe    = "probe"
	StageCompose  = "compose"
	StageUpload   = "upload"
)

// StageError marks a failure that ends the job. Its message becomes the job's error message.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// runStage traces and times fn, wrapping any error as a StageError.
func runStage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return &StageError{Stage: name, Err: err}
	}
	return nil
}
