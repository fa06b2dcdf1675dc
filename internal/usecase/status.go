package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"go.uber.org/zap"
)

func publishStatus(ctx context.Context, publisher port.StatusPublisher, job *entity.Job, log *zap.Logger) {
	if publisher == nil {
		return
	}
	data, _ := json.Marshal(entity.NewJobStatusMessage(job))
	if err := publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// SummaryKey is the object key of a job's composed summary.
func SummaryKey(jobID uuid.UUID) string {
	return fmt.Sprintf("summaries/%s.mp4", jobID)
}
