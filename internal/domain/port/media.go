package port

import (
	"context"
	"image"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

type VideoProber interface {
	Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error)
}

type FrameGrabber interface {
	FrameAt(ctx context.Context, videoPath string, t float64) (image.Image, error)
}

type VideoComposer interface {
	Compose(ctx context.Context, sourcePath string, scenes []entity.Scene, outputPath string) error
}

type Embedder interface {
	EmbedFrames(ctx context.Context, frames []entity.FrameSample) ([]entity.FrameEmbedding, error)
	EmbedText(ctx context.Context, text string) (entity.Embedding, error)
}

// MediaTool is everything the pipeline needs from the video toolchain.
type MediaTool interface {
	VideoProber
	FrameGrabber
	VideoComposer
}
