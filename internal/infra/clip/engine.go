package clip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"go.uber.org/zap"
)

type ModelConfig struct {
	LibraryPath string
	VisualPath  string
	TextualPath string
	VocabPath   string
	ImageInput  string
	ImageOutput string
	TextOutput  string
	BatchSize   int
}

// Engine embeds frames and text into CLIP's shared space. Outputs are unit length.
type Engine struct {
	model     Model
	tokenizer *Tokenizer
	batchSize int
}

func NewEngine(model Model, tokenizer *Tokenizer, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Engine{model: model, tokenizer: tokenizer, batchSize: batchSize}
}

// Load builds an engine from ONNX models on disk.
func Load(cfg ModelConfig, logger *zap.Logger) (*Engine, error) {
	start := time.Now()
	tok, err := LoadTokenizer(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	model, err := newONNXModel(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("clip model loaded",
		zap.String("visual", cfg.VisualPath),
		zap.String("textual", cfg.TextualPath),
		zap.Duration("elapsed", time.Since(start)),
	)
	return NewEngine(model, tok, cfg.BatchSize), nil
}

// EmbedFrames keeps input order in its output.
func (e *Engine) EmbedFrames(ctx context.Context, frames []entity.FrameSample) ([]entity.FrameEmbedding, error) {
	out := make([]entity.FrameEmbedding, 0, len(frames))
	plane := 3 * ImageSize * ImageSize

	for start := 0; start < len(frames); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(frames))
		batch := frames[start:end]

		pixels := make([]float32, len(batch)*plane)
		for i, f := range batch {
			if err := pixelValues(f.Raster, pixels[i*plane:(i+1)*plane]); err != nil {
				return nil, fmt.Errorf("frame at %.3fs: %w", f.Timestamp, err)
			}
		}

		vectors, err := e.model.EncodeImages(pixels, len(batch))
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("model returned %d embeddings for %d frames", len(vectors), len(batch))
		}
		for i, v := range vectors {
			unit, ok := entity.Embedding(v).Normalize()
			if !ok {
				return nil, fmt.Errorf("frame at %.3fs: model returned a zero embedding", batch[i].Timestamp)
			}
			out = append(out, entity.FrameEmbedding{Timestamp: batch[i].Timestamp, Vector: unit})
		}
	}
	return out, nil
}

func (e *Engine) EmbedText(ctx context.Context, text string) (entity.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask := e.tokenizer.Tokenize(text)
	v, err := e.model.EncodeText(ids, mask)
	if err != nil {
		return nil, err
	}
	unit, ok := entity.Embedding(v).Normalize()
	if !ok {
		return nil, fmt.Errorf("model returned a zero embedding for %q", text)
	}
	return unit, nil
}

func (e *Engine) Close() error {
	return e.model.Close()
}

// Handle loads an engine at most once.
type Handle struct {
	once   sync.Once
	engine *Engine
	err    error
}

func (h *Handle) Get(load func() (*Engine, error)) (*Engine, error) {
	h.once.Do(func() {
		h.engine, h.err = load()
	})
	return h.engine, h.err
}

var shared Handle

// Shared returns the process-wide engine, loading it on first call.
func Shared(cfg ModelConfig, logger *zap.Logger) (*Engine, error) {
	return shared.Get(func() (*Engine, error) {
		return Load(cfg, logger)
	})
}
