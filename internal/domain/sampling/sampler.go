package sampling

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"go.uber.org/zap"
)

var ErrNoFrames = errors.New("no frame could be decoded from video")

// MaxLeadingFailures bounds how many grabs fail in a row, before any frame decodes, until the video is given up.
const MaxLeadingFailures = 10

// Plan is the sampling schedule derived from a probe.
type Plan struct {
	Info     entity.VideoInfo
	Stride   int
	Interval float64
}

// Timestamps lists every sample time in [0, duration).
func (p Plan) Timestamps() []float64 {
	var ts []float64
	for i := 0; ; i++ {
		t := float64(i) * p.Interval
		if t >= p.Info.Duration {
			return ts
		}
		ts = append(ts, t)
	}
}

type Stats struct {
	Decoded int
	Skipped int
}

// Sampler takes one frame every Stride source frames.
type Sampler struct {
	prober  port.VideoProber
	grabber port.FrameGrabber
	stride  int
	logger  *zap.Logger
}

func NewSampler(prober port.VideoProber, grabber port.FrameGrabber, stride int, logger *zap.Logger) *Sampler {
	if stride <= 0 {
		stride = 1
	}
	return &Sampler{prober: prober, grabber: grabber, stride: stride, logger: logger}
}

func (s *Sampler) Plan(ctx context.Context, videoPath string) (Plan, error) {
	info, err := s.prober.Probe(ctx, videoPath)
	if err != nil {
		return Plan{}, fmt.Errorf("probe video: %w", err)
	}
	if info.FPS <= 0 {
		return Plan{}, fmt.Errorf("probe video: invalid frame rate %g", info.FPS)
	}
	if info.Duration <= 0 {
		return Plan{}, fmt.Errorf("probe video: invalid duration %g", info.Duration)
	}
	return Plan{Info: info, Stride: s.stride, Interval: float64(s.stride) / info.FPS}, nil
}

// Frames yields decoded samples in ascending timestamp order. Each range over the
// sequence starts again from t=0. Frames that fail to decode are skipped; the sequence
// yields a non-nil error only when the context ends or when no frame decoded at all,
// which is decided after MaxLeadingFailures failed grabs.
// stats may be nil.
func (s *Sampler) Frames(ctx context.Context, videoPath string, plan Plan, stats *Stats) iter.Seq2[entity.FrameSample, error] {
	return func(yield func(entity.FrameSample, error) bool) {
		if stats == nil {
			stats = &Stats{}
		}
		*stats = Stats{}

		for _, t := range plan.Timestamps() {
			if err := ctx.Err(); err != nil {
				yield(entity.FrameSample{}, err)
				return
			}
			img, err := s.grabber.FrameAt(ctx, videoPath, t)
			if err != nil {
				if ctx.Err() != nil {
					yield(entity.FrameSample{}, ctx.Err())
					return
				}
				stats.Skipped++
				s.logger.Warn("skipping undecodable frame", zap.Float64("timestamp", t), zap.Error(err))
				if stats.Decoded == 0 && stats.Skipped >= MaxLeadingFailures {
					break
				}
				continue
			}
			stats.Decoded++
			if !yield(entity.FrameSample{Timestamp: t, Raster: img}, nil) {
				return
			}
		}

		if stats.Decoded == 0 {
			yield(entity.FrameSample{}, fmt.Errorf("%w (%d attempts)", ErrNoFrames, stats.Skipped))
		}
	}
}
