package ffmpeg

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// Tool drives the ffmpeg and ffprobe binaries for probing, frame grabs and composition.
type Tool struct {
	ffmpegPath  string
	ffprobePath string
	run         runner
	logger      *zap.Logger
}

func NewTool(ffmpegPath, ffprobePath string, logger *zap.Logger) *Tool {
	return newTool(ffmpegPath, ffprobePath, execRunner{}, logger)
}

func newTool(ffmpegPath, ffprobePath string, r runner, logger *zap.Logger) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Tool{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, run: r, logger: logger}
}

func (t *Tool) ffmpeg(ctx context.Context, args ...string) ([]byte, error) {
	return t.run.Run(ctx, t.ffmpegPath, args...)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
