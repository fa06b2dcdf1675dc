package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
)

// FrameAt decodes the single frame at t seconds.
func (t *Tool) FrameAt(ctx context.Context, videoPath string, at float64) (image.Image, error) {
	out, err := t.ffmpeg(ctx,
		"-v", "error",
		"-ss", seconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("grab frame at %.3fs: %w", at, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("grab frame at %.3fs: empty output", at)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w", at, err)
	}
	return img, nil
}
