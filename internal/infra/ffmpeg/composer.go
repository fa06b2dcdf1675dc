package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	reencodeVideoCodec = "libx264"
	reencodeAudioCodec = "aac"
	reencodeCRF        = "23"
)

var ErrEmptyOutput = errors.New("composition produced no output")

// Compose cuts each scene out of source and joins them into output without re-encoding at the join.
// Each scene is stream-copied first and re-encoded only if the copy fails. Intermediate files live
// in a temporary directory next to output that is removed before returning.
func (t *Tool) Compose(ctx context.Context, source string, scenes []entity.Scene, output string) error {
	if len(scenes) == 0 {
		return fmt.Errorf("compose: %w", entity.ErrNoScenes)
	}

	workDir, err := os.MkdirTemp(filepath.Dir(output), "compose-*")
	if err != nil {
		return fmt.Errorf("create compose dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	ext := filepath.Ext(output)
	if ext == "" {
		ext = ".mp4"
	}

	parts := make([]string, 0, len(scenes))
	for i, s := range scenes {
		part := filepath.Join(workDir, fmt.Sprintf("scene_%03d%s", i, ext))
		if err := t.cutScene(ctx, source, s, part, true); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("stream copy failed, re-encoding scene",
				zap.Int("scene", i),
				zap.Float64("start", s.StartTime),
				zap.Float64("duration", s.Duration),
				zap.Error(err),
			)
			_ = os.Remove(part)
			if err := t.cutScene(ctx, source, s, part, false); err != nil {
				return fmt.Errorf("extract scene %d: %w", i, err)
			}
		}
		parts = append(parts, part)
	}

	list := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(list, parts); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	if _, err := t.ffmpeg(ctx,
		"-y", "-v", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-c", "copy",
		output,
	); err != nil {
		return fmt.Errorf("concat scenes: %w", err)
	}

	if err := nonEmpty(output); err != nil {
		return err
	}
	t.logger.Info("summary composed", zap.Int("scenes", len(scenes)), zap.String("output", output))
	return nil
}

func (t *Tool) cutScene(ctx context.Context, source string, s entity.Scene, part string, copyCodec bool) error {
	args := []string{
		"-y", "-v", "error",
		"-ss", seconds(s.StartTime),
		"-i", source,
		"-t", seconds(s.Duration),
	}
	if copyCodec {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	} else {
		args = append(args,
			"-c:v", reencodeVideoCodec,
			"-preset", "veryfast",
			"-crf", reencodeCRF,
			"-c:a", reencodeAudioCodec,
		)
	}
	args = append(args, part)

	if _, err := t.ffmpeg(ctx, args...); err != nil {
		return err
	}
	return nonEmpty(part)
}

func nonEmpty(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrEmptyOutput, filepath.Base(path))
	}
	return nil
}

func writeConcatList(path string, parts []string) error {
	var b strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
