package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

const defaultFPS = 30.0

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
		BitRate      string `json:"bit_rate"`
	} `json:"streams"`
}

func (t *Tool) Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error) {
	out, err := t.run.Run(ctx, t.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	if err != nil {
		return entity.VideoInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (entity.VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return entity.VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := entity.VideoInfo{
			Width:  s.Width,
			Height: s.Height,
			Codec:  s.CodecName,
			FPS:    parseFrameRate(s.RFrameRate),
		}
		if info.FPS <= 0 {
			info.FPS = parseFrameRate(s.AvgFrameRate)
		}
		if info.FPS <= 0 {
			info.FPS = defaultFPS
		}

		info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
		if info.Duration <= 0 {
			info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		if info.Duration <= 0 {
			return entity.VideoInfo{}, fmt.Errorf("ffprobe reported no duration")
		}

		if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
			info.Bitrate = br
		} else if br, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
			info.Bitrate = br
		}
		return info, nil
	}
	return entity.VideoInfo{}, fmt.Errorf("no video stream found")
}

// parseFrameRate parses "30000/1001" or "25".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
