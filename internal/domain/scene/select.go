package scene

import (
	"fmt"
	"sort"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

// MinTrimSeconds is the smallest remaining budget worth filling with a trimmed scene.
const MinTrimSeconds = 1.0

// MinRangeSeconds is the shortest manual range the composer can cut. ffmpeg receives times in milliseconds.
const MinRangeSeconds = 0.01

// Select picks scenes by descending confidence until target seconds are used, trimming the first
// scene that overflows when more than MinTrimSeconds remain. Equal confidences keep input order.
// The result is sorted by start time.
func Select(scenes []entity.Scene, target float64) []entity.Scene {
	candidates := make([]entity.Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.Duration > 0 {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
	})

	var (
		selected []entity.Scene
		total    float64
	)
	for _, s := range candidates {
		if total+s.Duration <= target {
			selected = append(selected, s)
			total += s.Duration
			continue
		}
		if remaining := target - total; remaining > MinTrimSeconds {
			selected = append(selected, s.Trim(remaining))
		}
		break
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].StartTime < selected[j].StartTime })
	return selected
}

// FromTimeRanges converts validated percentage ranges into absolute scenes on a video of the given length.
func FromTimeRanges(ranges []entity.TimeRange, videoDuration float64) ([]entity.Scene, error) {
	if err := entity.ValidateTimeRanges(ranges); err != nil {
		return nil, err
	}
	if videoDuration <= 0 {
		return nil, fmt.Errorf("video duration must be positive, got %g", videoDuration)
	}
	scenes := make([]entity.Scene, 0, len(ranges))
	for _, r := range ranges {
		start := r.Start / 100 * videoDuration
		end := r.End / 100 * videoDuration
		if end-start < MinRangeSeconds {
			return nil, fmt.Errorf("%w: range %.2f%%-%.2f%% covers %.4fs of a %.2fs video, below %gs",
				entity.ErrInvalidRequest, r.Start, r.End, end-start, videoDuration, MinRangeSeconds)
		}
		scenes = append(scenes, entity.NewScene(start, end, 1.0, fmt.Sprintf("%.1f%%-%.1f%%", r.Start, r.End)))
	}
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].StartTime < scenes[j].StartTime })
	return scenes, nil
}
