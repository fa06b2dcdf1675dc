package entity

import (
	"fmt"
	"math"
)

// Scene is a contiguous interval of the source video, in seconds.
type Scene struct {
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	Duration        float64 `json:"duration"`
	ConfidenceScore float64 `json:"confidence_score"`
	MatchedText     string  `json:"matched_text,omitempty"`
	MatchedCategory string  `json:"matched_category,omitempty"`
}

func NewScene(start, end, confidence float64, label string) Scene {
	return Scene{
		StartTime:       start,
		EndTime:         end,
		Duration:        end - start,
		ConfidenceScore: confidence,
		MatchedText:     label,
	}
}

// Trim returns a copy shortened to d seconds, keeping its start and labels.
func (s Scene) Trim(d float64) Scene {
	if d >= s.Duration {
		return s
	}
	if d < 0 {
		d = 0
	}
	s.Duration = d
	s.EndTime = s.StartTime + d
	return s
}

func (s Scene) Overlaps(o Scene) bool {
	return s.StartTime < o.EndTime && o.StartTime < s.EndTime
}

const sceneEpsilon = 1e-9

// ValidateSceneOrder checks that scenes are well formed, ascending by start and non-overlapping.
func ValidateSceneOrder(scenes []Scene) error {
	for i, s := range scenes {
		if s.StartTime < 0 || s.EndTime < s.StartTime {
			return fmt.Errorf("scene %d: invalid interval [%g, %g)", i, s.StartTime, s.EndTime)
		}
		if math.Abs(s.EndTime-s.StartTime-s.Duration) > 1e-6 {
			return fmt.Errorf("scene %d: duration %g does not match interval", i, s.Duration)
		}
		if i > 0 {
			prev := scenes[i-1]
			if s.StartTime < prev.StartTime {
				return fmt.Errorf("scene %d: out of order", i)
			}
			if s.StartTime < prev.EndTime-sceneEpsilon {
				return fmt.Errorf("scene %d overlaps scene %d", i, i-1)
			}
		}
	}
	return nil
}

func TotalDuration(scenes []Scene) float64 {
	var total float64
	for _, s := range scenes {
		total += s.Duration
	}
	return total
}
