package entity

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// TimeRange is a manually declared interval expressed in percent of the video length.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ValidateTimeRanges requires every range inside [0,100] with start < end, and no two ranges overlapping.
func ValidateTimeRanges(ranges []TimeRange) error {
	if len(ranges) == 0 {
		return fmt.Errorf("%w: at least one time range is required", ErrInvalidRequest)
	}
	for _, r := range ranges {
		if !finite(r.Start) || !finite(r.End) {
			return fmt.Errorf("%w: range bounds must be finite numbers", ErrInvalidRequest)
		}
	}
	sorted := append([]TimeRange(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i, r := range sorted {
		if r.Start < 0 || r.End > 100 {
			return fmt.Errorf("%w: range %.1f-%.1f outside 0-100", ErrInvalidRequest, r.Start, r.End)
		}
		if r.Start >= r.End {
			return fmt.Errorf("%w: range start %.1f must be before end %.1f", ErrInvalidRequest, r.Start, r.End)
		}
		if i > 0 && r.Start < sorted[i-1].End {
			return fmt.Errorf("%w: ranges %.1f-%.1f and %.1f-%.1f overlap",
				ErrInvalidRequest, sorted[i-1].Start, sorted[i-1].End, r.Start, r.End)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateRequest checks the payload against its type. knownCategory may be nil to skip vocabulary membership.
func ValidateRequest(t RequestType, data RequestData, knownCategory func(string) bool) error {
	switch t {
	case RequestTypeTextPrompt:
		if strings.TrimSpace(data.Prompt) == "" {
			return fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
		}
	case RequestTypeCategory:
		if data.Category == "" {
			return fmt.Errorf("%w: category is empty", ErrInvalidRequest)
		}
		if knownCategory != nil && !knownCategory(data.Category) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, data.Category)
		}
	case RequestTypeTimeRange:
		return ValidateTimeRanges(data.TimeRanges)
	default:
		return fmt.Errorf("%w: unknown request type %q", ErrInvalidRequest, t)
	}
	return nil
}
