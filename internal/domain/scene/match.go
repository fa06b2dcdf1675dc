package scene

import (
	"fmt"
	"sort"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

// MatchResult is either a non-empty scene list or an empty one with the reason nothing matched.
type MatchResult struct {
	Scenes []entity.Scene
	Reason string
	// BestSimilarity is the highest similarity seen across all samples.
	BestSimilarity float64
}

func (r MatchResult) Empty() bool {
	return len(r.Scenes) == 0
}

// Match groups consecutive samples whose similarity to target is at least threshold into scenes.
// Embeddings must already be unit length.
func Match(frames []entity.FrameEmbedding, target entity.Embedding, threshold float64, label string) (MatchResult, error) {
	if len(frames) == 0 {
		return MatchResult{Reason: "no frames were sampled"}, nil
	}

	ordered := append([]entity.FrameEmbedding(nil), frames...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	res := MatchResult{BestSimilarity: -1}
	var (
		open       bool
		start, end float64
		sum        float64
		count      int
	)
	closeRun := func() {
		res.Scenes = append(res.Scenes, entity.NewScene(start, end, sum/float64(count), label))
		open, sum, count = false, 0, 0
	}

	for i, f := range ordered {
		if len(f.Vector) != len(target) {
			return MatchResult{}, fmt.Errorf("frame %d at %.3fs: embedding dimension %d, target %d",
				i, f.Timestamp, len(f.Vector), len(target))
		}
		sim := f.Vector.Dot(target)
		if sim > res.BestSimilarity {
			res.BestSimilarity = sim
		}
		if sim < threshold {
			if open {
				closeRun()
			}
			continue
		}
		if !open {
			open, start = true, f.Timestamp
		}
		end = f.Timestamp
		sum += sim
		count++
	}
	if open {
		closeRun()
	}

	if res.Empty() {
		res.Reason = fmt.Sprintf("no frame reached similarity %.2f (best %.3f)", threshold, res.BestSimilarity)
	}
	return res, nil
}

// MatchCategory is Match against a category description, with scenes tagged by the category key.
func MatchCategory(frames []entity.FrameEmbedding, target entity.Embedding, threshold float64, key string) (MatchResult, error) {
	res, err := Match(frames, target, threshold, key)
	if err != nil {
		return res, err
	}
	for i := range res.Scenes {
		res.Scenes[i].MatchedCategory = key
	}
	if res.Empty() {
		res.Reason = fmt.Sprintf("category %q: %s", key, res.Reason)
	}
	return res, nil
}
