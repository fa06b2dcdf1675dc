package entity

import (
	"image"
	"math"
)

// VideoInfo is what a probe reports about a source file.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	Codec    string
	Bitrate  int64
}

// FrameSample is one decoded frame at Timestamp seconds.
type FrameSample struct {
	Timestamp float64
	Raster    image.Image
}

type Embedding []float32

// Normalize returns a unit-length copy. A zero vector cannot be normalized and returns false.
func (e Embedding) Normalize() (Embedding, bool) {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = float32(float64(v) / norm)
	}
	return out, true
}

// Dot assumes equal lengths; callers check dimensions first.
func (e Embedding) Dot(o Embedding) float64 {
	var sum float64
	for i := range e {
		sum += float64(e[i]) * float64(o[i])
	}
	return sum
}

type FrameEmbedding struct {
	Timestamp float64
	Vector    Embedding
}
