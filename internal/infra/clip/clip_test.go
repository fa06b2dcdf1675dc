package clip

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizerWithoutMerges(t *testing.T) {
	tok := newTokenizer(nil)
	assert.Equal(t, int64(512), tok.sot)
	assert.Equal(t, int64(513), tok.eot)

	assert.Equal(t, []int64{71, 328}, tok.Encode("Hi"))

	ids, mask := tok.Tokenize("hi")
	require.Len(t, ids, ContextLength)
	assert.Equal(t, []int64{512, 71, 328, 513, 0}, ids[:5])
	assert.Equal(t, []int64{1, 1, 1, 1, 0}, mask[:5])
}

func TestTokenizerAppliesMerges(t *testing.T) {
	tok := newTokenizer([]pair{{"h", "i</w>"}})
	assert.Equal(t, []int64{512}, tok.Encode("hi"))
	assert.Equal(t, int64(513), tok.sot)

	ids, _ := tok.Tokenize("hi hi")
	assert.Equal(t, []int64{513, 512, 512, 514}, ids[:4])
}

func TestTokenizerCleansText(t *testing.T) {
	tok := newTokenizer(nil)
	assert.Equal(t, tok.Encode("a & b"), tok.Encode("  A &amp;   B "))
}

func TestTokenizeTruncates(t *testing.T) {
	tok := newTokenizer(nil)
	long := bytes.Repeat([]byte("a "), 200)
	ids, mask := tok.Tokenize(string(long))
	require.Len(t, ids, ContextLength)
	assert.Equal(t, tok.eot, ids[ContextLength-1])
	assert.Equal(t, int64(1), mask[ContextLength-1])
}

func TestLoadTokenizerGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("#version: 0.2\nh i</w>\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "vocab.txt.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	tok, err := LoadTokenizer(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{512}, tok.Encode("hi"))
}

func TestCanonicalPassesRGBAThrough(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 8, 8))
	got, err := canonical(rgba)
	require.NoError(t, err)
	assert.Same(t, rgba, got)

	gray := image.NewGray(image.Rect(2, 2, 6, 5))
	gray.SetGray(2, 2, color.Gray{Y: 200})
	got, err = canonical(gray)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), got.Bounds())
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, got.RGBAAt(0, 0))
}

func TestCanonicalRejectsMalformed(t *testing.T) {
	_, err := canonical(nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = canonical(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	broken := &image.RGBA{Pix: make([]uint8, 10), Stride: 40, Rect: image.Rect(0, 0, 10, 10)}
	_, err = canonical(broken)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestPixelValuesNormalizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	dst := make([]float32, 3*ImageSize*ImageSize)
	require.NoError(t, pixelValues(img, dst))

	plane := ImageSize * ImageSize
	assert.InDelta(t, (1-clipMean[0])/clipStd[0], dst[0], 1e-3)
	assert.InDelta(t, (1-clipMean[1])/clipStd[1], dst[plane], 1e-3)
	assert.InDelta(t, (1-clipMean[2])/clipStd[2], dst[2*plane+plane-1], 1e-3)
}

// fakeModel returns a fixed direction per call, scaled so outputs are not unit length.
type fakeModel struct {
	imageCalls int
	batches    []int
	zero       bool
	err        error
}

func (m *fakeModel) EncodeImages(pixels []float32, n int) ([][]float32, error) {
	m.imageCalls++
	m.batches = append(m.batches, n)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, n)
	for i := range out {
		if m.zero {
			out[i] = []float32{0, 0}
		} else {
			out[i] = []float32{3, 4}
		}
	}
	return out, nil
}

func (m *fakeModel) EncodeText(ids, mask []int64) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0, 10}, nil
}

func (m *fakeModel) Close() error { return nil }

func frames(n int) []entity.FrameSample {
	out := make([]entity.FrameSample, n)
	for i := range out {
		out[i] = entity.FrameSample{Timestamp: float64(i), Raster: image.NewRGBA(image.Rect(0, 0, 16, 16))}
	}
	return out
}

func TestEmbedFramesBatchesAndNormalizes(t *testing.T) {
	model := &fakeModel{}
	e := NewEngine(model, newTokenizer(nil), 2)

	got, err := e.EmbedFrames(context.Background(), frames(5))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, []int{2, 2, 1}, model.batches)
	for i, fe := range got {
		assert.Equal(t, float64(i), fe.Timestamp)
		assert.InDelta(t, 1.0, fe.Vector.Dot(fe.Vector), 1e-6)
	}
}

func TestEmbedFramesRejectsBadInput(t *testing.T) {
	e := NewEngine(&fakeModel{}, newTokenizer(nil), 4)
	bad := frames(2)
	bad[1].Raster = nil
	_, err := e.EmbedFrames(context.Background(), bad)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	e = NewEngine(&fakeModel{zero: true}, newTokenizer(nil), 4)
	_, err = e.EmbedFrames(context.Background(), frames(1))
	assert.Error(t, err)

	e = NewEngine(&fakeModel{err: errors.New("session closed")}, newTokenizer(nil), 4)
	_, err = e.EmbedFrames(context.Background(), frames(1))
	assert.Error(t, err)
}

func TestEmbedText(t *testing.T) {
	e := NewEngine(&fakeModel{}, newTokenizer(nil), 4)
	v, err := e.EmbedText(context.Background(), "a dog on a beach")
	require.NoError(t, err)
	assert.Equal(t, entity.Embedding{0, 1}, v)
}

func TestHandleLoadsOnce(t *testing.T) {
	var h Handle
	var loads atomic.Int32
	engine := NewEngine(&fakeModel{}, newTokenizer(nil), 1)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.Get(func() (*Engine, error) {
				loads.Add(1)
				return engine, nil
			})
			assert.NoError(t, err)
			assert.Same(t, engine, got)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestHandleKeepsLoadError(t *testing.T) {
	var h Handle
	_, err := h.Get(func() (*Engine, error) { return nil, errors.New("missing model") })
	assert.Error(t, err)
	_, err = h.Get(func() (*Engine, error) { return NewEngine(&fakeModel{}, nil, 1), nil })
	assert.Error(t, err)
}
