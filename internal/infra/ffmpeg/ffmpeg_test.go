package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and writes a small file to the last argument of ffmpeg calls.
type fakeRunner struct {
	calls  []call
	stdout []byte
	fail   func(c call) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	c := call{name: name, args: args}
	f.calls = append(f.calls, c)
	if f.fail != nil {
		if err := f.fail(c); err != nil {
			return nil, err
		}
	}
	if name == "ffmpeg" && len(args) > 0 {
		if out := args[len(args)-1]; out != "-" {
			if err := os.WriteFile(out, []byte("media"), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return f.stdout, nil
}

func (c call) has(arg string) bool {
	for _, a := range c.args {
		if a == arg {
			return true
		}
	}
	return false
}

func (c call) value(flag string) string {
	for i, a := range c.args {
		if a == flag && i+1 < len(c.args) {
			return c.args[i+1]
		}
	}
	return ""
}

const probeJSON = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac", "bit_rate": "128000"},
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001"}
  ],
  "format": {"duration": "125.480000", "bit_rate": "4500000"}
}`

func TestProbe(t *testing.T) {
	r := &fakeRunner{stdout: []byte(probeJSON)}
	tool := newTool("ffmpeg", "ffprobe", r, zap.NewNop())

	info, err := tool.Probe(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 125.48, info.Duration, 1e-9)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, int64(4500000), info.Bitrate)
	assert.Equal(t, "ffprobe", r.calls[0].name)
}

func TestProbeFallbacks(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","duration":"12.5","r_frame_rate":"0/0"}],"format":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 12.5, info.Duration)
	assert.Equal(t, defaultFPS, info.FPS)

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`))
	assert.Error(t, err)

	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 24.0, parseFrameRate("24"))
	assert.Equal(t, 0.0, parseFrameRate("1/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
}

func TestFrameAtDecodesPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	r := &fakeRunner{stdout: buf.Bytes()}
	tool := newTool("ffmpeg", "ffprobe", r, zap.NewNop())

	img, err := tool.FrameAt(context.Background(), "in.mp4", 12.5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	assert.Equal(t, "12.500", r.calls[0].value("-ss"))
}

func TestFrameAtEmptyOutput(t *testing.T) {
	tool := newTool("ffmpeg", "ffprobe", &fakeRunner{}, zap.NewNop())
	_, err := tool.FrameAt(context.Background(), "in.mp4", 999)
	assert.Error(t, err)
}

func composeScenes() []entity.Scene {
	return []entity.Scene{entity.NewScene(0, 50, 1, ""), entity.NewScene(100, 150, 1, "")}
}

func leftoverComposeDirs(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "compose-*"))
	require.NoError(t, err)
	return matches
}

func TestComposeStreamCopy(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "summary.mp4")
	r := &fakeRunner{}
	tool := newTool("ffmpeg", "ffprobe", r, zap.NewNop())

	require.NoError(t, tool.Compose(context.Background(), "in.mp4", composeScenes(), out))

	require.Len(t, r.calls, 3)
	assert.Equal(t, "0.000", r.calls[0].value("-ss"))
	assert.Equal(t, "50.000", r.calls[0].value("-t"))
	assert.Equal(t, "copy", r.calls[0].value("-c"))
	assert.Equal(t, "100.000", r.calls[1].value("-ss"))

	concat := r.calls[2]
	assert.Equal(t, "concat", concat.value("-f"))
	assert.Equal(t, "copy", concat.value("-c"))
	assert.Equal(t, out, concat.args[len(concat.args)-1])

	assert.FileExists(t, out)
	assert.Empty(t, leftoverComposeDirs(t, dir))
}

func TestComposeFallsBackToReencode(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "summary.mp4")
	r := &fakeRunner{fail: func(c call) error {
		if c.value("-ss") == "100.000" && c.value("-c") == "copy" {
			return errors.New("non monotonic dts")
		}
		return nil
	}}
	tool := newTool("ffmpeg", "ffprobe", r, zap.NewNop())

	require.NoError(t, tool.Compose(context.Background(), "in.mp4", composeScenes(), out))

	require.Len(t, r.calls, 4)
	reencode := r.calls[2]
	assert.Equal(t, "100.000", reencode.value("-ss"))
	assert.Equal(t, reencodeVideoCodec, reencode.value("-c:v"))
	assert.Equal(t, reencodeAudioCodec, reencode.value("-c:a"))
	assert.False(t, reencode.has("copy"))
	assert.Equal(t, "copy", r.calls[3].value("-c"), "join never re-encodes")
}

func TestComposeCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "summary.mp4")
	r := &fakeRunner{fail: func(c call) error {
		if c.value("-f") == "concat" {
			return errors.New("concat failed")
		}
		return nil
	}}
	tool := newTool("ffmpeg", "ffprobe", r, zap.NewNop())

	err := tool.Compose(context.Background(), "in.mp4", composeScenes(), out)
	assert.Error(t, err)
	assert.Empty(t, leftoverComposeDirs(t, dir))
}

func TestComposeRejectsEmptySceneList(t *testing.T) {
	tool := newTool("ffmpeg", "ffprobe", &fakeRunner{}, zap.NewNop())
	err := tool.Compose(context.Background(), "in.mp4", nil, filepath.Join(t.TempDir(), "out.mp4"))
	assert.ErrorIs(t, err, entity.ErrNoScenes)
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, writeConcatList(path, []string{"/tmp/it's.mp4"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `file '/tmp/it'\''s.mp4'`))
}

func TestTailWriterKeepsTail(t *testing.T) {
	var buf bytes.Buffer
	w := &tailWriter{buf: &buf, limit: 5}
	_, _ = w.Write([]byte("hello "))
	_, _ = w.Write([]byte("world"))
	assert.Equal(t, "world", buf.String())
}
