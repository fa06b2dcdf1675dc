package usecase

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/infra/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRepo(t *testing.T) *sqlite.JobRepository {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "jobs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewJobRepository(db)
}

type fakeStorage struct {
	mu          sync.Mutex
	downloadErr error
	onDownload  func()
	uploadErr   error
	deleteErr   error
	uploaded    map[string]int64
	deleted     []string
	signedTTL   time.Duration
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string]int64{}}
}

func (s *fakeStorage) Upload(_ context.Context, bucket, localPath, key, _ string) (int64, error) {
	if s.uploadErr != nil {
		return 0, s.uploadErr
	}
	fi, err := os.Stat(localPath)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[bucket+"/"+key] = fi.Size()
	return fi.Size(), nil
}

func (s *fakeStorage) Download(_ context.Context, _, _, localPath string) error {
	if s.onDownload != nil {
		s.onDownload()
	}
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(localPath, []byte("source video"), 0o644)
}

func (s *fakeStorage) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, bucket+"/"+key)
	return s.deleteErr
}

func (s *fakeStorage) SignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	s.signedTTL = ttl
	return "https://blobs.local/" + bucket + "/" + key + "?sig=1", nil
}

// fakeMedia serves a video of info with one sample per second when stride equals fps.
type fakeMedia struct {
	info       entity.VideoInfo
	probeErr   error
	badFrames  map[float64]bool
	composed   []entity.Scene
	composeErr error
}

func (m *fakeMedia) Probe(context.Context, string) (entity.VideoInfo, error) {
	return m.info, m.probeErr
}

func (m *fakeMedia) FrameAt(_ context.Context, _ string, t float64) (image.Image, error) {
	if m.badFrames[t] {
		return nil, errors.New("corrupt frame")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (m *fakeMedia) Compose(_ context.Context, _ string, scenes []entity.Scene, outputPath string) error {
	if m.composeErr != nil {
		return m.composeErr
	}
	m.composed = append([]entity.Scene(nil), scenes...)
	return os.WriteFile(outputPath, []byte("composed summary"), 0o644)
}

// fakeEmbedder places every frame at a scripted cosine similarity to the text target [1, 0].
type fakeEmbedder struct {
	similarity map[float64]float64
	batches    []int
	texts      []string
}

func (e *fakeEmbedder) EmbedFrames(_ context.Context, frames []entity.FrameSample) ([]entity.FrameEmbedding, error) {
	e.batches = append(e.batches, len(frames))
	out := make([]entity.FrameEmbedding, len(frames))
	for i, f := range frames {
		s := e.similarity[f.Timestamp]
		out[i] = entity.FrameEmbedding{Timestamp: f.Timestamp, Vector: entity.Embedding{float32(s), float32(math.Sqrt(1 - s*s))}}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) (entity.Embedding, error) {
	e.texts = append(e.texts, text)
	return entity.Embedding{1, 0}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type recordingDLQ struct {
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type notification struct {
	email, jobID, videoID, message string
}

type recordingNotifier struct {
	sent []notification
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, email, jobID, videoID, msg string) error {
	n.sent = append(n.sent, notification{email, jobID, videoID, msg})
	return nil
}

type fakeQueue struct {
	err      error
	tasks    []string
	payloads [][]byte
	timeouts []time.Duration
}

func (q *fakeQueue) Enqueue(_ context.Context, task string, payload []byte, timeout time.Duration) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	q.payloads = append(q.payloads, payload)
	q.timeouts = append(q.timeouts, timeout)
	return nil
}
