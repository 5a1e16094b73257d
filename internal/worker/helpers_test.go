package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/repository"
	"github.com/talecraft/api/internal/service"
	"github.com/talecraft/api/internal/storage"
)

const storyText = "Dawno temu w małej wiosce żył sobie smok. Był bardzo przyjazny i lubił dzieci. Wszyscy go kochali."

var errProvider = errors.New("provider unavailable")

type stubText struct {
	result service.TextResult
	err    error
	calls  int
}

func (s *stubText) Generate(context.Context, model.Brief) (service.TextResult, error) {
	s.calls++
	return s.result, s.err
}

// stubAudio writes a fixed payload to the store, running hook first
type stubAudio struct {
	store   storage.ArtifactStore
	err     error
	hook    func()
	lastRef string
	texts   []string
}

func (s *stubAudio) Synthesize(ctx context.Context, text string) (service.AudioResult, error) {
	s.texts = append(s.texts, text)
	if s.hook != nil {
		s.hook()
	}
	if s.err != nil {
		return service.AudioResult{}, s.err
	}
	ref, err := s.store.Write(ctx, "audio/narration.mp3", make([]byte, 12000))
	if err != nil {
		return service.AudioResult{}, err
	}
	s.lastRef = ref
	return service.AudioResult{Ref: ref, Size: 12000, Voice: "voice-primary", Chunks: 1}, nil
}

type fixture struct {
	repo  repository.FairytaleRepository
	store *storage.FileStore
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	return &fixture{repo: repository.NewRedisRepository(rdb, 0), store: store, mr: mr}
}

func (fx *fixture) seed(t *testing.T, mutate func(f *model.Fairytale)) *model.Fairytale {
	t.Helper()
	f := model.NewFairytale(uuid.New().String(), "user-1", model.Brief{
		Theme:           "smok",
		Characters:      "smok i dzieci",
		DurationSeconds: 60,
	}, time.Now().UTC())
	if mutate != nil {
		mutate(f)
	}
	require.NoError(t, fx.repo.Create(context.Background(), f))
	return f
}

func (fx *fixture) get(t *testing.T, id string) *model.Fairytale {
	t.Helper()
	f, err := fx.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return f
}

// recordingRunner counts pipeline runs
type recordingRunner struct {
	mu      sync.Mutex
	full    []string
	audio   []string
	started chan struct{}
	block   chan struct{}
	panics  bool
}

func (r *recordingRunner) RunFullPipeline(_ context.Context, id string) error {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.panics {
		panic("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full = append(r.full, id)
	return nil
}

func (r *recordingRunner) RunAudioOnlyPipeline(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, id)
	return nil
}

func (r *recordingRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.full), len(r.audio)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
