package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/talecraft/api/internal/client"
	"github.com/talecraft/api/internal/repository"
	"github.com/talecraft/api/internal/storage"
)

var errProviderDown = errors.New("provider unavailable")

type llmReply struct {
	text string
	err  error
}

// fakeLLM replays scripted replies and records every request
type fakeLLM struct {
	mu         sync.Mutex
	replies    []llmReply
	requests   []client.CompletionRequest
	configured bool
}

func newFakeLLM(replies ...llmReply) *fakeLLM {
	return &fakeLLM{replies: replies, configured: true}
}

func (f *fakeLLM) ChatCompletion(_ context.Context, req client.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return "", errProviderDown
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply.text, reply.err
}

func (f *fakeLLM) IsConfigured() bool { return f.configured }

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeTTS returns payloadSize bytes per chunk unless the voice is marked failing
type fakeTTS struct {
	mu          sync.Mutex
	payloadSize int
	failing     map[string]bool
	fallbackID  string
	configured  bool
	calls       []string
}

func newFakeTTS(payloadSize int) *fakeTTS {
	return &fakeTTS{payloadSize: payloadSize, failing: map[string]bool{}, fallbackID: "voice-fallback", configured: true}
}

func (f *fakeTTS) Synthesize(_ context.Context, _ string, voice client.VoiceProfile) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, voice.VoiceID)
	if f.failing[voice.VoiceID] {
		return nil, &client.TTSError{StatusCode: 500, Body: "synthesis failed"}
	}
	return make([]byte, f.payloadSize), nil
}

func (f *fakeTTS) PrimaryVoice() client.VoiceProfile {
	return client.VoiceProfile{VoiceID: "voice-primary", Settings: client.PrimaryVoiceSettings}
}

func (f *fakeTTS) FallbackVoice() (client.VoiceProfile, bool) {
	if f.fallbackID == "" {
		return client.VoiceProfile{}, false
	}
	return client.VoiceProfile{VoiceID: f.fallbackID, Settings: client.FallbackVoiceSettings}, true
}

func (f *fakeTTS) IsConfigured() bool { return f.configured }

// fakeDispatcher records dispatched ids
type fakeDispatcher struct {
	mu           sync.Mutex
	generations  []string
	regenerating []string
	err          error
}

func (d *fakeDispatcher) DispatchGeneration(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.generations = append(d.generations, id)
	return nil
}

func (d *fakeDispatcher) DispatchAudioRegeneration(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.regenerating = append(d.regenerating, id)
	return nil
}

type fakeSweeper struct{ reclaimed int }

func (s *fakeSweeper) Sweep(context.Context) (int, error) { return s.reclaimed, nil }

func newTestRepository(t *testing.T) repository.FairytaleRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return repository.NewRedisRepository(rdb, 0)
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	return store
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
