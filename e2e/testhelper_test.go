package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/talecraft/api/internal/app"
	"github.com/talecraft/api/internal/auth"
	"github.com/talecraft/api/internal/config"
)

const (
	testJWTSecret   = "test-secret-for-e2e"
	testAdminSecret = "test-admin-secret"
	testUserID      = "test-user-123"
	otherUserID     = "other-user-456"
)

const polishStory = "Dawno temu, w małej wiosce nad rzeką, mieszkał smok imieniem Bartek. " +
	"Bartek był bardzo łagodny i uwielbiał bawić się z dziećmi na łące. " +
	"Pewnego dnia dzieci zgubiły się w ciemnym lesie, a smok ruszył im na pomoc. " +
	"Świecił im drogę swoim ciepłym oddechem, aż wszyscy bezpiecznie wrócili do domu. " +
	"Od tamtej pory cała wioska wiedziała, że prawdziwa odwaga płynie z dobrego serca."

// providers fakes the LLM and TTS HTTP APIs
type providers struct {
	llm *httptest.Server
	tts *httptest.Server

	mu         sync.Mutex
	ttsFail    bool
	ttsGate    chan struct{}
	ttsCalls   int
	ttsEntered chan struct{}
}

func newProviders(t *testing.T) *providers {
	t.Helper()
	p := &providers{ttsEntered: make(chan struct{}, 16)}

	p.llm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": polishStory},
			}},
		})
	}))
	t.Cleanup(p.llm.Close)

	p.tts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.ttsCalls++
		fail := p.ttsFail
		gate := p.ttsGate
		p.mu.Unlock()

		if gate != nil {
			p.ttsEntered <- struct{}{}
			<-gate
		}
		if fail {
			http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(make([]byte, 12000))
	}))
	t.Cleanup(p.tts.Close)

	return p
}

func (p *providers) failTTS() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ttsFail = true
}

// holdTTS makes synthesis requests block until the returned release is called
func (p *providers) holdTTS(t *testing.T) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	p.mu.Lock()
	p.ttsGate = gate
	p.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			p.mu.Lock()
			p.ttsGate = nil
			p.mu.Unlock()
			close(gate)
		})
	}
	t.Cleanup(release)
	return release
}

type testApp struct {
	app       *fiber.App
	core      *app.App
	providers *providers
	audioDir  string
}

// setupApp builds the application exactly as main.go does, against miniredis,
// a temp artifact directory and fake providers, with pipelines run in-process.
func setupApp(t *testing.T, overrides ...func(cfg *config.Config)) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	p := newProviders(t)
	audioDir := t.TempDir()

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Env: "test", AdminSecret: testAdminSecret},
		Redis:     config.RedisConfig{Addr: mr.Addr()},
		JWT:       config.JWTConfig{Secret: testJWTSecret},
		RateLimit: config.RateLimitConfig{FairytalesPerHour: 10000},
		OpenRouter: config.OpenRouterConfig{
			APIKey:  "test-key",
			BaseURL: p.llm.URL,
			Model:   "test-model",
			Timeout: 5,
		},
		ElevenLabs: config.ElevenLabsConfig{
			APIKey:  "test-key",
			BaseURL: p.tts.URL,
			VoiceID: "voice-primary",
			ModelID: "eleven_multilingual_v2",
			Timeout: 5,
		},
		Store:   config.StoreConfig{Driver: "redis"},
		Storage: config.StorageConfig{Driver: "filesystem", Dir: audioDir},
		Pipeline: config.PipelineConfig{
			Dispatcher:                  app.DispatcherInline,
			Concurrency:                 4,
			TextMaxAttempts:             3,
			TextRetryBackoff:            10 * time.Millisecond,
			WrongLanguageMatchThreshold: 6,
			OpeningWindow:               100,
			MaxChunkChars:               4800,
			MinAudioBytes:               10000,
			ReclaimTimeout:              30 * time.Minute,
			ReclaimSchedule:             "@every 5m",
		},
	}

	for _, override := range overrides {
		override(cfg)
	}

	core, err := app.Build(cfg, zerolog.Nop(), redisClient, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	if err := core.Start(); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(core.Close)

	return &testApp{app: core.HTTP, core: core, providers: p, audioDir: audioDir}
}

// generateToken creates a legacy HMAC JWT token for userID.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(testJWTSecret, userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as testUserID.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	return doUserRequest(t, app, testUserID, method, path, body)
}

func doUserRequest(t *testing.T, app *fiber.App, userID, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the error envelope code.
func assertErrorCode(t *testing.T, body map[string]interface{}, expected string) {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %q, got %v", expected, errObj["code"])
	}
}

const validBrief = `{"theme":"smok i odwaga","characters":"smok Bartek i dzieci","durationSeconds":60}`

// submit creates a fairytale as testUserID and returns its id.
func submit(t *testing.T, ta *testApp) string {
	t.Helper()
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/fairytales", validBrief)
	assertStatus(t, resp, http.StatusAccepted)
	body := parseJSON(t, resp)
	id, _ := body["jobId"].(string)
	if id == "" {
		t.Fatalf("expected jobId in response, got %v", body)
	}
	return id
}

// fetch returns the fairytale as seen by testUserID.
func fetch(t *testing.T, ta *testApp, id string) map[string]interface{} {
	t.Helper()
	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/fairytales/"+id, "")
	assertStatus(t, resp, http.StatusOK)
	return parseJSON(t, resp)
}
