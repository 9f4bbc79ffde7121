package tradehttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tradefan/internal/intake"
	"tradefan/internal/types"

	"github.com/stretchr/testify/assert"
)

type stubSignals struct {
	mu       sync.Mutex
	admitErr error
	admitted []intake.Payload
	executed []types.Signal
	execDone chan struct{}
	execOnce sync.Once
}

func newStubSignals(admitErr error) *stubSignals {
	return &stubSignals{admitErr: admitErr, execDone: make(chan struct{})}
}

func (s *stubSignals) Admit(ctx context.Context, p intake.Payload) (types.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admitErr != nil {
		return types.Signal{}, s.admitErr
	}
	s.admitted = append(s.admitted, p)
	return types.Signal{ID: 42, StrategyID: p.StrategyID, Value: p.Signal}, nil
}

func (s *stubSignals) ExecuteForSignal(ctx context.Context, sig types.Signal) error {
	s.mu.Lock()
	s.executed = append(s.executed, sig)
	s.mu.Unlock()
	s.execOnce.Do(func() { close(s.execDone) })
	return nil
}

func newTestServer(t *testing.T, signals SignalService, secret string) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Addr:          ":0",
		WebhookSecret: secret,
		Signals:       signals,
	})
	assert.NoError(t, err)
	return srv
}

func postWebhook(srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/tradingview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestWebhookAccepts(t *testing.T) {
	signals := newStubSignals(nil)
	srv := newTestServer(t, signals, "")

	w := postWebhook(srv, `{"strategyId":"btc-momentum","signal":1,"symbol":"BTC/USDT"}`, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"signalLogId":42`)

	select {
	case <-signals.execDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fan-out never ran")
	}
	signals.mu.Lock()
	defer signals.mu.Unlock()
	assert.Len(t, signals.admitted, 1)
	assert.Len(t, signals.executed, 1)
	assert.Equal(t, int64(42), signals.executed[0].ID)
}

func TestWebhookCoercesQuotedSignal(t *testing.T) {
	signals := newStubSignals(nil)
	srv := newTestServer(t, signals, "")

	w := postWebhook(srv, `{"strategyId":"btc-momentum","signal":"-1"}`, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	signals.mu.Lock()
	defer signals.mu.Unlock()
	assert.Equal(t, -1, signals.admitted[0].Signal)
}

func TestWebhookRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "hello"},
		{"missing strategyId", `{"signal":1}`},
		{"missing signal", `{"strategyId":"s1"}`},
		{"non-integer signal", `{"strategyId":"s1","signal":"up"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, newStubSignals(nil), "")
			w := postWebhook(srv, tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestWebhookSecret(t *testing.T) {
	body := `{"strategyId":"s1","signal":1}`

	t.Run("missing secret rejected", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(nil), "hunter2")
		w := postWebhook(srv, body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("header secret accepted", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(nil), "hunter2")
		w := postWebhook(srv, body, map[string]string{"X-Webhook-Secret": "hunter2"})
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("body secret accepted", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(nil), "hunter2")
		w := postWebhook(srv, `{"strategyId":"s1","signal":1,"secret":"hunter2"}`, nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("wrong header secret rejected even with valid body secret", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(nil), "hunter2")
		w := postWebhook(srv, `{"strategyId":"s1","signal":1,"secret":"hunter2"}`, map[string]string{"X-Webhook-Secret": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWebhookAdmitOutcomes(t *testing.T) {
	body := `{"strategyId":"s1","signal":1}`

	t.Run("duplicate yields 200", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(intake.ErrDuplicateSignal), "")
		w := postWebhook(srv, body, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "duplicate")
	})

	t.Run("unknown strategy yields 404", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(intake.ErrStrategyNotFound), "")
		w := postWebhook(srv, body, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid signal yields 400", func(t *testing.T) {
		srv := newTestServer(t, newStubSignals(intake.ErrInvalidSignal), "")
		w := postWebhook(srv, body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newStubSignals(nil), "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
