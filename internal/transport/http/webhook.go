package tradehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"tradefan/internal/intake"
	"tradefan/internal/logger"
	"tradefan/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// SignalService admits signals and runs the fan-out. The webhook hands
// admitted signals to Execute on a detached goroutine.
type SignalService interface {
	Admit(ctx context.Context, p intake.Payload) (types.Signal, error)
	ExecuteForSignal(ctx context.Context, sig types.Signal) error
}

const maxWebhookBody = 64 << 10

// webhookSchema rejects malformed payloads before any coercion runs.
// signal accepts both numeric and string forms since alert templates
// frequently quote it.
const webhookSchema = `{
  "type": "object",
  "required": ["strategyId", "signal"],
  "properties": {
    "strategyId": {"type": "string", "minLength": 1},
    "signal": {"type": ["integer", "string"]},
    "symbol": {"type": "string"},
    "segment": {"type": "string"},
    "signalId": {"type": "string"},
    "secret": {"type": "string"},
    "timestamp": {"type": ["integer", "string"]}
  }
}`

type webhookHandler struct {
	signals SignalService
	secret  string
	schema  *jsonschema.Schema
}

func newWebhookHandler(signals SignalService, secret string) (*webhookHandler, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", strings.NewReader(webhookSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("webhook.json")
	if err != nil {
		return nil, err
	}
	return &webhookHandler{signals: signals, secret: secret, schema: schema}, nil
}

// handle admits the signal synchronously so the caller learns about
// duplicates and validation failures, then detaches the fan-out so the
// alert sender never waits on broker calls.
func (h *webhookHandler) handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" || !gjson.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be valid JSON"})
		return
	}
	parsed := gjson.Parse(raw)
	if !h.authorized(c, parsed) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}
	if err := h.validate(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := coercePayload(parsed, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, err := h.signals.Admit(c.Request.Context(), payload)
	switch {
	case err == nil:
	case errors.Is(err, intake.ErrDuplicateSignal):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	case errors.Is(err, intake.ErrStrategyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, intake.ErrInvalidSignal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		logger.Errorf("webhook admit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signal not admitted"})
		return
	}

	// Fan-out runs detached from the request so broker latency never
	// backs up the alert sender.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := h.signals.ExecuteForSignal(ctx, sig); err != nil {
			logger.Errorf("fan-out for signal %d failed: %v", sig.ID, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "signalLogId": sig.ID})
}

// authorized checks the shared secret from the header first, then the
// body. An empty configured secret disables the check.
func (h *webhookHandler) authorized(c *gin.Context, parsed gjson.Result) bool {
	if h.secret == "" {
		return true
	}
	if got := strings.TrimSpace(c.GetHeader("X-Webhook-Secret")); got != "" {
		return got == h.secret
	}
	return strings.TrimSpace(parsed.Get("secret").String()) == h.secret
}

func (h *webhookHandler) validate(raw string) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return errors.New("body must be a JSON object")
	}
	if err := h.schema.Validate(doc); err != nil {
		return errors.New("payload rejected: " + err.Error())
	}
	return nil
}

// coercePayload extracts the fields, tolerating quoted numbers for
// signal and timestamp.
func coercePayload(parsed gjson.Result, raw []byte) (intake.Payload, error) {
	signalField := parsed.Get("signal")
	signal := int(signalField.Int())
	if signalField.Type == gjson.String {
		trimmed := strings.TrimSpace(signalField.String())
		if trimmed == "" {
			return intake.Payload{}, errors.New("signal cannot be empty")
		}
		if !isIntLiteral(trimmed) {
			return intake.Payload{}, errors.New("signal must be an integer")
		}
		signal = int(gjson.Parse(trimmed).Int())
	}
	var ts time.Time
	if tsField := parsed.Get("timestamp"); tsField.Exists() {
		ts = coerceTimestamp(tsField)
	}
	return intake.Payload{
		StrategyID: strings.TrimSpace(parsed.Get("strategyId").String()),
		Signal:     signal,
		Symbol:     strings.TrimSpace(parsed.Get("symbol").String()),
		Segment:    strings.TrimSpace(parsed.Get("segment").String()),
		SignalID:   strings.TrimSpace(parsed.Get("signalId").String()),
		Timestamp:  ts,
		Raw:        raw,
	}, nil
}

func isIntLiteral(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 && len(s) > 1 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// coerceTimestamp accepts unix seconds, unix millis and RFC 3339.
func coerceTimestamp(field gjson.Result) time.Time {
	if field.Type == gjson.Number {
		return unixFlexible(field.Int())
	}
	s := strings.TrimSpace(field.String())
	if s == "" {
		return time.Time{}
	}
	if isIntLiteral(s) {
		return unixFlexible(gjson.Parse(s).Int())
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func unixFlexible(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	// values this large can only be milliseconds
	if v > 1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}
