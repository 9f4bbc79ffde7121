// Package intake admits webhook signals: it validates the payload against
// the strategy catalog, derives identity and the dedupe fingerprint, and
// persists accepted signals before fan-out begins.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradefan/internal/logger"
	symbolpkg "tradefan/internal/pkg/symbol"
	"tradefan/internal/store/gormstore"
	"tradefan/internal/strategy"
	"tradefan/internal/types"
)

var (
	// ErrDuplicateSignal is returned when the signal id or dedupe
	// fingerprint has already been admitted.
	ErrDuplicateSignal = errors.New("duplicate signal")
	// ErrStrategyNotFound is returned for unknown or disabled strategies.
	ErrStrategyNotFound = errors.New("strategy not found")
	// ErrInvalidSignal is returned when the payload fails validation.
	ErrInvalidSignal = errors.New("invalid signal")
)

// dedupeBucketSeconds is the width of the time bucket folded into the
// fingerprint. Retries of the same alert inside one bucket collapse to
// a single admitted signal.
const dedupeBucketSeconds = 60

// Payload is the decoded webhook body handed to Admit.
type Payload struct {
	StrategyID string
	Signal     int
	Symbol     string
	Segment    string
	SignalID   string
	Timestamp  time.Time
	Raw        []byte
}

// Store is the persistence surface intake needs.
type Store interface {
	HasSignal(ctx context.Context, signalID, payloadHash string) (bool, error)
	InsertSignal(ctx context.Context, sig types.Signal, rawPayload []byte) (int64, error)
}

// Catalog resolves strategy ids to their instrument defaults.
type Catalog interface {
	Strategy(id string) (strategy.Strategy, bool)
}

// Intake admits signals into the store.
type Intake struct {
	store   Store
	catalog Catalog
}

func New(store Store, catalog Catalog) *Intake {
	return &Intake{store: store, catalog: catalog}
}

// Admit validates, dedupes and persists one signal. The returned Signal
// carries the assigned row id. Duplicates yield ErrDuplicateSignal and
// leave the store untouched.
func (i *Intake) Admit(ctx context.Context, p Payload) (types.Signal, error) {
	strategyID := strings.TrimSpace(p.StrategyID)
	if strategyID == "" {
		return types.Signal{}, fmt.Errorf("%w: strategyId is required", ErrInvalidSignal)
	}
	if _, err := types.SignalToSide(p.Signal); err != nil {
		return types.Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	strat, ok := i.catalog.Strategy(strategyID)
	if !ok {
		return types.Signal{}, fmt.Errorf("%w: %s", ErrStrategyNotFound, strategyID)
	}

	// Payload fields win over the catalog defaults when present.
	symbol := strings.TrimSpace(p.Symbol)
	if symbol == "" {
		symbol = strat.Symbol
	}
	segment := strings.ToUpper(strings.TrimSpace(p.Segment))
	if segment == "" {
		segment = strat.Segment
	}
	canonical := symbolpkg.Canonical(symbol)
	if canonical == "" {
		return types.Signal{}, fmt.Errorf("%w: no symbol in payload or strategy %s", ErrInvalidSignal, strategyID)
	}

	receivedAt := p.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	signalID := strings.TrimSpace(p.SignalID)
	if signalID == "" {
		signalID = deriveSignalID(strategyID, p.Signal, receivedAt)
	}
	hash, err := fingerprint(strategyID, p.Signal, canonical, receivedAt)
	if err != nil {
		return types.Signal{}, err
	}

	dup, err := i.store.HasSignal(ctx, signalID, hash)
	if err != nil {
		return types.Signal{}, fmt.Errorf("dedupe check failed: %w", err)
	}
	if dup {
		logger.Infof("signal rejected as duplicate strategy=%s signal_id=%s", strategyID, signalID)
		return types.Signal{}, fmt.Errorf("%w: %s", ErrDuplicateSignal, signalID)
	}

	sig := types.Signal{
		StrategyID:      strategyID,
		Segment:         segment,
		CanonicalSymbol: canonical,
		Value:           p.Signal,
		SignalID:        signalID,
		PayloadHash:     hash,
		ReceivedAt:      receivedAt,
	}
	id, err := i.store.InsertSignal(ctx, sig, p.Raw)
	if err != nil {
		// A concurrent submission can win the insert race after our
		// HasSignal check; the unique indexes settle it.
		if errors.Is(err, gormstore.ErrSignalExists) {
			logger.Infof("signal rejected as duplicate strategy=%s signal_id=%s", strategyID, signalID)
			return types.Signal{}, fmt.Errorf("%w: %s", ErrDuplicateSignal, signalID)
		}
		return types.Signal{}, fmt.Errorf("persist signal failed: %w", err)
	}
	sig.ID = id
	logger.Infof("signal admitted id=%d strategy=%s symbol=%s signal=%d", id, strategyID, canonical, p.Signal)
	return sig, nil
}

// deriveSignalID builds the fallback identity for payloads without one.
func deriveSignalID(strategyID string, signal int, ts time.Time) string {
	return fmt.Sprintf("%s_%d_%d", strategyID, signal, ts.UnixMilli())
}

// fingerprint hashes the semantic identity of a signal. The timestamp is
// folded into a fixed bucket so near-simultaneous retries collide.
func fingerprint(strategyID string, signal int, canonicalSymbol string, ts time.Time) (string, error) {
	payload := struct {
		StrategyID string `json:"strategyId"`
		Signal     int    `json:"signal"`
		Symbol     string `json:"symbol"`
		Bucket     int64  `json:"bucket"`
	}{
		StrategyID: strategyID,
		Signal:     signal,
		Symbol:     canonicalSymbol,
		Bucket:     ts.Unix() / dedupeBucketSeconds,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint signal failed: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
