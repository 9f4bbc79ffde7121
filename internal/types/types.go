package types

import (
	"fmt"
	"time"
)

// Side is the direction of a position, or FLAT when none is held.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the reversed side. FLAT has no opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// SignalToSide maps the wire-level signal value to a target side.
// 1 -> LONG, -1 -> SHORT, 0 -> FLAT. Anything else is rejected.
func SignalToSide(signal int) (Side, error) {
	switch signal {
	case 1:
		return SideLong, nil
	case -1:
		return SideShort, nil
	case 0:
		return SideFlat, nil
	default:
		return "", fmt.Errorf("invalid signal value: %d", signal)
	}
}

// Signal is an admitted, persisted trading signal. Immutable once stored.
type Signal struct {
	ID              int64
	StrategyID      string
	Segment         string
	CanonicalSymbol string
	Value           int
	SignalID        string
	PayloadHash     string
	ReceivedAt      time.Time
}

// TargetSide resolves the side this signal asks subscribers to hold.
func (s Signal) TargetSide() (Side, error) {
	return SignalToSide(s.Value)
}

// SLTPType selects how a stop-loss/take-profit value is interpreted.
type SLTPType string

const (
	SLTPPoints  SLTPType = "POINTS"
	SLTPPercent SLTPType = "PERCENT"
)

// ExitMode controls which paths may close a subscriber's position.
type ExitMode string

const (
	// ExitModeSLTP allows the price monitor to force-close positions.
	ExitModeSLTP ExitMode = "SLTP"
	// ExitModeSignalOnly restricts exits to signal-driven closes.
	ExitModeSignalOnly ExitMode = "SIGNAL_ONLY"
)

// Credential is one user's broker credential set for a segment.
type Credential struct {
	ID         int64
	UserID     int64
	Broker     string
	Segment    string
	APIKey     string
	APISecret  string
	Passphrase string
	Active     bool
}

// Subscription is a user's opt-in to a strategy, joined with the active
// broker credential for the signal's segment when one exists.
type Subscription struct {
	ID         int64
	UserID     int64
	StrategyID string
	Qty        float64
	Lots       float64
	Active     bool
	SLEnabled  bool
	SLType     SLTPType
	SLValue    float64
	TPEnabled  bool
	TPType     SLTPType
	TPValue    float64
	ExitMode   ExitMode

	// Credential is nil when the user has no active credential for the
	// segment; broker resolution then fails per subscriber, not globally.
	Credential *Credential
}

// OrderQty resolves the quantity for entry orders: qty, then lots, then 1.
func (s Subscription) OrderQty() float64 {
	if s.Qty > 0 {
		return s.Qty
	}
	if s.Lots > 0 {
		return s.Lots
	}
	return 1
}

// PositionStatus is the lifecycle state of a position row.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason records which path closed a position.
type ExitReason string

const (
	ExitReasonSignalZero ExitReason = "SIGNAL_0"
	ExitReasonReversal   ExitReason = "REVERSAL"
	ExitReasonStopLoss   ExitReason = "SL"
	ExitReasonTakeProfit ExitReason = "TP"
)

// Position is a single executed exposure for (user, strategy, symbol).
// At most one OPEN position may exist per key.
type Position struct {
	ID              int64
	UserID          int64
	StrategyID      string
	Segment         string
	CanonicalSymbol string
	BrokerSymbol    string
	Side            Side
	Qty             float64
	EntryPrice      float64
	SLPrice         *float64
	TPPrice         *float64
	Status          PositionStatus
	EntryOrderID    string
	ExitOrderID     string
	ExitPrice       *float64
	ExitReason      ExitReason
	PnL             *float64
	PnLPercentage   *float64
	CreatedAt       time.Time
	ExitAt          *time.Time
}

// Decision is the reconciliation outcome for one (signal, subscriber) pair.
type Decision string

const (
	DecisionEnter   Decision = "ENTER"
	DecisionExit    Decision = "EXIT"
	DecisionReverse Decision = "REVERSE"
	DecisionSkip    Decision = "SKIP"
)

// Reconciliation reasons, one per decision-table row.
const (
	ReasonNoPosition       = "NO_POSITION"
	ReasonAlreadyInTarget  = "ALREADY_IN_TARGET_SIDE"
	ReasonNewEntry         = "NEW_ENTRY"
	ReasonForceExitSignal0 = "FORCE_EXIT_SIGNAL_0"
	ReasonSignalReversal   = "SIGNAL_REVERSAL"
)

// ExecutionLogEntry is the append-only audit record of one evaluation.
type ExecutionLogEntry struct {
	ID          int64
	SignalLogID int64
	UserID      int64
	StrategyID  string
	Decision    Decision
	Reason      string
	CurrentSide Side
	TargetSide  Side
	Error       string
	CreatedAt   time.Time
}
