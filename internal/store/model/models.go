package model

import (
	"gorm.io/datatypes"
)

type SignalModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	StrategyID      string         `gorm:"column:strategy_id;index"`
	Segment         string         `gorm:"column:segment"`
	CanonicalSymbol string         `gorm:"column:canonical_symbol"`
	SignalValue     int            `gorm:"column:signal_value"`
	SignalID        string         `gorm:"column:signal_id;uniqueIndex"`
	PayloadHash     string         `gorm:"column:payload_hash;uniqueIndex"`
	Payload         datatypes.JSON `gorm:"column:payload;type:TEXT"`
	ReceivedAtUnix  int64          `gorm:"column:received_at"`
}

func (SignalModel) TableName() string { return "signal_logs" }

type SubscriptionModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	UserID        int64   `gorm:"column:user_id;uniqueIndex:idx_sub_user_strategy,priority:1"`
	StrategyID    string  `gorm:"column:strategy_id;uniqueIndex:idx_sub_user_strategy,priority:2"`
	Qty           float64 `gorm:"column:qty"`
	Lots          float64 `gorm:"column:lots"`
	IsActive      bool    `gorm:"column:is_active;index"`
	SLEnabled     bool    `gorm:"column:sl_enabled"`
	SLType        string  `gorm:"column:sl_type"`
	SLValue       float64 `gorm:"column:sl_value"`
	TPEnabled     bool    `gorm:"column:tp_enabled"`
	TPType        string  `gorm:"column:tp_type"`
	TPValue       float64 `gorm:"column:tp_value"`
	ExitMode      string  `gorm:"column:exit_mode"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
}

func (SubscriptionModel) TableName() string { return "strategy_subscriptions" }

// APIKeyModel holds one broker credential set per user and segment.
// Status follows the account service convention: "Active" / "Inactive".
type APIKeyModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	UserID        int64  `gorm:"column:user_id;index"`
	Broker        string `gorm:"column:broker"`
	Segment       string `gorm:"column:segment"`
	APIKey        string `gorm:"column:api_key"`
	APISecret     string `gorm:"column:api_secret"`
	Passphrase    string `gorm:"column:passphrase"`
	Status        string `gorm:"column:status;index"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (APIKeyModel) TableName() string { return "apikeys" }

type PositionModel struct {
	ID              int64    `gorm:"column:id;primaryKey"`
	UserID          int64    `gorm:"column:user_id;index:idx_pos_key,priority:1"`
	StrategyID      string   `gorm:"column:strategy_id;index:idx_pos_key,priority:2"`
	Segment         string   `gorm:"column:segment"`
	CanonicalSymbol string   `gorm:"column:canonical_symbol;index:idx_pos_key,priority:3"`
	BrokerSymbol    string   `gorm:"column:broker_symbol"`
	Side            string   `gorm:"column:side"`
	Qty             float64  `gorm:"column:qty"`
	EntryPrice      float64  `gorm:"column:entry_price"`
	SLPrice         *float64 `gorm:"column:sl_price"`
	TPPrice         *float64 `gorm:"column:tp_price"`
	Status          string   `gorm:"column:status;index"`
	EntryOrderID    string   `gorm:"column:entry_order_id"`
	ExitOrderID     string   `gorm:"column:exit_order_id"`
	ExitPrice       *float64 `gorm:"column:exit_price"`
	ExitReason      string   `gorm:"column:exit_reason"`
	PnL             *float64 `gorm:"column:pnl"`
	PnLPercentage   *float64 `gorm:"column:pnl_percentage"`
	CreatedAtUnix   int64    `gorm:"column:created_at"`
	ExitAtUnix      *int64   `gorm:"column:exit_at"`
	UpdatedAtUnix   int64    `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type ExecutionLogModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	SignalLogID   int64  `gorm:"column:signal_log_id;index"`
	UserID        int64  `gorm:"column:user_id;index"`
	StrategyID    string `gorm:"column:strategy_id"`
	Decision      string `gorm:"column:decision"`
	Reason        string `gorm:"column:reason"`
	CurrentSide   string `gorm:"column:current_side"`
	TargetSide    string `gorm:"column:target_side"`
	Error         string `gorm:"column:error"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (ExecutionLogModel) TableName() string { return "execution_logs" }
