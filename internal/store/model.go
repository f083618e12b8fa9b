package store

import (
	"time"

	"gorm.io/datatypes"
)

// OrderModel mirrors one ledger order row. Prices and quantities are stored
// as decimal strings; sqlite floats would lose the exactness the ledger
// invariants rely on.
type OrderModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Token      string `gorm:"uniqueIndex;size:64"`
	OrderID    string `gorm:"index;size:64"`
	AccountID  string `gorm:"index;size:64"`
	Instrument string `gorm:"index;size:32"`
	Side       string `gorm:"size:8"`
	Kind       string `gorm:"size:16"`
	Role       string `gorm:"size:8"`
	Market     bool
	Price      string `gorm:"size:32"`
	Quantity   string `gorm:"size:32"`
	Filled     string `gorm:"size:32"`
	Unfilled   string `gorm:"size:32"`
	Status     string `gorm:"size:20"`

	SubmittedAt time.Time
	UpdatedAt   time.Time
}

func (OrderModel) TableName() string { return "orders" }

// FillModel is one execution row, append-only.
type FillModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	OrderID  string `gorm:"index;size:64"`
	Quantity string `gorm:"size:32"`
	Price    string `gorm:"size:32"`
	FilledAt time.Time
}

func (FillModel) TableName() string { return "fills" }

// BracketModel mirrors one bracket, upserted on every transition.
type BracketModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	AccountID  string `gorm:"uniqueIndex:idx_bracket_key;size:64"`
	Instrument string `gorm:"uniqueIndex:idx_bracket_key;size:32"`
	State      string `gorm:"size:24"`
	Side       string `gorm:"size:8"`

	EntryToken    string `gorm:"size:64"`
	EntryOrderID  string `gorm:"size:64"`
	StopToken     string `gorm:"size:64"`
	StopOrderID   string `gorm:"size:64"`
	TargetToken   string `gorm:"size:64"`
	TargetOrderID string `gorm:"size:64"`

	EntryPrice  string `gorm:"size:32"`
	FilledQty   string `gorm:"size:32"`
	BreakEven   bool
	Escalated   bool
	CloseReason string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BracketModel) TableName() string { return "brackets" }

// EventModel journals the fact events for audit and post-mortems.
type EventModel struct {
	ID        string         `gorm:"primaryKey;size:64"`
	Type      string         `gorm:"index;size:32"`
	Payload   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"index"`
}

func (EventModel) TableName() string { return "events" }

// MarkerModel is a tiny key/value table; the risk gate's trading-day
// boundary lives here.
type MarkerModel struct {
	Name      string `gorm:"primaryKey;size:32"`
	Value     string `gorm:"size:64"`
	UpdatedAt time.Time
}

func (MarkerModel) TableName() string { return "markers" }
