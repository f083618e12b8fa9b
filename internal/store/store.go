// Package store persists orders, fills, brackets, the event journal and
// the risk day marker in SQLite via GORM. The coordinator writes through
// after every state change and hydrates from here on startup.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"corral/internal/bracket"
	"corral/internal/coord"
	"corral/internal/order"
)

const dayMarkerName = "trading_day"

type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&OrderModel{}, &FillModel{}, &BracketModel{}, &EventModel{}, &MarkerModel{}); err != nil {
		return nil, fmt.Errorf("store: migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveOrder upserts by token; the token exists from the moment of
// submission while the order id arrives only on acceptance.
func (s *Store) SaveOrder(o order.Order) error {
	m := OrderModel{
		Token:       o.Token.String(),
		OrderID:     o.ID,
		AccountID:   o.Request.AccountID,
		Instrument:  o.Request.Instrument,
		Side:        string(o.Request.Side),
		Kind:        string(o.Request.Kind),
		Role:        string(o.Request.Role),
		Market:      o.Request.Price.IsMarket(),
		Quantity:    o.Request.Quantity.String(),
		Filled:      o.Filled.String(),
		Unfilled:    o.Unfilled.String(),
		Status:      string(o.Status),
		SubmittedAt: o.SubmittedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if !o.Request.Price.IsMarket() && !o.Request.Price.IsZero() {
		m.Price = o.Request.Price.Value().String()
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_id", "filled", "unfilled", "status", "updated_at",
		}),
	}).Create(&m).Error
}

func (s *Store) AppendFill(orderID string, f order.Fill) error {
	return s.db.Create(&FillModel{
		OrderID:  orderID,
		Quantity: f.Quantity.String(),
		Price:    f.Price.String(),
		FilledAt: f.At,
	}).Error
}

func (s *Store) SaveBracket(snap bracket.Snapshot) error {
	m := BracketModel{
		AccountID:     snap.AccountID,
		Instrument:    snap.Instrument,
		State:         string(snap.State),
		Side:          string(snap.Side),
		EntryToken:    snap.EntryToken.String(),
		EntryOrderID:  snap.EntryOrderID,
		StopToken:     snap.StopToken.String(),
		StopOrderID:   snap.StopOrderID,
		TargetToken:   snap.TargetToken.String(),
		TargetOrderID: snap.TargetOrderID,
		EntryPrice:    snap.EntryPrice.String(),
		FilledQty:     snap.FilledQty.String(),
		BreakEven:     snap.BreakEven,
		Escalated:     snap.Escalated,
		CloseReason:   snap.CloseReason,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     snap.UpdatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "instrument"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "entry_token", "entry_order_id", "stop_token", "stop_order_id",
			"target_token", "target_order_id", "entry_price", "filled_qty",
			"break_even", "escalated", "close_reason", "updated_at",
		}),
	}).Create(&m).Error
}

func (s *Store) AppendEvent(evt coord.EventEnvelope) error {
	return s.db.Create(&EventModel{
		ID:        evt.ID,
		Type:      string(evt.Type),
		Payload:   []byte(evt.Payload),
		CreatedAt: evt.CreatedAt,
	}).Error
}

// LoadDayMarker returns "" on a fresh database; any other failure must
// propagate since the risk gate treats it as fatal.
func (s *Store) LoadDayMarker() (string, error) {
	var m MarkerModel
	err := s.db.Where("name = ?", dayMarkerName).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Value, nil
}

func (s *Store) SaveDayMarker(day string) error {
	m := MarkerModel{Name: dayMarkerName, Value: day, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&m).Error
}

func (s *Store) listOrders() ([]OrderModel, error) {
	var rows []OrderModel
	if err := s.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) fillsFor(orderID string) ([]FillModel, error) {
	var rows []FillModel
	if err := s.db.Where("order_id = ?", orderID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) openBrackets() ([]BracketModel, error) {
	var rows []BracketModel
	if err := s.db.Where("state <> ?", string(bracket.StateClosed)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func dec(v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
