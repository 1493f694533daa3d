package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// AuditStore keeps a queryable log of every executed allocation decision,
// separate from the backtest result store so decision history survives
// result pruning.
type AuditStore struct {
	db *gorm.DB
}

type decisionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_id;index"`
	Timestamp     int64          `gorm:"column:ts;index"`
	HoldingsJSON  datatypes.JSON `gorm:"column:holdings_json"`
	TradesJSON    datatypes.JSON `gorm:"column:trades_json"`
	TradeCount    int            `gorm:"column:trade_count"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (decisionModel) TableName() string { return "decision_log" }

// DecisionEntry is the read-side shape of one audit row.
type DecisionEntry struct {
	ID        int64               `json:"id"`
	RunID     string              `json:"run_id"`
	Timestamp time.Time           `json:"timestamp"`
	Holdings  map[string]float64  `json:"holdings"`
	Trades    []vault.TradeRecord `json:"trades"`
	CreatedAt time.Time           `json:"created_at"`
}

func NewAuditStore(path string) (*AuditStore, error) {
	if path == "" {
		return nil, fmt.Errorf("audit store: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for concurrent HTTP reads while
	// keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordDecision appends one decision row. Satisfies the simulator's
// recorder hook.
func (s *AuditStore) RecordDecision(ctx context.Context, runID string, ts time.Time, holdings map[string]float64, trades []vault.TradeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit store not initialized")
	}
	holdingsJSON, err := json.Marshal(holdings)
	if err != nil {
		return err
	}
	tradesJSON, err := json.Marshal(trades)
	if err != nil {
		return err
	}
	model := decisionModel{
		RunID:         runID,
		Timestamp:     ts.UnixMilli(),
		HoldingsJSON:  datatypes.JSON(holdingsJSON),
		TradesJSON:    datatypes.JSON(tradesJSON),
		TradeCount:    len(trades),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListDecisions returns a run's decisions in execution order.
func (s *AuditStore) ListDecisions(ctx context.Context, runID string, limit int) ([]DecisionEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit store not initialized")
	}
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	var models []decisionModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("ts ASC, id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]DecisionEntry, 0, len(models))
	for _, m := range models {
		entry := DecisionEntry{
			ID:        m.ID,
			RunID:     m.RunID,
			Timestamp: time.UnixMilli(m.Timestamp),
			CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		}
		if len(m.HoldingsJSON) > 0 {
			if err := json.Unmarshal(m.HoldingsJSON, &entry.Holdings); err != nil {
				return nil, err
			}
		}
		if len(m.TradesJSON) > 0 {
			if err := json.Unmarshal(m.TradesJSON, &entry.Trades); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// CountDecisions reports how many decisions a run executed.
func (s *AuditStore) CountDecisions(ctx context.Context, runID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit store not initialized")
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&decisionModel{}).
		Where("run_id = ?", runID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}
