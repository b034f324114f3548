// Package txlog is the append-only transaction log behind the daily
// reports: every scan, applied action and lockout change lands here as
// an immutable record in a local sqlite database.
package txlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"workshop-scan-backend/internal/model"
	"workshop-scan-backend/internal/scanerr"
)

// typeCodes maps the public transaction type names to their stored codes.
var typeCodes = map[string]int{
	"scan":           model.TransactionScan,
	"action_applied": model.TransactionActionApplied,
	"lockout_change": model.TransactionLockoutChange,
}

// Log defines the transaction-log operations. Like lockouts, the
// subsystem is optional; a disabled log swallows records and refuses
// reports.
type Log interface {
	Record(ctx context.Context, typ string, payload any) error
	Today(ctx context.Context) ([]model.Transaction, error)
	DailyReport(ctx context.Context) (*Report, error)
	Enabled() bool
}

// NewLog creates a sqlite-backed transaction log.
func NewLog(db *gorm.DB) Log {
	return &gormLog{db: db, now: time.Now}
}

// NewDisabled creates the no-op log used when transaction logging is not
// configured.
func NewDisabled() Log {
	log.Println("Transaction logging is not configured; daily reports will be unavailable.")
	return disabledLog{}
}

type gormLog struct {
	db  *gorm.DB
	now func() time.Time
}

func (l *gormLog) Enabled() bool { return true }

// Record appends one immutable transaction. Unknown types are rejected.
func (l *gormLog) Record(ctx context.Context, typ string, payload any) error {
	code, ok := typeCodes[typ]
	if !ok {
		return fmt.Errorf("unknown transaction type %q", typ)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode transaction payload: %w", err)
	}

	row := model.Transaction{
		Type: code,
		Time: l.now(),
		Data: string(data),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to log %s transaction: %w", typ, err)
	}
	return nil
}

// Today returns every transaction recorded during the local calendar day.
func (l *gormLog) Today(ctx context.Context) ([]model.Transaction, error) {
	now := l.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	var rows []model.Transaction
	err := l.db.WithContext(ctx).
		Where("transaction_time >= ? AND transaction_time < ?", start, end).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read today's transactions: %w", err)
	}
	return rows, nil
}

// Report is the daily aggregate of transaction counts.
type Report struct {
	Scans           int            `json:"scans"`
	Actions         map[string]int `json:"actions"`
	ActionCount     int            `json:"action_count"`
	LockoutsCreated int            `json:"lockouts_created"`
	LockoutsCleared int            `json:"lockouts_cleared"`
}

// actionData is the subset of the action_applied and lockout_change
// payloads the fold cares about.
type actionData struct {
	Action        string `json:"action"`
	NewStateAlias string `json:"new_state_alias"`
}

// Fold aggregates transactions into a report. Pure counting, so the
// result is independent of record order and safe to recompute at any
// point in the day.
func Fold(txs []model.Transaction) *Report {
	report := &Report{Actions: make(map[string]int)}

	for _, tx := range txs {
		switch tx.Type {
		case model.TransactionScan:
			report.Scans++

		case model.TransactionActionApplied:
			report.ActionCount++
			var data actionData
			if err := json.Unmarshal([]byte(tx.Data), &data); err != nil {
				log.Printf("Warning: undecodable action_applied payload in transaction %d: %v", tx.ID, err)
				continue
			}
			name := data.NewStateAlias
			if name == "" {
				name = data.Action
			}
			report.Actions[name]++

		case model.TransactionLockoutChange:
			var data actionData
			if err := json.Unmarshal([]byte(tx.Data), &data); err != nil {
				log.Printf("Warning: undecodable lockout_change payload in transaction %d: %v", tx.ID, err)
				continue
			}
			switch data.Action {
			case "create":
				report.LockoutsCreated++
			case "clear":
				report.LockoutsCleared++
			}
		}
	}

	return report
}

// DailyReport folds today's transactions into the aggregate.
func (l *gormLog) DailyReport(ctx context.Context) (*Report, error) {
	txs, err := l.Today(ctx)
	if err != nil {
		return nil, err
	}
	return Fold(txs), nil
}

type disabledLog struct{}

func (disabledLog) Enabled() bool { return false }

func (disabledLog) Record(context.Context, string, any) error { return nil }

func (disabledLog) Today(context.Context) ([]model.Transaction, error) {
	return nil, scanerr.New(scanerr.CodeDailyReportDisabled, "transaction logging is not configured")
}

func (disabledLog) DailyReport(context.Context) (*Report, error) {
	return nil, scanerr.New(scanerr.CodeDailyReportDisabled, "transaction logging is not configured")
}
