package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrAccountNotFound = errors.New("ledger: account not found")

// Store persists accounts, holdings and trade records in SQLite via gorm.
// ApplyTrade is the single transactional write path; everything else is
// read-only or idempotent provisioning.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Account{}, &Holding{}, &TradeRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep contention low while allowing concurrent readers.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureAccount creates the ledger row with the given starting balance if the
// account does not exist yet; an existing account is returned unchanged.
func (s *Store) EnsureAccount(ctx context.Context, id string, startingBalance int64) (Account, error) {
	now := time.Now().Unix()
	acct := Account{
		ID:              id,
		CashBalance:     startingBalance,
		StartingBalance: startingBalance,
		CreatedAtUnix:   now,
		UpdatedAtUnix:   now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&acct).Error
	if err != nil {
		return Account{}, err
	}
	return s.Account(ctx, id)
}

func (s *Store) Account(ctx context.Context, id string) (Account, error) {
	var acct Account
	err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *Store) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	var out []Holding
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("symbol asc").
		Find(&out).Error
	return out, err
}

func (s *Store) Holding(ctx context.Context, accountID, sym string) (Holding, bool, error) {
	var h Holding
	err := s.db.WithContext(ctx).
		First(&h, "account_id = ? AND symbol = ?", accountID, sym).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Holding{}, false, nil
	}
	if err != nil {
		return Holding{}, false, err
	}
	return h, true, nil
}

// Trades returns an account's trade records, newest first.
func (s *Store) Trades(ctx context.Context, accountID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []TradeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("executed_at_ms desc, id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TradeApplication is the precomputed outcome of one order, applied
// all-or-nothing against a single account.
type TradeApplication struct {
	AccountID      string
	NewCashBalance int64
	UpsertHolding  *Holding
	RemoveSymbol   string
	Record         TradeRecord
}

// ApplyTrade writes the balance, holding change and trade record in one
// transaction. Any failure rolls everything back, leaving the ledger
// byte-for-byte unchanged.
func (s *Store) ApplyTrade(ctx context.Context, app TradeApplication) error {
	if app.NewCashBalance < 0 {
		return fmt.Errorf("ledger: refusing negative balance %d for account %s", app.NewCashBalance, app.AccountID)
	}
	now := time.Now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("id = ?", app.AccountID).
			Updates(map[string]any{
				"cash_balance": app.NewCashBalance,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		if app.UpsertHolding != nil {
			h := *app.UpsertHolding
			h.AccountID = app.AccountID
			h.UpdatedAtUnix = now
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&h).Error; err != nil {
				return err
			}
		}
		if app.RemoveSymbol != "" {
			if err := tx.Where("account_id = ? AND symbol = ?", app.AccountID, app.RemoveSymbol).
				Delete(&Holding{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&app.Record).Error
	})
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
