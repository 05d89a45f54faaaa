package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bluesky-social/parrot/util/cliutil"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

type LedgerEntry struct {
	Kind      string `gorm:"primaryKey"`
	Subject   string `gorm:"primaryKey"`
	CreatedAt time.Time
}

type LedgerCursor struct {
	Account   string `gorm:"primaryKey"`
	LastSeen  string
	UpdatedAt time.Time
}

// Store backed by a SQL database (sqlite or postgres) via gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Opens a database with the same URL conventions as other services ("sqlite://path", "postgres://...").
func OpenGormStore(dburl string) (*GormStore, error) {
	db, err := cliutil.SetupDatabase(dburl, 4)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	return openGormStore(db)
}

// Instruments and migrates a freshly opened database. The database is closed if either step fails.
func openGormStore(db *gorm.DB) (*GormStore, error) {
	s, err := func() (*GormStore, error) {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("instrumenting ledger database: %w", err)
		}
		return NewGormStore(db)
	}()
	if err != nil {
		if sqldb, derr := db.DB(); derr == nil {
			sqldb.Close()
		}
		return nil, err
	}
	return s, nil
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&LedgerEntry{}, &LedgerCursor{}); err != nil {
		return nil, fmt.Errorf("migrating ledger tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (*Record, error) {
	rec := NewRecord()

	var entries []LedgerEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	for _, e := range entries {
		rec.add(Kind(e.Kind), e.Subject)
	}

	var cursors []LedgerCursor
	if err := s.db.WithContext(ctx).Find(&cursors).Error; err != nil {
		return nil, err
	}
	for _, c := range cursors {
		rec.Cursors[c.Account] = c.LastSeen
	}
	return rec, nil
}

func (s *GormStore) Append(ctx context.Context, kind Kind, id string) error {
	entry := LedgerEntry{
		Kind:    string(kind),
		Subject: id,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
}

func (s *GormStore) PutCursor(ctx context.Context, account, id string) error {
	cur := LedgerCursor{
		Account:  account,
		LastSeen: id,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "updated_at"}),
	}).Create(&cur).Error
}

func (s *GormStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
