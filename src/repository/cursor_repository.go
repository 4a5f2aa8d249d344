package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// CursorRepository persists per-entity reconciliation high-water marks.
type CursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new repository instance using the main
// read/write database.
func NewCursorRepository() *CursorRepository {
	return &CursorRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CursorRepository) WithDB(db *gorm.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get fetches the named cursor. Returns (nil, nil) when no cursor has been
// recorded yet; callers fall back to the bounded lookback window.
func (r *CursorRepository) Get(ctx context.Context, name string) (*model.ReconciliationCursor, error) {
	var cursor model.ReconciliationCursor

	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "CursorRepository",
			"op":   "Get",
			"name": name,
		}).WithError(err).Error("Failed to fetch reconciliation cursor")
		return nil, err
	}
	return &cursor, nil
}

// Advance upserts the named cursor. Called only after a cycle completes
// without unrecoverable errors; a skipped cycle leaves the watermark where
// it was so the next cycle re-fetches the same window.
func (r *CursorRepository) Advance(ctx context.Context, name string, watermark time.Time, pageToken string) error {
	cursor := model.ReconciliationCursor{
		Name:      name,
		Watermark: watermark,
		PageToken: pageToken,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"watermark", "page_token"}),
	}).Create(&cursor).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "CursorRepository",
			"op":        "Advance",
			"name":      name,
			"watermark": watermark,
		}).WithError(err).Error("Failed to advance reconciliation cursor")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "CursorRepository",
		"op":        "Advance",
		"name":      name,
		"watermark": watermark,
	}).Debug("Reconciliation cursor advanced")

	return nil
}
