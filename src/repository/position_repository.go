package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// PositionRepository handles read/write operations for strategy-attributed
// positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main
// read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Get fetches the position for a strategy and ticker.
// Returns (nil, nil) if no row exists.
func (r *PositionRepository) Get(ctx context.Context, strategyName, ticker string) (*model.Position, error) {
	var pos model.Position

	err := r.db.WithContext(ctx).
		Where("strategy_name = ? AND ticker = ?", strategyName, ticker).
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "Get",
			"strategy": strategyName,
			"ticker":   ticker,
		}).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	return &pos, nil
}

// Upsert writes quantity and avg entry price keyed on the
// (strategy_name, ticker) unique constraint. Row-scoped so read traffic is
// never blocked by a slow poll cycle, and idempotent so re-delivered venue
// events have at-most-once effect.
func (r *PositionRepository) Upsert(ctx context.Context, pos *model.Position) error {
	pos.LastUpdated = time.Now().UTC()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_name"}, {Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity", "avg_entry_price", "last_updated",
		}),
	}).Create(pos).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "Upsert",
			"strategy": pos.StrategyName,
			"ticker":   pos.Ticker,
			"qty":      pos.Quantity,
		}).WithError(err).Error("Failed to upsert position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "PositionRepository",
		"op":        "Upsert",
		"strategy":  pos.StrategyName,
		"ticker":    pos.Ticker,
		"qty":       pos.Quantity,
		"avg_entry": pos.AvgEntryPrice,
	}).Info("Position upserted")

	return nil
}

// UpdateQuoteByTicker refreshes the cached current price on every strategy
// row holding the ticker. Runs on the quote cadence, independent of the
// reconciliation cycle.
func (r *PositionRepository) UpdateQuoteByTicker(ctx context.Context, ticker string, price decimal.Decimal, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("ticker = ?", ticker).
		Updates(map[string]interface{}{
			"current_price": price,
			"quote_at":      at,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "UpdateQuoteByTicker",
			"ticker": ticker,
		}).WithError(err).Error("Failed to refresh cached quote")
		return err
	}
	return nil
}

// ListAll returns positions ordered by strategy and ticker, optionally
// filtered by strategy. Zero-quantity rows are included; they are retained
// for history.
func (r *PositionRepository) ListAll(ctx context.Context, strategyName string) ([]model.Position, error) {
	q := r.db.WithContext(ctx).Order("strategy_name, ticker")
	if strategyName != "" {
		q = q.Where("strategy_name = ?", strategyName)
	}

	var positions []model.Position
	if err := q.Find(&positions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "ListAll",
			"strategy": strategyName,
		}).WithError(err).Error("Failed to list positions")
		return nil, err
	}
	return positions, nil
}

// ListOpen returns only positions with non-zero quantity.
func (r *PositionRepository) ListOpen(ctx context.Context, strategyName string) ([]model.Position, error) {
	q := r.db.WithContext(ctx).
		Where("quantity <> 0").
		Order("strategy_name, ticker")
	if strategyName != "" {
		q = q.Where("strategy_name = ?", strategyName)
	}

	var positions []model.Position
	if err := q.Find(&positions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "ListOpen",
			"strategy": strategyName,
		}).WithError(err).Error("Failed to list open positions")
		return nil, err
	}
	return positions, nil
}

// OpenTickers returns the distinct tickers with non-zero quantity, the set
// the quote refresher keeps fresh.
func (r *PositionRepository) OpenTickers(ctx context.Context) ([]string, error) {
	var tickers []string

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("quantity <> 0").
		Distinct().
		Pluck("ticker", &tickers).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "OpenTickers",
		}).WithError(err).Error("Failed to list open tickers")
		return nil, err
	}
	return tickers, nil
}
