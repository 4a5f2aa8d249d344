package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// GateRepository handles the singleton trading gate row and its audit trail.
type GateRepository struct {
	db *gorm.DB
}

// NewGateRepository creates a new repository instance using the main
// read/write database.
func NewGateRepository() *GateRepository {
	return &GateRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GateRepository) WithDB(db *gorm.DB) *GateRepository {
	return &GateRepository{db: db}
}

// Get returns the current gate state, creating the singleton row if it does
// not exist yet.
func (r *GateRepository) Get(ctx context.Context) (*model.TradingGate, error) {
	gate := model.TradingGate{
		ID:        model.TradingGateRowID,
		Active:    false,
		Reason:    "initialized",
		ChangedAt: time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).
		Where("id = ?", model.TradingGateRowID).
		FirstOrCreate(&gate).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "GateRepository",
			"op":   "Get",
		}).WithError(err).Error("Failed to fetch trading gate")
		return nil, err
	}
	return &gate, nil
}

// SetActive flips the gate under a row lock. The transition audit row is
// written in the same transaction, before any externally visible response,
// so a crash leaves either both writes or neither. Idempotent per
// (active, reason) pair: a no-op flip still records nothing and succeeds.
func (r *GateRepository) SetActive(ctx context.Context, active bool, reason, changedBy string) (*model.TradingGate, error) {
	var gate model.TradingGate

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", model.TradingGateRowID).
			First(&gate).Error; err != nil {
			return err
		}

		if gate.Active == active && gate.Reason == reason {
			// Already in the requested state; nothing to record.
			return nil
		}

		now := time.Now().UTC()
		gate.Active = active
		gate.Reason = reason
		gate.ChangedAt = now

		if err := tx.Model(&model.TradingGate{}).
			Where("id = ?", model.TradingGateRowID).
			Updates(map[string]interface{}{
				"active":     active,
				"reason":     reason,
				"changed_at": now,
			}).Error; err != nil {
			return err
		}

		return tx.Create(&model.GateTransition{
			Active:    active,
			Reason:    reason,
			ChangedBy: changedBy,
		}).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "GateRepository",
			"op":     "SetActive",
			"active": active,
			"reason": reason,
		}).WithError(err).Error("Failed to flip trading gate")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "GateRepository",
		"op":     "SetActive",
		"active": active,
		"reason": reason,
	}).Warn("Trading gate state set")

	return &gate, nil
}

// Transitions returns the most recent gate flips, newest first.
func (r *GateRepository) Transitions(ctx context.Context, limit int) ([]model.GateTransition, error) {
	if limit <= 0 {
		limit = 20
	}

	var transitions []model.GateTransition
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&transitions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "GateRepository",
			"op":   "Transitions",
		}).WithError(err).Error("Failed to list gate transitions")
		return nil, err
	}
	return transitions, nil
}
