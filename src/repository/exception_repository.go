package repository

import (
	"context"
	"encoding/json"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// ExceptionRepository handles persistence of system exceptions and
// correctness alarms (e.g. reconciliation divergence).
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(ctx context.Context, exc *model.Exception) error {
	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// Capture records an alarm with structured context. Persistence failures are
// logged and swallowed: an audit write must never take down the path that
// raised the alarm.
func (r *ExceptionRepository) Capture(ctx context.Context, module, method, level string, err error, context map[string]interface{}) {
	message := ""
	if err != nil {
		message = err.Error()
	}

	contextJSON := ""
	if len(context) > 0 {
		if b, merr := json.Marshal(context); merr == nil {
			contextJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service: "tradeledger",
		Module:  module,
		Method:  method,
		Message: message,
		Level:   level,
		Context: contextJSON,
	}

	if cerr := r.Create(ctx, exc); cerr != nil {
		logger.WithError(cerr).
			WithField("module", module).
			WithField("method", method).
			Error("Failed to persist exception")
	}
}
