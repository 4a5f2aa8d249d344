package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// ErrStaleOrderUpdate is returned when a compare-and-set order update finds
// the row no longer in the expected status.
var ErrStaleOrderUpdate = errors.New("order row changed since read")

// OrderRepository handles read/write operations for ledger orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main
// read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order row. The given order will be updated with the
// generated ID and timestamps. A unique-constraint violation on
// client_order_id surfaces as gorm.ErrDuplicatedKey.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":            "OrderRepository",
		"op":              "Create",
		"client_order_id": order.ClientOrderID,
		"ticker":          order.Ticker,
		"side":            order.Side,
		"qty":             order.Quantity,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "Create",
			"client_order_id": order.ClientOrderID,
		}).WithError(err).Error("Failed to create order")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")
		return nil, err
	}
	return &order, nil
}

// FindByVenueOrderID fetches an order by the venue-assigned identifier.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByVenueOrderID(ctx context.Context, venueOrderID string) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("venue_order_id = ?", venueOrderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":           "OrderRepository",
			"op":             "FindByVenueOrderID",
			"venue_order_id": venueOrderID,
		}).WithError(err).Error("Failed to fetch order by venue order ID")
		return nil, err
	}
	return &order, nil
}

// FindByClientOrderID fetches an order by the locally generated identifier
// used to correlate local intent with venue confirmation.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByClientOrderID(ctx context.Context, clientOrderID string) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("client_order_id = ?", clientOrderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "FindByClientOrderID",
			"client_order_id": clientOrderID,
		}).WithError(err).Error("Failed to fetch order by client order ID")
		return nil, err
	}
	return &order, nil
}

// FindLatest returns the latest orders, newest first, optionally filtered by
// strategy.
func (r *OrderRepository) FindLatest(ctx context.Context, strategyName string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}

	q := r.db.WithContext(ctx).Order("submitted_at DESC, id DESC").Limit(limit)
	if strategyName != "" {
		q = q.Where("strategy_name = ?", strategyName)
	}

	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindLatest",
			"strategy": strategyName,
			"limit":    limit,
		}).WithError(err).Error("Failed to fetch latest orders")
		return nil, err
	}
	return orders, nil
}

// ListOpen returns all orders still awaiting a terminal venue state.
func (r *OrderRepository) ListOpen(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{
			model.OrderStatusSubmitted,
			model.OrderStatusPending,
			model.OrderStatusPartiallyFilled,
		}).
		Order("submitted_at ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "ListOpen",
		}).WithError(err).Error("Failed to list open orders")
		return nil, err
	}
	return orders, nil
}

// VenueUpdate carries the venue-observed fields the reconciler is allowed
// to merge into an order row.
type VenueUpdate struct {
	VenueOrderID   *string
	Status         string
	FilledQuantity decimal.Decimal
	FilledAvgPrice *decimal.Decimal
	Commission     *decimal.Decimal
	VenueMessage   string
	FilledAt       *time.Time
	CanceledAt     *time.Time
}

// ApplyVenueUpdate mutates a single order row with a compare-and-set on the
// previously read status, so concurrent writers cannot interleave. Returns
// ErrStaleOrderUpdate when the row moved underneath us; the caller re-reads
// and retries on the next cycle, which is safe because updates are
// idempotent.
func (r *OrderRepository) ApplyVenueUpdate(ctx context.Context, orderID uint, fromStatus string, upd VenueUpdate) error {
	fields := map[string]interface{}{
		"status":          upd.Status,
		"filled_quantity": upd.FilledQuantity,
	}
	if upd.VenueOrderID != nil {
		fields["venue_order_id"] = *upd.VenueOrderID
	}
	if upd.FilledAvgPrice != nil {
		fields["filled_avg_price"] = *upd.FilledAvgPrice
	}
	if upd.Commission != nil {
		fields["commission"] = *upd.Commission
	}
	if upd.VenueMessage != "" {
		fields["venue_message"] = upd.VenueMessage
	}
	if upd.FilledAt != nil {
		fields["filled_at"] = *upd.FilledAt
	}
	if upd.CanceledAt != nil {
		fields["canceled_at"] = *upd.CanceledAt
	}

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, fromStatus).
		Updates(fields)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "ApplyVenueUpdate",
			"order_id": orderID,
			"from":     fromStatus,
			"to":       upd.Status,
		}).WithError(res.Error).Error("Failed to apply venue update")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOrderUpdate
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "OrderRepository",
		"op":         "ApplyVenueUpdate",
		"order_id":   orderID,
		"from":       fromStatus,
		"to":         upd.Status,
		"filled_qty": upd.FilledQuantity,
	}).Info("Order updated from venue state")

	return nil
}

// OrderStatistics aggregates order counts and fill metrics, optionally
// filtered by strategy.
type OrderStatistics struct {
	TotalOrders         int64           `json:"total_orders"`
	FilledOrders        int64           `json:"filled_orders"`
	CanceledOrders      int64           `json:"canceled_orders"`
	RejectedOrders      int64           `json:"rejected_orders"`
	OpenOrders          int64           `json:"open_orders"`
	TotalFilledQuantity decimal.Decimal `json:"total_filled_quantity"`
	TotalCommission     decimal.Decimal `json:"total_commission"`
	FillRatePct         decimal.Decimal `json:"fill_rate_pct"`
}

// Statistics computes order statistics over the full ledger history.
func (r *OrderRepository) Statistics(ctx context.Context, strategyName string) (*OrderStatistics, error) {
	type row struct {
		Status         string
		N              int64
		FilledQuantity decimal.Decimal
		Commission     decimal.Decimal
	}

	q := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("status, COUNT(*) AS n, COALESCE(SUM(filled_quantity), 0) AS filled_quantity, COALESCE(SUM(commission), 0) AS commission").
		Group("status")
	if strategyName != "" {
		q = q.Where("strategy_name = ?", strategyName)
	}

	var rows []row
	if err := q.Find(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Statistics",
			"strategy": strategyName,
		}).WithError(err).Error("Failed to compute order statistics")
		return nil, err
	}

	stats := &OrderStatistics{
		TotalFilledQuantity: decimal.Zero,
		TotalCommission:     decimal.Zero,
		FillRatePct:         decimal.Zero,
	}
	for _, rr := range rows {
		stats.TotalOrders += rr.N
		stats.TotalFilledQuantity = stats.TotalFilledQuantity.Add(rr.FilledQuantity)
		stats.TotalCommission = stats.TotalCommission.Add(rr.Commission)

		switch rr.Status {
		case model.OrderStatusFilled:
			stats.FilledOrders += rr.N
		case model.OrderStatusCanceled:
			stats.CanceledOrders += rr.N
		case model.OrderStatusRejected:
			stats.RejectedOrders += rr.N
		default:
			stats.OpenOrders += rr.N
		}
	}
	if stats.TotalOrders > 0 {
		stats.FillRatePct = decimal.NewFromInt(stats.FilledOrders).
			Div(decimal.NewFromInt(stats.TotalOrders)).
			Mul(decimal.NewFromInt(100))
	}

	return stats, nil
}
