package gate

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/connectors"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

type orderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	ApplyVenueUpdate(ctx context.Context, orderID uint, fromStatus string, upd repository.VenueUpdate) error
}

type positionRepository interface {
	Get(ctx context.Context, strategyName, ticker string) (*model.Position, error)
	ListOpen(ctx context.Context, strategyName string) ([]model.Position, error)
}

type gateRepository interface {
	Get(ctx context.Context) (*model.TradingGate, error)
	SetActive(ctx context.Context, active bool, reason, changedBy string) (*model.TradingGate, error)
}

type venueClient interface {
	PlaceOrder(ctx context.Context, req *connectors.OrderRequest) (*connectors.VenueOrder, error)
	CancelOrder(ctx context.Context, venueOrderID string) error
}

// Service is the trading gate: the only path that submits orders to the
// venue, always behind the kill switch check.
type Service struct {
	environment string
	orders      orderRepository
	positions   positionRepository
	gate        gateRepository
	venue       venueClient
}

// NewService wires a gate service from repositories and a venue client.
func NewService(orders orderRepository, positions positionRepository, gateRepo gateRepository, venue venueClient) *Service {
	config := GetConfig()
	return &Service{
		environment: config.Environment,
		orders:      orders,
		positions:   positions,
		gate:        gateRepo,
		venue:       venue,
	}
}

// SubmitOrder checks the gate, persists a provisional order row, then calls
// the venue.
//
// Write-ahead semantics: the provisional row is durable before the venue
// call, so a crash between venue call and local confirmation is resolvable
// by the reconciler through client order ID correlation. When the venue
// call fails ambiguously the provisional order is returned together with
// ErrSubmissionUnresolved.
func (s *Service) SubmitOrder(ctx context.Context, req *SubmitRequest) (*model.Order, error) {
	gateState, err := s.gate.Get(ctx)
	if err != nil {
		return nil, err
	}
	if gateState.Active {
		logger.WithFields(map[string]interface{}{
			"strategy": req.StrategyName,
			"ticker":   req.Ticker,
			"reason":   gateState.Reason,
		}).Warn("submission blocked by trading gate")
		return nil, ErrTradingDisabled
	}

	if req.Side == model.OrderSideSell {
		if err := s.validateSell(ctx, req); err != nil {
			return nil, err
		}
	}

	order, err := s.createProvisionalOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	venueOrder, err := s.venue.PlaceOrder(ctx, &connectors.OrderRequest{
		Symbol:        req.Ticker,
		Qty:           req.Quantity,
		Side:          req.Side,
		Type:          req.OrderType,
		TimeInForce:   req.TimeInForce,
		LimitPrice:    req.LimitPrice,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		if ve, ok := connectors.AsVenueError(err); ok && ve.Rejection() {
			return s.markRejected(ctx, order, ve.Message)
		}

		// Outcome unknown: leave the provisional row for the reconciler to
		// resolve against the venue's order list.
		logger.WithError(err).
			WithField("client_order_id", order.ClientOrderID).
			Error("venue call failed, submission unresolved")
		return order, ErrSubmissionUnresolved
	}

	upd := repository.VenueUpdate{
		VenueOrderID:   &venueOrder.ID,
		Status:         model.OrderStatusPending,
		FilledQuantity: order.FilledQuantity,
	}
	if st := venueOrder.LocalStatus(); model.OrderStatusCanAdvance(model.OrderStatusSubmitted, st) {
		upd.Status = st
		upd.FilledQuantity = venueOrder.FilledQty
		upd.FilledAvgPrice = venueOrder.FilledAvgPrice
	}
	if err := s.orders.ApplyVenueUpdate(ctx, order.ID, model.OrderStatusSubmitted, upd); err != nil {
		// The reconciler repairs the row on its next cycle; the venue call
		// already succeeded, so report success to the caller.
		logger.WithError(err).
			WithField("order_id", order.ID).
			Warn("failed to confirm provisional order, reconciler will repair")
	}

	return s.orders.FindByID(ctx, order.ID)
}

func (s *Service) validateSell(ctx context.Context, req *SubmitRequest) error {
	pos, err := s.positions.Get(ctx, req.StrategyName, req.Ticker)
	if err != nil {
		return err
	}
	if pos == nil || pos.Quantity.LessThan(req.Quantity) {
		logger.WithFields(map[string]interface{}{
			"strategy": req.StrategyName,
			"ticker":   req.Ticker,
			"qty":      req.Quantity,
		}).Warn("sell exceeds attributed position")
		return ErrInsufficientPosition
	}
	return nil
}

// createProvisionalOrder inserts the write-ahead row. A unique collision on
// client_order_id aborts that attempt and retries once with a freshly
// generated identifier; the colliding identifier is never reused.
func (s *Service) createProvisionalOrder(ctx context.Context, req *SubmitRequest) (*model.Order, error) {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		order := &model.Order{
			ClientOrderID: NewClientOrderID(s.environment, req.StrategyName, req.Ticker),
			StrategyName:  req.StrategyName,
			Ticker:        req.Ticker,
			Side:          req.Side,
			OrderType:     req.OrderType,
			AssetClass:    req.AssetClass,
			TimeInForce:   req.TimeInForce,
			Quantity:      req.Quantity,
			LimitPrice:    req.LimitPrice,
			Status:        model.OrderStatusSubmitted,
			SubmittedAt:   time.Now().UTC(),
		}

		err := s.orders.Create(ctx, order)
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}

		logger.WithField("client_order_id", order.ClientOrderID).
			Warn("client order ID collision, regenerating")
	}
	return nil, lastErr
}

func (s *Service) markRejected(ctx context.Context, order *model.Order, venueMessage string) (*model.Order, error) {
	now := time.Now().UTC()
	err := s.orders.ApplyVenueUpdate(ctx, order.ID, model.OrderStatusSubmitted, repository.VenueUpdate{
		Status:         model.OrderStatusRejected,
		FilledQuantity: order.FilledQuantity,
		VenueMessage:   venueMessage,
		CanceledAt:     &now,
	})
	if err != nil {
		logger.WithError(err).
			WithField("order_id", order.ID).
			Error("failed to record venue rejection")
	}

	rejected, ferr := s.orders.FindByID(ctx, order.ID)
	if ferr != nil || rejected == nil {
		rejected = order
	}
	return rejected, &RejectionError{ClientOrderID: order.ClientOrderID, VenueMessage: venueMessage}
}

// CancelOrder forwards a cancellation to the venue for a ledger order. The
// resulting canceled state is mirrored back by the reconciler; the ledger
// row is not touched here.
func (s *Service) CancelOrder(ctx context.Context, orderID uint) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.IsTerminal() {
		return nil
	}
	if order.VenueOrderID == nil {
		// Venue never confirmed this order; nothing to cancel remotely.
		return ErrOrderNotFound
	}

	if err := s.venue.CancelOrder(ctx, *order.VenueOrderID); err != nil {
		if errors.Is(err, connectors.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	return nil
}

// ClosePosition submits an opposite-side market order for the full
// attributed quantity. Returns (nil, nil) when there is nothing to close.
func (s *Service) ClosePosition(ctx context.Context, strategyName, ticker string) (*model.Order, error) {
	pos, err := s.positions.Get(ctx, strategyName, ticker)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.IsFlat() {
		logger.WithFields(map[string]interface{}{
			"strategy": strategyName,
			"ticker":   ticker,
		}).Info("no position to close")
		return nil, nil
	}

	side := model.OrderSideSell
	qty := pos.Quantity
	if pos.Quantity.IsNegative() {
		side = model.OrderSideBuy
		qty = pos.Quantity.Neg()
	}

	req, err := NewSubmitRequest(strategyName, ticker, side, model.OrderTypeMarket, qty, nil)
	if err != nil {
		return nil, err
	}
	return s.SubmitOrder(ctx, req)
}

// EmergencyStop closes every open position for the strategy ("" = all) and
// then engages the gate. Closes run before activation because an active
// gate would block them; individual close failures are logged and do not
// abort the rest.
func (s *Service) EmergencyStop(ctx context.Context, strategyName, reason, stoppedBy string) error {
	logger.WithFields(map[string]interface{}{
		"strategy": strategyName,
		"reason":   reason,
	}).Warn("emergency stop initiated")

	positions, err := s.positions.ListOpen(ctx, strategyName)
	if err != nil {
		return err
	}

	for i := range positions {
		pos := positions[i]
		if _, err := s.ClosePosition(ctx, pos.StrategyName, pos.Ticker); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"strategy": pos.StrategyName,
				"ticker":   pos.Ticker,
			}).Error("emergency close failed")
		}
	}

	if _, err := s.gate.SetActive(ctx, true, reason, stoppedBy); err != nil {
		return err
	}

	logger.Warn("emergency stop completed, trading gate engaged")
	return nil
}

// Activate engages the kill switch. Idempotent per (active, reason) pair.
func (s *Service) Activate(ctx context.Context, reason, changedBy string) (*model.TradingGate, error) {
	return s.gate.SetActive(ctx, true, reason, changedBy)
}

// Deactivate releases the kill switch. Idempotent per (active, reason) pair.
func (s *Service) Deactivate(ctx context.Context, reason, changedBy string) (*model.TradingGate, error) {
	return s.gate.SetActive(ctx, false, reason, changedBy)
}

// Status returns the current gate state.
func (s *Service) Status(ctx context.Context) (*model.TradingGate, error) {
	return s.gate.Get(ctx)
}
