package reconciler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/connectors"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

// ErrCycleInFlight is returned when RunCycle is called while another cycle
// is still running in this process.
var ErrCycleInFlight = errors.New("reconciliation cycle already in flight")

// StrategyUnattributed receives venue rows the ledger cannot attribute to a
// strategy (venue-initiated orders, corrections across unknown strategies).
const StrategyUnattributed = "unattributed"

type orderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByVenueOrderID(ctx context.Context, venueOrderID string) (*model.Order, error)
	FindByClientOrderID(ctx context.Context, clientOrderID string) (*model.Order, error)
	ListOpen(ctx context.Context) ([]model.Order, error)
	ApplyVenueUpdate(ctx context.Context, orderID uint, fromStatus string, upd repository.VenueUpdate) error
}

type positionRepository interface {
	Get(ctx context.Context, strategyName, ticker string) (*model.Position, error)
	Upsert(ctx context.Context, pos *model.Position) error
	ListAll(ctx context.Context, strategyName string) ([]model.Position, error)
}

type cursorRepository interface {
	Get(ctx context.Context, name string) (*model.ReconciliationCursor, error)
	Advance(ctx context.Context, name string, watermark time.Time, pageToken string) error
}

type exceptionSink interface {
	Capture(ctx context.Context, module, method, level string, err error, context map[string]interface{})
}

type venueClient interface {
	ListOrders(ctx context.Context, after time.Time, limit int) ([]connectors.VenueOrder, error)
	ListPositions(ctx context.Context) ([]connectors.VenuePosition, error)
	GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*connectors.VenueOrder, error)
}

// Engine merges venue-reported state into the ledger. It never invents a
// transition the venue has not reported; it only mirrors venue-observed
// states, discarding regressive reports.
type Engine struct {
	orders     orderRepository
	positions  positionRepository
	cursors    cursorRepository
	exceptions exceptionSink
	venue      venueClient

	lookback       time.Duration
	cursorOverlap  time.Duration
	submittedGrace time.Duration
	tolerance      decimal.Decimal
	batchLimit     int

	// Self-exclusion: only one cycle may be in flight per process, even
	// though the upserts would tolerate overlap.
	running atomic.Bool
}

// NewEngine wires an engine from repositories and a venue client.
func NewEngine(orders orderRepository, positions positionRepository, cursors cursorRepository, exceptions exceptionSink, venue venueClient) *Engine {
	config := GetConfig()

	tolerance, err := decimal.NewFromString(config.DivergenceTolerance)
	if err != nil {
		logger.WithError(err).
			WithField("tolerance", config.DivergenceTolerance).
			Warn("invalid divergence tolerance, using default")
		tolerance = decimal.RequireFromString("0.0001")
	}

	return &Engine{
		orders:         orders,
		positions:      positions,
		cursors:        cursors,
		exceptions:     exceptions,
		venue:          venue,
		lookback:       config.LookbackWindow,
		cursorOverlap:  config.CursorOverlap,
		submittedGrace: config.SubmittedGrace,
		tolerance:      tolerance,
		batchLimit:     config.BatchLimit,
	}
}

// RunCycle executes one reconciliation pass. The cycle is all-or-nothing
// with respect to cursor advancement: any venue failure or unrecoverable
// ledger error abandons the cycle and the next one re-fetches the same
// window. Individual row updates are idempotent, so repeating a window is
// safe.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	defer e.running.Store(false)

	started := time.Now().UTC()
	since := e.resolveWindow(ctx, started)

	logger.WithField("since", since).Info("reconciliation cycle started")

	venueOrders, err := e.venue.ListOrders(ctx, since, e.batchLimit)
	if err != nil {
		e.exceptions.Capture(ctx, "reconciler", "ListOrders", "error", err, nil)
		logger.WithError(err).Warn("cycle skipped: venue order list unavailable")
		return err
	}

	seen := make(map[string]struct{}, len(venueOrders))
	active := make(map[string]struct{})
	maxUpdated := time.Time{}
	fatal := false

	for i := range venueOrders {
		vo := &venueOrders[i]
		seen[vo.ClientOrderID] = struct{}{}
		if vo.UpdatedAt != nil && vo.UpdatedAt.After(maxUpdated) {
			maxUpdated = *vo.UpdatedAt
		}

		if err := e.applyVenueOrder(ctx, vo, active); err != nil {
			e.exceptions.Capture(ctx, "reconciler", "applyVenueOrder", "error", err, map[string]interface{}{
				"venue_order_id":  vo.ID,
				"client_order_id": vo.ClientOrderID,
			})
			fatal = true
		}
	}

	if err := e.resolveUnconfirmed(ctx, started, seen, active); err != nil {
		e.exceptions.Capture(ctx, "reconciler", "resolveUnconfirmed", "error", err, nil)
		logger.WithError(err).Warn("unconfirmed submission resolution failed")
		fatal = true
	}

	if err := e.checkVenuePositions(ctx, active); err != nil {
		e.exceptions.Capture(ctx, "reconciler", "checkVenuePositions", "error", err, nil)
		logger.WithError(err).Warn("cycle skipped: venue position list unavailable")
		return err
	}

	if fatal {
		logger.Warn("cycle had unrecoverable errors, cursor not advanced")
		return errors.New("reconciliation cycle incomplete")
	}

	watermark := maxUpdated
	if watermark.IsZero() {
		watermark = started
	}
	watermark = watermark.Add(-e.cursorOverlap)
	if watermark.Before(since) {
		watermark = since
	}
	if err := e.cursors.Advance(ctx, model.CursorOrders, watermark, ""); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"orders_seen": len(venueOrders),
		"watermark":   watermark,
		"elapsed":     time.Since(started),
	}).Info("reconciliation cycle completed")

	return nil
}

// resolveWindow picks the fetch window start: the stored cursor, bounded by
// the lookback fallback when the cursor is missing or stale.
func (e *Engine) resolveWindow(ctx context.Context, now time.Time) time.Time {
	floor := now.Add(-e.lookback)

	cursor, err := e.cursors.Get(ctx, model.CursorOrders)
	if err != nil || cursor == nil {
		return floor
	}
	if cursor.Watermark.Before(floor) {
		logger.WithField("watermark", cursor.Watermark).
			Warn("reconciliation cursor stale, falling back to lookback window")
		return floor
	}
	return cursor.Watermark
}

// applyVenueOrder merges a single venue snapshot into the ledger: locate by
// venue order ID, then client order ID, inserting a defensive row when
// absent; then advance status monotonically and fold any new fill into the
// position. The order row is updated before the position so a concurrent
// reader never observes a filled order with a stale position. The ticker is
// recorded in active so the position check can defer tickers with order
// activity in this window.
func (e *Engine) applyVenueOrder(ctx context.Context, vo *connectors.VenueOrder, active map[string]struct{}) error {
	active[strings.ToUpper(vo.Symbol)] = struct{}{}

	local, err := e.orders.FindByVenueOrderID(ctx, vo.ID)
	if err != nil {
		return err
	}
	if local == nil && vo.ClientOrderID != "" {
		local, err = e.orders.FindByClientOrderID(ctx, vo.ClientOrderID)
		if err != nil {
			return err
		}
	}
	if local == nil {
		local, err = e.insertFromVenue(ctx, vo)
		if err != nil || local == nil {
			return err
		}
	}

	target := vo.LocalStatus()
	if !model.OrderStatusCanAdvance(local.Status, target) {
		logger.WithFields(map[string]interface{}{
			"order_id":     local.ID,
			"local_status": local.Status,
			"venue_status": vo.Status,
		}).Warn("discarding regressive venue report")
		e.exceptions.Capture(ctx, "reconciler", "applyVenueOrder", "warn",
			errors.New("regressive venue order report discarded"),
			map[string]interface{}{
				"order_id":     local.ID,
				"local_status": local.Status,
				"venue_status": vo.Status,
			})
		return nil
	}

	delta := fillDelta(local, vo.FilledQty)
	price := deltaFillPrice(local.FilledQuantity, local.FilledAvgPrice, vo.FilledQty, vo.FilledAvgPrice)

	upd := repository.VenueUpdate{
		VenueOrderID:   &vo.ID,
		Status:         target,
		FilledQuantity: local.FilledQuantity.Add(delta),
		VenueMessage:   vo.FailureReason,
	}
	// A regressed fill figure clamps the delta to zero; its average is just
	// as stale and must not overwrite the row.
	if delta.IsPositive() {
		upd.FilledAvgPrice = vo.FilledAvgPrice
	}
	if target == model.OrderStatusFilled && local.FilledAt == nil {
		upd.FilledAt = timestampOrNow(vo.FilledAt)
	}
	if (target == model.OrderStatusCanceled || target == model.OrderStatusRejected) && local.CanceledAt == nil {
		upd.CanceledAt = timestampOrNow(vo.CanceledAt)
	}

	if err := e.orders.ApplyVenueUpdate(ctx, local.ID, local.Status, upd); err != nil {
		if errors.Is(err, repository.ErrStaleOrderUpdate) {
			// Another writer moved the row; the next cycle re-reads it.
			logger.WithField("order_id", local.ID).
				Debug("order row moved underneath cycle, deferring")
			return nil
		}
		return err
	}

	if delta.IsPositive() {
		if err := e.applyPositionDelta(ctx, local, delta, price); err != nil {
			return err
		}
	}
	return nil
}

// insertFromVenue defensively inserts a ledger row for a venue order the
// ledger has never seen (venue-initiated or previously lost). The strategy
// is recovered from the client order ID when it follows the local format.
func (e *Engine) insertFromVenue(ctx context.Context, vo *connectors.VenueOrder) (*model.Order, error) {
	logger.WithFields(map[string]interface{}{
		"venue_order_id":  vo.ID,
		"client_order_id": vo.ClientOrderID,
		"symbol":          vo.Symbol,
	}).Warn("venue order unknown to ledger, inserting")

	order := &model.Order{
		VenueOrderID:  &vo.ID,
		ClientOrderID: vo.ClientOrderID,
		StrategyName:  strategyFromClientOrderID(vo.ClientOrderID),
		Ticker:        strings.ToUpper(vo.Symbol),
		Side:          vo.Side,
		OrderType:     vo.Type,
		AssetClass:    model.AssetClassEquity,
		TimeInForce:   model.TimeInForceDay,
		Quantity:      vo.Qty,
		LimitPrice:    vo.LimitPrice,
		Status:        model.OrderStatusPending,
		SubmittedAt:   *timestampOrNow(vo.SubmittedAt),
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = "venue-" + vo.ID
	}

	if err := e.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// strategyFromClientOrderID extracts the strategy segment of
// {env}-{strategy}-{ticker}-{suffix}. Identifiers produced elsewhere map to
// the unattributed strategy.
func strategyFromClientOrderID(clientOrderID string) string {
	parts := strings.Split(clientOrderID, "-")
	if len(parts) >= 4 && parts[1] != "" {
		return parts[1]
	}
	return StrategyUnattributed
}

func (e *Engine) applyPositionDelta(ctx context.Context, order *model.Order, delta, fillPrice decimal.Decimal) error {
	pos, err := e.positions.Get(ctx, order.StrategyName, order.Ticker)
	if err != nil {
		return err
	}
	if pos == nil {
		pos = &model.Position{
			StrategyName: order.StrategyName,
			Ticker:       order.Ticker,
		}
	}

	signed := model.SignedQuantity(order.Side, delta)
	pos.Quantity, pos.AvgEntryPrice = ApplyFill(pos.Quantity, pos.AvgEntryPrice, signed, fillPrice)

	return e.positions.Upsert(ctx, pos)
}

// resolveUnconfirmed handles fire-and-forget ambiguity: a submitted order
// whose venue call failed locally is searched for at the venue by client
// order ID before assuming it was never placed.
func (e *Engine) resolveUnconfirmed(ctx context.Context, now time.Time, seen, active map[string]struct{}) error {
	open, err := e.orders.ListOpen(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range open {
		order := &open[i]
		if order.Status != model.OrderStatusSubmitted {
			continue
		}
		if _, ok := seen[order.ClientOrderID]; ok {
			continue
		}
		if now.Sub(order.SubmittedAt) < e.submittedGrace {
			continue
		}

		vo, err := e.venue.GetOrderByClientOrderID(ctx, order.ClientOrderID)
		if err != nil {
			if errors.Is(err, connectors.ErrOrderNotFound) {
				if merr := e.markNeverPlaced(ctx, order); merr != nil && firstErr == nil {
					firstErr = merr
				}
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := e.applyVenueOrder(ctx, vo, active); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) markNeverPlaced(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"order_id":        order.ID,
		"client_order_id": order.ClientOrderID,
	}).Warn("submission never reached venue, rejecting locally")

	now := time.Now().UTC()
	err := e.orders.ApplyVenueUpdate(ctx, order.ID, model.OrderStatusSubmitted, repository.VenueUpdate{
		Status:         model.OrderStatusRejected,
		FilledQuantity: order.FilledQuantity,
		VenueMessage:   "submission never reached venue",
		CanceledAt:     &now,
	})
	if errors.Is(err, repository.ErrStaleOrderUpdate) {
		return nil
	}
	return err
}

// checkVenuePositions is the secondary consistency check: venue-reported
// quantities are compared per ticker against the sum of local strategy
// rows. Beyond tolerance the venue value wins and a discrepancy alarm is
// recorded; it is never silently trusted without logging.
//
// The position snapshot carries no ordering guarantee against the order
// feed, so a ticker with order activity in the current window is deferred:
// its snapshot may predate fills merged this cycle, and correcting against
// it would wipe them. Such tickers are checked again on a quiet cycle.
func (e *Engine) checkVenuePositions(ctx context.Context, active map[string]struct{}) error {
	venuePositions, err := e.venue.ListPositions(ctx)
	if err != nil {
		return err
	}

	local, err := e.positions.ListAll(ctx, "")
	if err != nil {
		return err
	}

	byTicker := make(map[string][]*model.Position)
	for i := range local {
		p := &local[i]
		byTicker[p.Ticker] = append(byTicker[p.Ticker], p)
	}

	venueSeen := make(map[string]struct{}, len(venuePositions))
	for i := range venuePositions {
		vp := &venuePositions[i]
		ticker := strings.ToUpper(vp.Symbol)
		venueSeen[ticker] = struct{}{}
		if _, ok := active[ticker]; ok {
			logger.WithField("ticker", ticker).
				Debug("position check deferred, ticker had order activity this window")
			continue
		}
		e.reconcileTicker(ctx, ticker, byTicker[ticker], vp.Qty, vp.AvgEntryPrice)
	}

	// Tickers the ledger believes are open but the venue no longer reports.
	for ticker, rows := range byTicker {
		if _, ok := venueSeen[ticker]; ok {
			continue
		}
		if _, ok := active[ticker]; ok {
			logger.WithField("ticker", ticker).
				Debug("position check deferred, ticker had order activity this window")
			continue
		}
		total := decimal.Zero
		for _, p := range rows {
			total = total.Add(p.Quantity)
		}
		if !total.IsZero() {
			e.reconcileTicker(ctx, ticker, rows, decimal.Zero, decimal.Zero)
		}
	}
	return nil
}

// reconcileTicker compares local attributed quantity against the venue's
// figure and corrects the ledger when they diverge beyond tolerance. With
// several strategies holding the ticker the correction cannot be
// attributed, so only the alarm is raised.
func (e *Engine) reconcileTicker(ctx context.Context, ticker string, rows []*model.Position, venueQty, venueAvg decimal.Decimal) {
	localTotal := decimal.Zero
	for _, p := range rows {
		localTotal = localTotal.Add(p.Quantity)
	}

	diff := venueQty.Sub(localTotal)
	if diff.Abs().LessThanOrEqual(e.tolerance) {
		return
	}

	logger.WithFields(map[string]interface{}{
		"ticker":    ticker,
		"local_qty": localTotal,
		"venue_qty": venueQty,
	}).Error("position divergence detected, venue value is authoritative")
	e.exceptions.Capture(ctx, "reconciler", "checkVenuePositions", "warn",
		errors.New("position quantity divergence"),
		map[string]interface{}{
			"ticker":    ticker,
			"local_qty": localTotal.String(),
			"venue_qty": venueQty.String(),
		})

	switch len(rows) {
	case 0:
		pos := &model.Position{
			StrategyName:  StrategyUnattributed,
			Ticker:        ticker,
			Quantity:      venueQty,
			AvgEntryPrice: venueAvg,
		}
		if err := e.positions.Upsert(ctx, pos); err != nil {
			logger.WithError(err).WithField("ticker", ticker).
				Error("failed to record unattributed venue position")
		}
	case 1:
		pos := rows[0]
		pos.Quantity = pos.Quantity.Add(diff)
		if pos.AvgEntryPrice.IsZero() {
			pos.AvgEntryPrice = venueAvg
		}
		if err := e.positions.Upsert(ctx, pos); err != nil {
			logger.WithError(err).WithField("ticker", ticker).
				Error("failed to apply venue position correction")
		}
	default:
		logger.WithField("ticker", ticker).
			Warn("divergence spans multiple strategies, correction not attributable")
	}
}

func timestampOrNow(t *time.Time) *time.Time {
	if t != nil {
		utc := t.UTC()
		return &utc
	}
	now := time.Now().UTC()
	return &now
}
