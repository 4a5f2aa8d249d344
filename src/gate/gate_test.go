package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradeledger/src/connectors"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

type fakeOrderRepo struct {
	nextID  uint
	orders  map[uint]*model.Order
	byCOID  map[string]uint
	created int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{nextID: 1, orders: map[uint]*model.Order{}, byCOID: map[string]uint{}}
}

func (f *fakeOrderRepo) Create(_ context.Context, order *model.Order) error {
	f.created++
	if _, dup := f.byCOID[order.ClientOrderID]; dup {
		return errors.New("duplicated key not allowed")
	}
	order.ID = f.nextID
	f.nextID++
	clone := *order
	f.orders[order.ID] = &clone
	f.byCOID[order.ClientOrderID] = order.ID
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id uint) (*model.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	clone := *order
	return &clone, nil
}

func (f *fakeOrderRepo) ApplyVenueUpdate(_ context.Context, orderID uint, fromStatus string, upd repository.VenueUpdate) error {
	order, ok := f.orders[orderID]
	if !ok || order.Status != fromStatus {
		return repository.ErrStaleOrderUpdate
	}
	order.Status = upd.Status
	order.FilledQuantity = upd.FilledQuantity
	if upd.VenueOrderID != nil {
		order.VenueOrderID = upd.VenueOrderID
	}
	if upd.FilledAvgPrice != nil {
		order.FilledAvgPrice = upd.FilledAvgPrice
	}
	if upd.VenueMessage != "" {
		order.VenueMessage = upd.VenueMessage
	}
	return nil
}

type fakePositionRepo struct {
	positions map[string]*model.Position
}

func posKey(strategy, ticker string) string { return strategy + "/" + ticker }

func (f *fakePositionRepo) Get(_ context.Context, strategy, ticker string) (*model.Position, error) {
	pos, ok := f.positions[posKey(strategy, ticker)]
	if !ok {
		return nil, nil
	}
	clone := *pos
	return &clone, nil
}

func (f *fakePositionRepo) ListOpen(_ context.Context, strategy string) ([]model.Position, error) {
	var out []model.Position
	for _, pos := range f.positions {
		if pos.Quantity.IsZero() {
			continue
		}
		if strategy != "" && pos.StrategyName != strategy {
			continue
		}
		out = append(out, *pos)
	}
	return out, nil
}

type fakeGateRepo struct {
	state      model.TradingGate
	setCalls   int
	lastReason string
}

func (f *fakeGateRepo) Get(_ context.Context) (*model.TradingGate, error) {
	clone := f.state
	return &clone, nil
}

func (f *fakeGateRepo) SetActive(_ context.Context, active bool, reason, changedBy string) (*model.TradingGate, error) {
	f.setCalls++
	f.lastReason = reason
	f.state.Active = active
	f.state.Reason = reason
	f.state.ChangedAt = time.Now().UTC()
	clone := f.state
	return &clone, nil
}

type fakeVenue struct {
	placeCalls  int
	cancelCalls int
	placeErr    error
	failSymbol  string
	lastReq     *connectors.OrderRequest
	status      string
}

func (f *fakeVenue) PlaceOrder(_ context.Context, req *connectors.OrderRequest) (*connectors.VenueOrder, error) {
	f.placeCalls++
	f.lastReq = req
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if f.failSymbol != "" && req.Symbol == f.failSymbol {
		return nil, &connectors.VenueError{StatusCode: 500, Message: "internal error"}
	}
	status := f.status
	if status == "" {
		status = "accepted"
	}
	return &connectors.VenueOrder{
		ID:            "venue-1",
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           req.Qty,
		Status:        status,
	}, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, _ string) error {
	f.cancelCalls++
	return nil
}

func newTestService(gateRepo *fakeGateRepo, venue *fakeVenue) (*Service, *fakeOrderRepo, *fakePositionRepo) {
	orders := newFakeOrderRepo()
	positions := &fakePositionRepo{positions: map[string]*model.Position{}}
	svc := NewService(orders, positions, gateRepo, venue)
	return svc, orders, positions
}

func TestSubmitOrderBlockedByGate(t *testing.T) {
	venue := &fakeVenue{}
	svc, orders, _ := newTestService(&fakeGateRepo{state: model.TradingGate{ID: 1, Active: true, Reason: "incident"}}, venue)

	req, _ := NewSubmitRequest("s1", "AAPL", "buy", "market", d("10"), nil)
	_, err := svc.SubmitOrder(context.Background(), req)
	if !errors.Is(err, ErrTradingDisabled) {
		t.Fatalf("expected ErrTradingDisabled, got %v", err)
	}
	if venue.placeCalls != 0 {
		t.Fatal("venue must not be contacted while the kill switch is engaged")
	}
	if orders.created != 0 {
		t.Fatal("no ledger row may be created for a blocked submission")
	}
}

func TestSubmitOrderHappyPath(t *testing.T) {
	venue := &fakeVenue{}
	svc, orders, _ := newTestService(&fakeGateRepo{}, venue)

	req, _ := NewSubmitRequest("s1", "AAPL", "buy", "market", d("10"), nil)
	order, err := svc.SubmitOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("expected pending order, got %q", order.Status)
	}
	if order.VenueOrderID == nil || *order.VenueOrderID != "venue-1" {
		t.Fatalf("venue order id not recorded: %+v", order)
	}
	if venue.lastReq.ClientOrderID == "" {
		t.Fatal("client order id must be sent to the venue")
	}
	if orders.created != 1 {
		t.Fatalf("expected one provisional row, got %d", orders.created)
	}
}

func TestSubmitOrderVenueRejection(t *testing.T) {
	venue := &fakeVenue{placeErr: &connectors.VenueError{StatusCode: 422, Message: "insufficient buying power"}}
	svc, _, _ := newTestService(&fakeGateRepo{}, venue)

	req, _ := NewSubmitRequest("s1", "AAPL", "buy", "market", d("1000000"), nil)
	order, err := svc.SubmitOrder(context.Background(), req)

	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if order == nil || order.Status != model.OrderStatusRejected {
		t.Fatalf("rejected order must be persisted terminally: %+v", order)
	}
	if order.VenueMessage != "insufficient buying power" {
		t.Fatalf("venue message not recorded: %q", order.VenueMessage)
	}
}

func TestSubmitOrderAmbiguousFailure(t *testing.T) {
	venue := &fakeVenue{placeErr: errors.New("context deadline exceeded")}
	svc, _, _ := newTestService(&fakeGateRepo{}, venue)

	req, _ := NewSubmitRequest("s1", "AAPL", "buy", "market", d("10"), nil)
	order, err := svc.SubmitOrder(context.Background(), req)
	if !errors.Is(err, ErrSubmissionUnresolved) {
		t.Fatalf("expected ErrSubmissionUnresolved, got %v", err)
	}
	if order == nil || order.Status != model.OrderStatusSubmitted {
		t.Fatalf("provisional row must survive for the reconciler: %+v", order)
	}
}

func TestSubmitSellRequiresPosition(t *testing.T) {
	venue := &fakeVenue{}
	svc, _, positions := newTestService(&fakeGateRepo{}, venue)

	req, _ := NewSubmitRequest("s1", "AAPL", "sell", "market", d("10"), nil)
	_, err := svc.SubmitOrder(context.Background(), req)
	if !errors.Is(err, ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}

	positions.positions[posKey("s1", "AAPL")] = &model.Position{
		StrategyName: "s1", Ticker: "AAPL", Quantity: d("10"), AvgEntryPrice: d("100"),
	}
	if _, err := svc.SubmitOrder(context.Background(), req); err != nil {
		t.Fatalf("expected covered sell to pass, got %v", err)
	}
	if venue.placeCalls != 1 {
		t.Fatalf("expected one venue call, got %d", venue.placeCalls)
	}
}

func TestClosePosition(t *testing.T) {
	venue := &fakeVenue{}
	svc, _, positions := newTestService(&fakeGateRepo{}, venue)

	order, err := svc.ClosePosition(context.Background(), "s1", "AAPL")
	if err != nil || order != nil {
		t.Fatalf("flat position must close to a no-op, got %+v, %v", order, err)
	}

	positions.positions[posKey("s1", "AAPL")] = &model.Position{
		StrategyName: "s1", Ticker: "AAPL", Quantity: d("10"), AvgEntryPrice: d("100"),
	}
	order, err = svc.ClosePosition(context.Background(), "s1", "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Side != model.OrderSideSell || !order.Quantity.Equal(d("10")) {
		t.Fatalf("expected full-quantity sell, got %+v", order)
	}
	if order.OrderType != model.OrderTypeMarket {
		t.Fatalf("close must be a market order, got %q", order.OrderType)
	}
}

func TestEmergencyStop(t *testing.T) {
	venue := &fakeVenue{}
	gateRepo := &fakeGateRepo{}
	svc, _, positions := newTestService(gateRepo, venue)

	positions.positions[posKey("s1", "AAPL")] = &model.Position{
		StrategyName: "s1", Ticker: "AAPL", Quantity: d("10"), AvgEntryPrice: d("100"),
	}
	positions.positions[posKey("s1", "MSFT")] = &model.Position{
		StrategyName: "s1", Ticker: "MSFT", Quantity: d("-5"), AvgEntryPrice: d("200"),
	}

	if err := svc.EmergencyStop(context.Background(), "s1", "fat finger", "ops"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Positions are closed before the switch flips, then trading is off.
	if venue.placeCalls != 2 {
		t.Fatalf("expected 2 close orders, got %d", venue.placeCalls)
	}
	if gateRepo.setCalls != 1 || !gateRepo.state.Active {
		t.Fatalf("kill switch must be engaged: %+v", gateRepo.state)
	}
}

func TestEmergencyStopContinuesPastCloseFailure(t *testing.T) {
	venue := &fakeVenue{failSymbol: "AAPL"}
	gateRepo := &fakeGateRepo{}
	svc, _, positions := newTestService(gateRepo, venue)

	positions.positions[posKey("s1", "AAPL")] = &model.Position{
		StrategyName: "s1", Ticker: "AAPL", Quantity: d("10"), AvgEntryPrice: d("100"),
	}
	positions.positions[posKey("s1", "MSFT")] = &model.Position{
		StrategyName: "s1", Ticker: "MSFT", Quantity: d("5"), AvgEntryPrice: d("200"),
	}

	if err := svc.EmergencyStop(context.Background(), "s1", "fat finger", "ops"); err != nil {
		t.Fatalf("a single close failure must not abort the stop: %v", err)
	}

	// Both closes are attempted despite the AAPL one failing, and the
	// switch still flips.
	if venue.placeCalls != 2 {
		t.Fatalf("expected 2 close attempts, got %d", venue.placeCalls)
	}
	if gateRepo.setCalls != 1 || !gateRepo.state.Active {
		t.Fatalf("kill switch must be engaged: %+v", gateRepo.state)
	}
}

func TestCancelOrder(t *testing.T) {
	venue := &fakeVenue{}
	svc, orders, _ := newTestService(&fakeGateRepo{}, venue)

	if err := svc.CancelOrder(context.Background(), 99); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	req, _ := NewSubmitRequest("s1", "AAPL", "buy", "market", d("10"), nil)
	order, err := svc.SubmitOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.CancelOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.cancelCalls != 1 {
		t.Fatalf("expected one venue cancel, got %d", venue.cancelCalls)
	}

	// Terminal orders cancel to a no-op without touching the venue.
	orders.orders[order.ID].Status = model.OrderStatusFilled
	if err := svc.CancelOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("expected terminal cancel to be a no-op, got %v", err)
	}
	if venue.cancelCalls != 1 {
		t.Fatal("terminal cancel must not call the venue")
	}
}
