package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/resto-system/internal/events"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
	"github.com/mmeshcher/resto-system/internal/repository"
)

type stubStore struct {
	order    *model.Order
	payments []model.Payment
	refunds  []model.PaymentRefund
	nextID   int64
	logs     []string
}

func newStubStore(order *model.Order) *stubStore {
	return &stubStore{order: order, nextID: 1}
}

func (s *stubStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *stubStore) OrderByID(ctx context.Context, brandID, branchID, orderID int64) (*model.Order, error) {
	if s.order == nil || s.order.ID != orderID || s.order.BrandID != brandID || s.order.BranchID != branchID {
		return nil, repository.ErrOrderNotFound
	}
	cp := *s.order
	return &cp, nil
}

func (s *stubStore) OrderSnapshot(ctx context.Context, orderID int64) (*model.Order, error) {
	cp := *s.order
	return &cp, nil
}

func (s *stubStore) OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return nil, nil
}

func (s *stubStore) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, closedAt *time.Time) error {
	s.order.Status = status
	s.order.ClosedAt = closedAt
	return nil
}

func (s *stubStore) SetOrderPaymentState(ctx context.Context, orderID int64, tip, total, paidTotal money.Amount) error {
	s.order.Tip = tip
	s.order.Total = total
	s.order.PaidTotal = paidTotal
	return nil
}

func (s *stubStore) InsertOrderLog(ctx context.Context, orderID int64, status model.OrderStatus, message, actor string) error {
	s.logs = append(s.logs, message)
	return nil
}

func (s *stubStore) InsertPayment(ctx context.Context, p *model.Payment) (int64, error) {
	id := s.nextID
	s.nextID++
	cp := *p
	cp.ID = id
	s.payments = append(s.payments, cp)
	return id, nil
}

func (s *stubStore) PaymentByIDForUpdate(ctx context.Context, paymentID int64) (*model.Payment, error) {
	for i := range s.payments {
		if s.payments[i].ID == paymentID {
			cp := s.payments[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (s *stubStore) PaymentsSettledTotal(ctx context.Context, orderID int64) (money.Amount, error) {
	total := money.Zero()
	for _, p := range s.payments {
		total = total.Add(p.Amount).Add(p.TipAmount)
	}
	return total, nil
}

func (s *stubStore) PaymentTipsTotal(ctx context.Context, orderID int64) (money.Amount, error) {
	total := money.Zero()
	for _, p := range s.payments {
		total = total.Add(p.TipAmount)
	}
	return total, nil
}

func (s *stubStore) RefundsTotalForPayment(ctx context.Context, paymentID int64) (money.Amount, error) {
	total := money.Zero()
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (s *stubStore) RefundsTotalForOrder(ctx context.Context, orderID int64) (money.Amount, error) {
	total := money.Zero()
	for _, r := range s.refunds {
		total = total.Add(r.Amount)
	}
	return total, nil
}

func (s *stubStore) InsertPaymentRefund(ctx context.Context, paymentID int64, amount money.Amount, reason string) (int64, error) {
	id := s.nextID
	s.nextID++
	s.refunds = append(s.refunds, model.PaymentRefund{ID: id, PaymentID: paymentID, Amount: amount, Reason: reason})
	return id, nil
}

type stubStock struct {
	consumed []string
}

func (s *stubStock) Consume(ctx context.Context, orderID int64, reference string) error {
	s.consumed = append(s.consumed, reference)
	return nil
}

type stubPublisher struct {
	kinds []string
}

func (p *stubPublisher) PublishOrderEvent(ctx context.Context, kind string, order *model.Order) error {
	p.kinds = append(p.kinds, kind)
	return nil
}

func openOrder(total string) *model.Order {
	return &model.Order{
		ID:       1,
		BrandID:  1,
		BranchID: 2,
		Status:   model.OrderStatusOpen,
		Subtotal: money.MustParse(total),
		Total:    money.MustParse(total),
	}
}

func newLedger(store *stubStore) (*Ledger, *stubStock, *stubPublisher) {
	stockEngine := &stubStock{}
	publisher := &stubPublisher{}
	return NewLedger(store, stockEngine, publisher, zap.NewNop()), stockEngine, publisher
}

func TestTakePayment_FullPaymentClosesOrder(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, stockEngine, publisher := newLedger(store)

	ord, pay, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{
		Method: "CARD",
		Amount: money.MustParse("50.00"),
	})
	if err != nil {
		t.Fatalf("TakePayment error: %v", err)
	}

	if pay.ID == 0 {
		t.Fatalf("payment id must be assigned")
	}
	if ord.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", ord.Status)
	}
	if ord.ClosedAt == nil {
		t.Fatalf("closed_at must be set")
	}
	if got := ord.PaidTotal.String(); got != "50" {
		t.Fatalf("paid_total = %s, want 50", got)
	}
	if len(stockEngine.consumed) != 1 {
		t.Fatalf("stock consume calls = %d, want 1", len(stockEngine.consumed))
	}
	if publisher.kinds[0] != events.EventOrderPaid {
		t.Fatalf("event = %s, want order.paid", publisher.kinds[0])
	}
}

func TestTakePayment_PartialLeavesStatusUnchanged(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, stockEngine, publisher := newLedger(store)

	ord, _, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{
		Method: "CASH",
		Amount: money.MustParse("20.00"),
	})
	if err != nil {
		t.Fatalf("TakePayment error: %v", err)
	}

	if ord.Status != model.OrderStatusOpen {
		t.Fatalf("status = %s, want OPEN", ord.Status)
	}
	if got := ord.PaidTotal.String(); got != "20" {
		t.Fatalf("paid_total = %s, want 20", got)
	}
	if len(stockEngine.consumed) != 0 {
		t.Fatalf("stock must not be consumed on partial payment")
	}
	if publisher.kinds[0] != events.EventOrderUpdated {
		t.Fatalf("event = %s, want order.updated", publisher.kinds[0])
	}
}

func TestTakePayment_TipAdjustsTotal(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	ord, _, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{
		Method: "CARD",
		Amount: money.MustParse("50.00"),
		Tip:    money.MustParse("5.00"),
	})
	if err != nil {
		t.Fatalf("TakePayment error: %v", err)
	}

	if got := ord.Tip.String(); got != "5" {
		t.Fatalf("tip = %s, want 5", got)
	}
	if got := ord.Total.String(); got != "55" {
		t.Fatalf("total = %s, want 55", got)
	}
	if ord.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", ord.Status)
	}
}

func TestTakePayment_SplitAcrossMethods(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	if _, _, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Method: "CASH", Amount: money.MustParse("30.00")}); err != nil {
		t.Fatalf("first payment error: %v", err)
	}

	ord, _, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Method: "CARD", Amount: money.MustParse("20.00")})
	if err != nil {
		t.Fatalf("second payment error: %v", err)
	}

	if ord.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", ord.Status)
	}
	if got := ord.PaidTotal.String(); got != "50" {
		t.Fatalf("paid_total = %s, want 50", got)
	}
}

func TestTakePayment_RejectsNonPositiveAmount(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	_, _, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Amount: money.Zero()})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTakePayment_RejectsCancelledOrder(t *testing.T) {
	ord := openOrder("50.00")
	ord.Status = model.OrderStatusCancelled
	store := newStubStore(ord)
	ledger, _, _ := newLedger(store)

	_, _, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Amount: money.MustParse("50.00")})
	if !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable, got %v", err)
	}
}

func TestTakePayment_UnknownOrder(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	_, _, err := ledger.TakePayment(context.Background(), 9, 9, 1, Params{Amount: money.MustParse("50.00")})
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestRefund_ReopensPaidOrder(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, publisher := newLedger(store)

	_, pay, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Method: "CARD", Amount: money.MustParse("50.00")})
	if err != nil {
		t.Fatalf("TakePayment error: %v", err)
	}

	ord, refund, err := ledger.Refund(context.Background(), 1, 2, pay.ID, money.MustParse("10.00"), "cold dish", "manager:1")
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}

	if refund.ID == 0 {
		t.Fatalf("refund id must be assigned")
	}
	if ord.Status != model.OrderStatusPartPaid {
		t.Fatalf("status = %s, want PART_PAID", ord.Status)
	}
	if got := ord.PaidTotal.String(); got != "40" {
		t.Fatalf("paid_total = %s, want 40", got)
	}
	if last := publisher.kinds[len(publisher.kinds)-1]; last != events.EventOrderUpdated {
		t.Fatalf("event = %s, want order.updated", last)
	}
}

func TestRefund_FullRefundReopensOrder(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	_, pay, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Method: "CARD", Amount: money.MustParse("50.00")})
	if err != nil {
		t.Fatalf("TakePayment error: %v", err)
	}

	ord, _, err := ledger.Refund(context.Background(), 1, 2, pay.ID, money.MustParse("50.00"), "order returned", "")
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}

	if ord.Status != model.OrderStatusOpen {
		t.Fatalf("status = %s, want OPEN", ord.Status)
	}
	if ord.ClosedAt != nil {
		t.Fatalf("closed_at must be cleared")
	}
	if !ord.PaidTotal.IsZero() {
		t.Fatalf("paid_total = %s, want 0", ord.PaidTotal)
	}
}

func TestRefund_CapEnforced(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	_, pay, err := ledger.TakePayment(context.Background(), 1, 2, 1, Params{Method: "CARD", Amount: money.MustParse("50.00")})
	if err != nil {
		t.Fatalf("TakePayment error: %v", err)
	}

	if _, _, err := ledger.Refund(context.Background(), 1, 2, pay.ID, money.MustParse("30.00"), "", ""); err != nil {
		t.Fatalf("first refund error: %v", err)
	}

	_, _, err = ledger.Refund(context.Background(), 1, 2, pay.ID, money.MustParse("30.00"), "", "")
	if !errors.Is(err, ErrRefundExceedsPayment) {
		t.Fatalf("expected ErrRefundExceedsPayment, got %v", err)
	}
}

func TestRefund_UnknownPayment(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	_, _, err := ledger.Refund(context.Background(), 1, 2, 77, money.MustParse("10.00"), "", "")
	if !errors.Is(err, repository.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestRefund_RejectsNonPositiveAmount(t *testing.T) {
	store := newStubStore(openOrder("50.00"))
	ledger, _, _ := newLedger(store)

	_, _, err := ledger.Refund(context.Background(), 1, 2, 1, money.Zero(), "", "")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
