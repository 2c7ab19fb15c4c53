package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

type stubStore struct {
	order      *model.Order
	promo      *model.Promotion
	count      int
	redeemed   map[int64]money.Amount
	discount   money.Amount
	discountOK bool
}

func newStubStore() *stubStore {
	return &stubStore{redeemed: make(map[int64]money.Amount)}
}

func (s *stubStore) OrderSnapshot(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.order, nil
}

func (s *stubStore) PromotionByCode(ctx context.Context, brandID int64, code string) (*model.Promotion, error) {
	return s.promo, nil
}

func (s *stubStore) RedemptionCount(ctx context.Context, promotionID int64) (int, error) {
	return s.count, nil
}

func (s *stubStore) UpsertPromoRedemption(ctx context.Context, promotionID, orderID int64, amount money.Amount) error {
	s.redeemed[promotionID] = amount
	return nil
}

func (s *stubStore) DeletePromoRedemptions(ctx context.Context, orderID int64) error {
	s.redeemed = make(map[int64]money.Amount)
	return nil
}

func (s *stubStore) SetOrderDiscount(ctx context.Context, orderID int64, amount money.Amount) error {
	s.discount = amount
	s.discountOK = true
	return nil
}

func newTestService(store *stubStore, at time.Time) *Service {
	svc := NewService(store)
	svc.now = func() time.Time { return at }
	return svc
}

func TestApply_PercentPromo(t *testing.T) {
	store := newStubStore()
	store.order = &model.Order{ID: 1, BrandID: 1, Subtotal: money.MustParse("100.00")}
	store.promo = &model.Promotion{
		ID:          5,
		Kind:        model.ChargeKindPercent,
		Value:       money.MustParse("10"),
		MinSubtotal: money.MustParse("50"),
		Active:      true,
	}

	svc := newTestService(store, time.Now())
	if err := svc.Apply(context.Background(), 1, "TEN"); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if got := store.discount.String(); got != "10" {
		t.Fatalf("discount = %s, want 10", got)
	}
	if got := store.redeemed[5].String(); got != "10" {
		t.Fatalf("redemption amount = %s, want 10", got)
	}
}

func TestApply_FixedPromoCappedBySubtotal(t *testing.T) {
	store := newStubStore()
	store.order = &model.Order{ID: 1, BrandID: 1, Subtotal: money.MustParse("8.00")}
	store.promo = &model.Promotion{
		ID:     5,
		Kind:   model.ChargeKindFixed,
		Value:  money.MustParse("15.00"),
		Active: true,
	}

	svc := newTestService(store, time.Now())
	if err := svc.Apply(context.Background(), 1, "FIX"); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if got := store.discount.String(); got != "8" {
		t.Fatalf("discount = %s, want capped 8", got)
	}
}

func TestApply_UnknownCode(t *testing.T) {
	store := newStubStore()
	store.order = &model.Order{ID: 1, BrandID: 1, Subtotal: money.MustParse("100.00")}

	svc := newTestService(store, time.Now())
	err := svc.Apply(context.Background(), 1, "NOPE")
	if !errors.Is(err, ErrInvalidPromo) {
		t.Fatalf("expected ErrInvalidPromo, got %v", err)
	}
}

func TestApply_ExpiredPromo(t *testing.T) {
	ended := time.Now().Add(-time.Hour)
	store := newStubStore()
	store.order = &model.Order{ID: 1, BrandID: 1, Subtotal: money.MustParse("100.00")}
	store.promo = &model.Promotion{
		ID:     5,
		Kind:   model.ChargeKindPercent,
		Value:  money.MustParse("10"),
		EndsAt: &ended,
		Active: true,
	}

	svc := newTestService(store, time.Now())
	err := svc.Apply(context.Background(), 1, "OLD")
	if !errors.Is(err, ErrInvalidPromo) {
		t.Fatalf("expected ErrInvalidPromo, got %v", err)
	}
}

func TestApply_BelowMinSubtotal(t *testing.T) {
	store := newStubStore()
	store.order = &model.Order{ID: 1, BrandID: 1, Subtotal: money.MustParse("40.00")}
	store.promo = &model.Promotion{
		ID:          5,
		Kind:        model.ChargeKindPercent,
		Value:       money.MustParse("10"),
		MinSubtotal: money.MustParse("50"),
		Active:      true,
	}

	svc := newTestService(store, time.Now())
	err := svc.Apply(context.Background(), 1, "TEN")
	if !errors.Is(err, ErrInvalidPromo) {
		t.Fatalf("expected ErrInvalidPromo, got %v", err)
	}
}

func TestApply_RedemptionLimit(t *testing.T) {
	store := newStubStore()
	store.order = &model.Order{ID: 1, BrandID: 1, Subtotal: money.MustParse("100.00")}
	store.promo = &model.Promotion{
		ID:             5,
		Kind:           model.ChargeKindPercent,
		Value:          money.MustParse("10"),
		MaxRedemptions: 3,
		Active:         true,
	}
	store.count = 3

	svc := newTestService(store, time.Now())
	err := svc.Apply(context.Background(), 1, "TEN")
	if !errors.Is(err, ErrRedemptionLimit) {
		t.Fatalf("expected ErrRedemptionLimit, got %v", err)
	}
}

func TestRemove_ResetsDiscount(t *testing.T) {
	store := newStubStore()
	store.redeemed[5] = money.MustParse("10")

	svc := newTestService(store, time.Now())
	if err := svc.Remove(context.Background(), 1); err != nil {
		t.Fatalf("Remove error: %v", err)
	}

	if !store.discountOK || !store.discount.IsZero() {
		t.Fatalf("discount must be reset to zero, got %s", store.discount)
	}
	if len(store.redeemed) != 0 {
		t.Fatalf("redemptions must be deleted")
	}
}

func TestNoop(t *testing.T) {
	var adapter Adapter = Noop{}

	if err := adapter.Apply(context.Background(), 1, "ANY"); err != nil {
		t.Fatalf("Noop.Apply error: %v", err)
	}
	if err := adapter.Remove(context.Background(), 1); err != nil {
		t.Fatalf("Noop.Remove error: %v", err)
	}
}
