// Package promo реализует применение промокодов к заказам.
package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

// ErrInvalidPromo возвращается, если код отсутствует, неактивен, просрочен
// или заказ не проходит по минимальному подытогу.
var (
	ErrInvalidPromo = errors.New("invalid promo code")
	// ErrRedemptionLimit возвращается при исчерпании лимита применений промоакции.
	ErrRedemptionLimit = errors.New("promo redemption limit reached")
)

// Adapter описывает контракт применения промокодов. Сервис заказов работает
// через этот интерфейс и не знает, подключён ли промо-модуль.
type Adapter interface {
	Apply(ctx context.Context, orderID int64, code string) error
	Remove(ctx context.Context, orderID int64) error
}

// Store описывает контракт доступа к данным, используемый промо-модулем.
type Store interface {
	OrderSnapshot(ctx context.Context, orderID int64) (*model.Order, error)
	PromotionByCode(ctx context.Context, brandID int64, code string) (*model.Promotion, error)
	RedemptionCount(ctx context.Context, promotionID int64) (int, error)
	UpsertPromoRedemption(ctx context.Context, promotionID, orderID int64, amount money.Amount) error
	DeletePromoRedemptions(ctx context.Context, orderID int64) error
	SetOrderDiscount(ctx context.Context, orderID int64, amount money.Amount) error
}

// Service проверяет промокод и записывает скидку на заказ. Должен вызываться
// внутри транзакции вызывающей операции.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService создаёт промо-модуль поверх указанного хранилища.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Apply проверяет код против заказа, вычисляет скидку, фиксирует применение и
// записывает скидку на заказ. Движок итогов читает её как непрозрачный вход.
func (s *Service) Apply(ctx context.Context, orderID int64, code string) error {
	ord, err := s.store.OrderSnapshot(ctx, orderID)
	if err != nil {
		return err
	}

	p, err := s.store.PromotionByCode(ctx, ord.BrandID, code)
	if err != nil {
		return err
	}
	if p == nil || !p.Active {
		return fmt.Errorf("%w: %s", ErrInvalidPromo, code)
	}

	now := s.now()
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return fmt.Errorf("%w: not started", ErrInvalidPromo)
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return fmt.Errorf("%w: expired", ErrInvalidPromo)
	}

	if ord.Subtotal.Cmp(p.MinSubtotal) < 0 {
		return fmt.Errorf("%w: subtotal below minimum", ErrInvalidPromo)
	}

	if p.MaxRedemptions > 0 {
		count, err := s.store.RedemptionCount(ctx, p.ID)
		if err != nil {
			return err
		}
		if count >= p.MaxRedemptions {
			return fmt.Errorf("%w: %s", ErrRedemptionLimit, code)
		}
	}

	discount := computeDiscount(p, ord.Subtotal)

	if err := s.store.UpsertPromoRedemption(ctx, p.ID, orderID, discount); err != nil {
		return err
	}

	return s.store.SetOrderDiscount(ctx, orderID, discount)
}

// Remove снимает промоакции с заказа и обнуляет скидку.
func (s *Service) Remove(ctx context.Context, orderID int64) error {
	if err := s.store.DeletePromoRedemptions(ctx, orderID); err != nil {
		return err
	}
	return s.store.SetOrderDiscount(ctx, orderID, money.Zero())
}

// computeDiscount вычисляет сумму скидки. Фиксированная скидка не превышает
// подытог.
func computeDiscount(p *model.Promotion, subtotal money.Amount) money.Amount {
	switch p.Kind {
	case model.ChargeKindPercent:
		return subtotal.Percent(p.Value).RoundCurrency()
	case model.ChargeKindFixed:
		if p.Value.Cmp(subtotal) > 0 {
			return subtotal
		}
		return p.Value
	}
	return money.Zero()
}

// Noop — заглушка промо-модуля, когда он не подключён. Применение и снятие
// кода завершаются успехом без каких-либо действий.
type Noop struct{}

// Apply ничего не делает.
func (Noop) Apply(ctx context.Context, orderID int64, code string) error { return nil }

// Remove ничего не делает.
func (Noop) Remove(ctx context.Context, orderID int64) error { return nil }
