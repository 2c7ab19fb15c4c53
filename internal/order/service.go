// Package order реализует агрегат заказа и его машину состояний.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/resto-system/internal/events"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
	"github.com/mmeshcher/resto-system/internal/promo"
	"github.com/mmeshcher/resto-system/internal/repository"
	"github.com/mmeshcher/resto-system/internal/stock"
	"github.com/mmeshcher/resto-system/internal/totals"
)

// ErrInvalidState возвращается при попытке операции над заказом в недопустимом
// статусе.
var (
	ErrInvalidState = errors.New("invalid order state for operation")
	// ErrUnknownStatus возвращается при неизвестном целевом статусе.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrInvalidQuantity возвращается при неположительном количестве строки.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Store описывает контракт доступа к данным, используемый сервисом заказов.
// Все мутирующие вызовы выполняются внутри WithinTx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertOrder(ctx context.Context, o *model.Order) (int64, error)
	OrderByID(ctx context.Context, brandID, branchID, orderID int64) (*model.Order, error)
	OrderSnapshot(ctx context.Context, orderID int64) (*model.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	OrderItemByID(ctx context.Context, orderID, itemID int64) (*model.OrderItem, error)
	InsertOrderItem(ctx context.Context, it *model.OrderItem) (int64, error)
	InsertOrderItemModifier(ctx context.Context, m *model.OrderItemModifier) error
	UpdateOrderItem(ctx context.Context, itemID int64, quantity int, notes string, linePrice money.Amount) error
	SetOrderItemVoided(ctx context.Context, itemID int64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, closedAt *time.Time) error
	SetOrderFinancials(ctx context.Context, orderID int64, f repository.OrderFinancials) error
	ReplaceOrderTaxes(ctx context.Context, orderID int64, taxes []model.OrderTax) error
	InsertOrderLog(ctx context.Context, orderID int64, status model.OrderStatus, message, actor string) error

	ServiceChargeFor(ctx context.Context, brandID, branchID int64) (*model.ServiceCharge, error)
	TaxRatesFor(ctx context.Context, brandID, branchID int64) ([]model.TaxRate, error)
	PaymentTipsTotal(ctx context.Context, orderID int64) (money.Amount, error)
}

// StockConsumer описывает контракт движка списания склада.
type StockConsumer interface {
	Consume(ctx context.Context, orderID int64, reference string) error
	Reverse(ctx context.Context, orderID int64) error
}

// TicketRouter описывает контракт маршрутизатора кухонных тикетов.
type TicketRouter interface {
	Route(ctx context.Context, orderID int64, onlyNewLines bool) error
}

// Publisher описывает контракт отправки событий заказа.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, kind string, order *model.Order) error
}

// Service владеет машиной состояний заказа и оркестрирует мутации строк,
// пересчёт итогов, создание тикетов и переходы статусов.
type Service struct {
	store     Store
	stock     StockConsumer
	kitchen   TicketRouter
	promos    promo.Adapter
	publisher Publisher
	logger    *zap.Logger
}

// NewService создаёт сервис заказов с указанными движками. Промо-модуль может
// быть заглушкой promo.Noop — тогда применение кода не делает ничего.
func NewService(store Store, stockEngine StockConsumer, router TicketRouter, promos promo.Adapter, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		stock:     stockEngine,
		kitchen:   router,
		promos:    promos,
		publisher: publisher,
		logger:    logger,
	}
}

// ModifierParams — параметры модификатора создаваемой строки.
type ModifierParams struct {
	ModifierID int64
	Name       string
	Price      money.Amount
}

// ItemParams — параметры создаваемой строки заказа.
type ItemParams struct {
	ItemID    int64
	VariantID *int64
	Quantity  int
	BasePrice money.Amount
	Notes     string
	Modifiers []ModifierParams
}

// CreateParams — параметры создания заказа.
type CreateParams struct {
	Type       model.OrderType
	TableID    *int64
	CustomerID *int64
	WaiterID   *int64
	Covers     int
	Notes      string
	Items      []ItemParams
	PromoCode  string
	Actor      string
}

// UpdateItemParams — частичное обновление строки заказа.
type UpdateItemParams struct {
	Quantity *int
	Notes    *string
}

// Create создаёт заказ. Заказ появляется в статусе DRAFT и в той же
// транзакции переводится в OPEN: черновик снаружи не наблюдаем.
func (s *Service) Create(ctx context.Context, brandID, branchID int64, p CreateParams) (*model.Order, error) {
	for _, it := range p.Items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	var created *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		orderID, err := s.store.InsertOrder(ctx, &model.Order{
			BrandID:    brandID,
			BranchID:   branchID,
			Type:       p.Type,
			Status:     model.OrderStatusDraft,
			TableID:    p.TableID,
			CustomerID: p.CustomerID,
			WaiterID:   p.WaiterID,
			Covers:     p.Covers,
			Notes:      p.Notes,
		})
		if err != nil {
			return err
		}

		if err := s.insertItems(ctx, orderID, p.Items); err != nil {
			return err
		}

		if err := s.store.UpdateOrderStatus(ctx, orderID, model.OrderStatusOpen, nil); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
			return err
		}

		if p.PromoCode != "" {
			if err := s.promos.Apply(ctx, orderID, p.PromoCode); err != nil {
				return err
			}
			// Скидка записана на заказ — итоги пересчитываются заново.
			if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
				return err
			}
		}

		if err := s.kitchen.Route(ctx, orderID, false); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, model.OrderStatusOpen, "order created", p.Actor); err != nil {
			return err
		}

		created, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EventOrderNew, created)
	return created, nil
}

// AddItems добавляет строки в открытый заказ, пересчитывает итоги и создаёт
// тикеты только для новых строк.
func (s *Service) AddItems(ctx context.Context, brandID, branchID, orderID int64, items []ItemParams, actor string) (*model.Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidQuantity
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	var updated *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}
		if err := ensureMutable(ord.Status); err != nil {
			return err
		}

		if err := s.insertItems(ctx, orderID, items); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
			return err
		}

		if err := s.kitchen.Route(ctx, orderID, true); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, ord.Status, "items added", actor); err != nil {
			return err
		}

		updated, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EventOrderUpdated, updated)
	return updated, nil
}

// UpdateItem изменяет количество или заметки строки и пересчитывает её цену и
// итоги заказа.
func (s *Service) UpdateItem(ctx context.Context, brandID, branchID, orderID, itemID int64, p UpdateItemParams, actor string) (*model.Order, error) {
	if p.Quantity != nil && *p.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var updated *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}
		if err := ensureMutable(ord.Status); err != nil {
			return err
		}

		item, err := s.findItem(ctx, orderID, itemID)
		if err != nil {
			return err
		}

		if p.Quantity != nil {
			item.Quantity = *p.Quantity
		}
		if p.Notes != nil {
			item.Notes = *p.Notes
		}

		linePrice := totals.LinePrice(item.BasePrice, item.Modifiers, item.Quantity)
		if err := s.store.UpdateOrderItem(ctx, itemID, item.Quantity, item.Notes, linePrice); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, ord.Status, "item updated", actor); err != nil {
			return err
		}

		updated, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EventOrderUpdated, updated)
	return updated, nil
}

// VoidItem помечает строку аннулированной. Строка сохраняется для аудита, но
// исключается из итогов и списания склада.
func (s *Service) VoidItem(ctx context.Context, brandID, branchID, orderID, itemID int64, actor string) (*model.Order, error) {
	var updated *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}
		if err := ensureMutable(ord.Status); err != nil {
			return err
		}

		if _, err := s.store.OrderItemByID(ctx, orderID, itemID); err != nil {
			return err
		}

		if err := s.store.SetOrderItemVoided(ctx, itemID); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, ord.Status, "item voided", actor); err != nil {
			return err
		}

		updated, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EventOrderUpdated, updated)
	return updated, nil
}

// UpdateStatus переводит заказ в новый статус. Переходы в SERVED и PAID
// запускают идемпотентное списание склада; отмена и возврат — компенсирующее
// восстановление. Неудача списания откатывает весь переход.
func (s *Service) UpdateStatus(ctx context.Context, brandID, branchID, orderID int64, status model.OrderStatus, actor string) (*model.Order, error) {
	if !knownStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatus, status)
	}

	var updated *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}

		if !canTransition(ord.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, ord.Status, status)
		}

		switch status {
		case model.OrderStatusServed, model.OrderStatusPaid:
			if err := s.stock.Consume(ctx, orderID, stock.ConsumeReference(orderID)); err != nil {
				return err
			}
		case model.OrderStatusCancelled, model.OrderStatusRefunded:
			if err := s.stock.Reverse(ctx, orderID); err != nil {
				return err
			}
		}

		var closedAt *time.Time
		if status == model.OrderStatusPaid {
			now := time.Now().UTC()
			closedAt = &now
		}

		if err := s.store.UpdateOrderStatus(ctx, orderID, status, closedAt); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, status, "status changed to "+string(status), actor); err != nil {
			return err
		}

		updated, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, eventKindFor(status), updated)
	return updated, nil
}

// ApplyPromo применяет промокод к заказу и пересчитывает итоги.
func (s *Service) ApplyPromo(ctx context.Context, brandID, branchID, orderID int64, code, actor string) (*model.Order, error) {
	var updated *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}
		if err := ensureMutable(ord.Status); err != nil {
			return err
		}

		if err := s.promos.Apply(ctx, orderID, code); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, ord.Status, "promo applied: "+code, actor); err != nil {
			return err
		}

		updated, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EventOrderUpdated, updated)
	return updated, nil
}

// RemovePromo снимает промокод с заказа и пересчитывает итоги.
func (s *Service) RemovePromo(ctx context.Context, brandID, branchID, orderID int64, actor string) (*model.Order, error) {
	var updated *model.Order

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}
		if err := ensureMutable(ord.Status); err != nil {
			return err
		}

		if err := s.promos.Remove(ctx, orderID); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, orderID, brandID, branchID); err != nil {
			return err
		}

		if err := s.store.InsertOrderLog(ctx, orderID, ord.Status, "promo removed", actor); err != nil {
			return err
		}

		updated, err = s.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.EventOrderUpdated, updated)
	return updated, nil
}

// Get возвращает заказ со строками в рамках области арендатора.
func (s *Service) Get(ctx context.Context, brandID, branchID, orderID int64) (*model.Order, error) {
	ord, err := s.store.OrderByID(ctx, brandID, branchID, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ord.Items = items

	return ord, nil
}

func (s *Service) insertItems(ctx context.Context, orderID int64, items []ItemParams) error {
	for _, p := range items {
		mods := make([]model.OrderItemModifier, 0, len(p.Modifiers))
		for _, mp := range p.Modifiers {
			mods = append(mods, model.OrderItemModifier{
				ModifierID: mp.ModifierID,
				Name:       mp.Name,
				Price:      mp.Price,
			})
		}

		itemID, err := s.store.InsertOrderItem(ctx, &model.OrderItem{
			OrderID:   orderID,
			ItemID:    p.ItemID,
			VariantID: p.VariantID,
			Quantity:  p.Quantity,
			BasePrice: p.BasePrice,
			LinePrice: totals.LinePrice(p.BasePrice, mods, p.Quantity),
			Notes:     p.Notes,
		})
		if err != nil {
			return err
		}

		for _, m := range mods {
			m.OrderItemID = itemID
			if err := s.store.InsertOrderItemModifier(ctx, &m); err != nil {
				return err
			}
		}
	}
	return nil
}

// recomputeTotals пересчитывает финансовый снимок заказа и заменяет налоговый
// снимок. Чаевые выводятся из платёжных записей — единственного источника
// истины о них.
func (s *Service) recomputeTotals(ctx context.Context, orderID, brandID, branchID int64) error {
	ord, err := s.store.OrderSnapshot(ctx, orderID)
	if err != nil {
		return err
	}

	items, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return err
	}

	tips, err := s.store.PaymentTipsTotal(ctx, orderID)
	if err != nil {
		return err
	}

	sc, err := s.store.ServiceChargeFor(ctx, brandID, branchID)
	if err != nil {
		return err
	}

	rates, err := s.store.TaxRatesFor(ctx, brandID, branchID)
	if err != nil {
		return err
	}

	res := totals.Compute(totals.Input{
		Items:         items,
		Discount:      ord.Discount,
		Tip:           tips,
		ServiceCharge: sc,
		TaxRates:      rates,
	})

	if err := s.store.SetOrderFinancials(ctx, orderID, repository.OrderFinancials{
		Subtotal: res.Subtotal,
		Discount: res.Discount,
		Service:  res.Service,
		Tax:      res.Tax,
		Tip:      res.Tip,
		Total:    res.Total,
	}); err != nil {
		return err
	}

	return s.store.ReplaceOrderTaxes(ctx, orderID, res.Taxes)
}

func (s *Service) findItem(ctx context.Context, orderID, itemID int64) (*model.OrderItem, error) {
	items, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == itemID {
			return &items[i], nil
		}
	}
	return nil, repository.ErrOrderItemNotFound
}

func (s *Service) loadOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	ord, err := s.store.OrderSnapshot(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ord.Items = items
	return ord, nil
}

// emit отправляет событие после коммита транзакции. Ошибка отправки
// логируется и не влияет на результат операции.
func (s *Service) emit(ctx context.Context, kind string, ord *model.Order) {
	if ord == nil {
		return
	}
	if err := s.publisher.PublishOrderEvent(ctx, kind, ord); err != nil {
		s.logger.Error("publish order event",
			zap.Error(err),
			zap.String("kind", kind),
			zap.Int64("orderID", ord.ID),
		)
	}
}

// ensureMutable запрещает мутации строк и промокодов для заказов в
// терминальных статусах.
func ensureMutable(status model.OrderStatus) error {
	switch status {
	case model.OrderStatusPaid, model.OrderStatusCancelled, model.OrderStatusRefunded:
		return fmt.Errorf("%w: order is %s", ErrInvalidState, status)
	}
	return nil
}

func knownStatus(status model.OrderStatus) bool {
	switch status {
	case model.OrderStatusOpen, model.OrderStatusInProgress, model.OrderStatusReady,
		model.OrderStatusServed, model.OrderStatusPartPaid, model.OrderStatusPaid,
		model.OrderStatusCancelled, model.OrderStatusRefunded:
		return true
	}
	return false
}

// canTransition проверяет допустимость перехода. Терминальные статусы не
// покидаются через явную смену статуса; PAID допускает только возврат.
// PART_PAID выставляется платёжным журналом, а не явным переходом.
func canTransition(from, to model.OrderStatus) bool {
	switch from {
	case model.OrderStatusCancelled, model.OrderStatusRefunded:
		return false
	case model.OrderStatusPaid:
		return to == model.OrderStatusRefunded
	case model.OrderStatusDraft:
		return to == model.OrderStatusOpen
	}

	switch to {
	case model.OrderStatusInProgress, model.OrderStatusReady, model.OrderStatusServed,
		model.OrderStatusPaid, model.OrderStatusCancelled, model.OrderStatusRefunded:
		return true
	}
	return false
}

func eventKindFor(status model.OrderStatus) string {
	switch status {
	case model.OrderStatusInProgress:
		return events.EventOrderStarted
	case model.OrderStatusReady:
		return events.EventOrderReady
	case model.OrderStatusServed:
		return events.EventOrderServed
	case model.OrderStatusPaid:
		return events.EventOrderPaid
	case model.OrderStatusCancelled, model.OrderStatusRefunded:
		return events.EventOrderCancelled
	}
	return events.EventOrderUpdated
}
