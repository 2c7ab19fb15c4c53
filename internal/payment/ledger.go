// Package payment реализует платёжный журнал заказов и возвраты.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/resto-system/internal/events"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
	"github.com/mmeshcher/resto-system/internal/stock"
)

// ErrInvalidAmount возвращается при неположительной сумме платежа или возврата
// либо отрицательных чаевых.
var (
	ErrInvalidAmount = errors.New("invalid payment amount")
	// ErrOrderNotPayable возвращается при платеже по заказу в статусе, не
	// допускающем оплату.
	ErrOrderNotPayable = errors.New("order is not payable")
	// ErrRefundExceedsPayment возвращается, когда возврат превысил бы сумму
	// исходного платежа.
	ErrRefundExceedsPayment = errors.New("refund exceeds payment amount")
)

// Store описывает контракт доступа к данным, используемый платёжным журналом.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	OrderByID(ctx context.Context, brandID, branchID, orderID int64) (*model.Order, error)
	OrderSnapshot(ctx context.Context, orderID int64) (*model.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, closedAt *time.Time) error
	SetOrderPaymentState(ctx context.Context, orderID int64, tip, total, paidTotal money.Amount) error
	InsertOrderLog(ctx context.Context, orderID int64, status model.OrderStatus, message, actor string) error

	InsertPayment(ctx context.Context, p *model.Payment) (int64, error)
	PaymentByIDForUpdate(ctx context.Context, paymentID int64) (*model.Payment, error)
	PaymentsSettledTotal(ctx context.Context, orderID int64) (money.Amount, error)
	PaymentTipsTotal(ctx context.Context, orderID int64) (money.Amount, error)
	RefundsTotalForPayment(ctx context.Context, paymentID int64) (money.Amount, error)
	RefundsTotalForOrder(ctx context.Context, orderID int64) (money.Amount, error)
	InsertPaymentRefund(ctx context.Context, paymentID int64, amount money.Amount, reason string) (int64, error)
}

// StockConsumer описывает контракт движка списания склада.
type StockConsumer interface {
	Consume(ctx context.Context, orderID int64, reference string) error
}

// Publisher описывает контракт отправки событий заказа.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, kind string, order *model.Order) error
}

// Ledger принимает платежи и возвраты по заказам. Заказ закрывается, когда
// оплаченная сумма покрывает итог; частичная оплата статус не меняет.
type Ledger struct {
	store     Store
	stock     StockConsumer
	publisher Publisher
	logger    *zap.Logger
}

// NewLedger создаёт платёжный журнал.
func NewLedger(store Store, stockEngine StockConsumer, publisher Publisher, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:     store,
		stock:     stockEngine,
		publisher: publisher,
		logger:    logger,
	}
}

// Params — параметры принимаемого платежа.
type Params struct {
	Method    string
	Amount    money.Amount
	Tip       money.Amount
	Reference string
	Metadata  []byte
	Actor     string
}

// TakePayment записывает платёж и пересчитывает оплаченную сумму заказа.
// Чаевые выводятся из платёжных записей, итог заказа корректируется на их
// сумму. Полное покрытие итога переводит заказ в PAID и списывает склад.
func (l *Ledger) TakePayment(ctx context.Context, brandID, branchID, orderID int64, p Params) (*model.Order, *model.Payment, error) {
	if !p.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if p.Tip.IsNegative() {
		return nil, nil, fmt.Errorf("%w: negative tip", ErrInvalidAmount)
	}

	var (
		updated *model.Order
		pay     *model.Payment
		paid    bool
	)

	err := l.store.WithinTx(ctx, func(ctx context.Context) error {
		ord, err := l.store.OrderByID(ctx, brandID, branchID, orderID)
		if err != nil {
			return err
		}
		if !payable(ord.Status) {
			return fmt.Errorf("%w: order is %s", ErrOrderNotPayable, ord.Status)
		}

		pay = &model.Payment{
			OrderID:   orderID,
			Method:    p.Method,
			Amount:    p.Amount,
			TipAmount: p.Tip,
			Reference: p.Reference,
			Metadata:  p.Metadata,
		}
		pay.ID, err = l.store.InsertPayment(ctx, pay)
		if err != nil {
			return err
		}

		total, paidTotal, err := l.syncPaymentState(ctx, ord)
		if err != nil {
			return err
		}

		if paidTotal.Cmp(total) >= 0 {
			paid = true
			if err := l.stock.Consume(ctx, orderID, stock.ConsumeReference(orderID)); err != nil {
				return err
			}
			now := time.Now().UTC()
			if err := l.store.UpdateOrderStatus(ctx, orderID, model.OrderStatusPaid, &now); err != nil {
				return err
			}
			if err := l.store.InsertOrderLog(ctx, orderID, model.OrderStatusPaid, "order paid in full", p.Actor); err != nil {
				return err
			}
		} else {
			if err := l.store.InsertOrderLog(ctx, orderID, ord.Status, "partial payment recorded", p.Actor); err != nil {
				return err
			}
		}

		updated, err = l.loadOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	kind := events.EventOrderUpdated
	if paid {
		kind = events.EventOrderPaid
	}
	l.emit(ctx, kind, updated)

	return updated, pay, nil
}

// Refund записывает возврат по платежу. Сумма возвратов по платежу не может
// превысить его сумму; строка платежа блокируется на время проверки. Возврат
// по закрытому заказу переводит его в PART_PAID.
func (l *Ledger) Refund(ctx context.Context, brandID, branchID, paymentID int64, amount money.Amount, reason, actor string) (*model.Order, *model.PaymentRefund, error) {
	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}

	var (
		updated *model.Order
		refund  *model.PaymentRefund
	)

	err := l.store.WithinTx(ctx, func(ctx context.Context) error {
		pay, err := l.store.PaymentByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		ord, err := l.store.OrderByID(ctx, brandID, branchID, pay.OrderID)
		if err != nil {
			return err
		}

		refunded, err := l.store.RefundsTotalForPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if refunded.Add(amount).Cmp(pay.Amount) > 0 {
			return fmt.Errorf("%w: %s refunded of %s", ErrRefundExceedsPayment, refunded, pay.Amount)
		}

		refund = &model.PaymentRefund{PaymentID: paymentID, Amount: amount, Reason: reason}
		refund.ID, err = l.store.InsertPaymentRefund(ctx, paymentID, amount, reason)
		if err != nil {
			return err
		}

		total, paidTotal, err := l.syncPaymentState(ctx, ord)
		if err != nil {
			return err
		}

		target := settlementStatus(total, paidTotal)
		if settlementDriven(ord.Status) && target != ord.Status {
			closedAt := ord.ClosedAt
			if target != model.OrderStatusPaid {
				closedAt = nil
			}
			if err := l.store.UpdateOrderStatus(ctx, ord.ID, target, closedAt); err != nil {
				return err
			}
			if err := l.store.InsertOrderLog(ctx, ord.ID, target, "refund reopened payment balance", actor); err != nil {
				return err
			}
		} else {
			if err := l.store.InsertOrderLog(ctx, ord.ID, ord.Status, "refund recorded", actor); err != nil {
				return err
			}
		}

		updated, err = l.loadOrder(ctx, ord.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	l.emit(ctx, events.EventOrderUpdated, updated)
	return updated, refund, nil
}

// syncPaymentState пересчитывает чаевые, итог и оплаченную сумму заказа по
// платёжному журналу и записывает их. Итог корректируется на разницу чаевых
// без полного пересчёта: остальные составляющие не зависят от платежей.
func (l *Ledger) syncPaymentState(ctx context.Context, ord *model.Order) (total, paidTotal money.Amount, err error) {
	tips, err := l.store.PaymentTipsTotal(ctx, ord.ID)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}

	settled, err := l.store.PaymentsSettledTotal(ctx, ord.ID)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}

	refunds, err := l.store.RefundsTotalForOrder(ctx, ord.ID)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}

	total = ord.Total.Sub(ord.Tip).Add(tips)
	paidTotal = settled.Sub(refunds)

	if err := l.store.SetOrderPaymentState(ctx, ord.ID, tips, total, paidTotal); err != nil {
		return money.Zero(), money.Zero(), err
	}
	return total, paidTotal, nil
}

func (l *Ledger) loadOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	ord, err := l.store.OrderSnapshot(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := l.store.OrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ord.Items = items
	return ord, nil
}

func (l *Ledger) emit(ctx context.Context, kind string, ord *model.Order) {
	if ord == nil {
		return
	}
	if err := l.publisher.PublishOrderEvent(ctx, kind, ord); err != nil {
		l.logger.Error("publish order event",
			zap.Error(err),
			zap.String("kind", kind),
			zap.Int64("orderID", ord.ID),
		)
	}
}

// settlementStatus отображает чистую оплаченную сумму в статус: PAID при
// полном покрытии, PART_PAID при частичном, OPEN при нулевом или
// отрицательном остатке оплаты.
func settlementStatus(total, paidTotal money.Amount) model.OrderStatus {
	switch {
	case paidTotal.Cmp(total) >= 0:
		return model.OrderStatusPaid
	case paidTotal.IsPositive():
		return model.OrderStatusPartPaid
	}
	return model.OrderStatusOpen
}

// settlementDriven сообщает, управляется ли статус заказа платёжным балансом.
// Для остальных статусов возврат не трогает машину состояний.
func settlementDriven(status model.OrderStatus) bool {
	return status == model.OrderStatusPaid || status == model.OrderStatusPartPaid
}

// payable сообщает, принимает ли заказ в данном статусе платежи.
func payable(status model.OrderStatus) bool {
	switch status {
	case model.OrderStatusOpen, model.OrderStatusInProgress, model.OrderStatusReady,
		model.OrderStatusServed, model.OrderStatusPartPaid:
		return true
	}
	return false
}
