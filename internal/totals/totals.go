// Package totals реализует чистый расчёт финансового снимка заказа.
package totals

import (
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

// Input — снимок заказа для расчёта итогов. Скидка и чаевые приходят извне
// (промо-адаптер и платёжный журнал) и здесь не вычисляются.
type Input struct {
	Items         []model.OrderItem
	Discount      money.Amount
	Tip           money.Amount
	ServiceCharge *model.ServiceCharge
	TaxRates      []model.TaxRate
}

// Result — вычисленный финансовый снимок. Инвариант:
// Total = max(Subtotal-Discount, 0) + Service + Tax + Tip.
type Result struct {
	Subtotal money.Amount
	Discount money.Amount
	Service  money.Amount
	Tax      money.Amount
	Tip      money.Amount
	Total    money.Amount
	Taxes    []model.OrderTax
}

// LinePrice вычисляет цену строки заказа: (базовая цена + сумма
// модификаторов) × количество, округлённую до валюты.
func LinePrice(basePrice money.Amount, modifiers []model.OrderItemModifier, quantity int) money.Amount {
	unit := basePrice
	for _, m := range modifiers {
		unit = unit.Add(m.Price)
	}
	return unit.MulInt(int64(quantity)).RoundCurrency()
}

// Compute вычисляет итоги заказа. Аннулированные строки не участвуют в
// подытоге. Налоговая база общая для всех ставок: ставки считаются независимо
// и не начисляются друг на друга.
func Compute(in Input) Result {
	subtotal := money.Zero()
	for _, it := range in.Items {
		if it.Voided {
			continue
		}
		subtotal = subtotal.Add(it.LinePrice)
	}

	discounted := subtotal.Sub(in.Discount).ClampZero()

	service := money.Zero()
	if in.ServiceCharge != nil {
		switch in.ServiceCharge.Kind {
		case model.ChargeKindPercent:
			service = discounted.Percent(in.ServiceCharge.Value).RoundCurrency()
		case model.ChargeKindFixed:
			service = in.ServiceCharge.Value
		}
	}

	taxBase := discounted.Add(service)

	taxTotal := money.Zero()
	taxes := make([]model.OrderTax, 0, len(in.TaxRates))
	for _, rate := range in.TaxRates {
		amount := taxBase.Percent(rate.Percent).RoundCurrency()
		taxTotal = taxTotal.Add(amount)
		taxes = append(taxes, model.OrderTax{
			TaxRateID: rate.ID,
			Name:      rate.Name,
			Percent:   rate.Percent,
			Amount:    amount,
		})
	}

	return Result{
		Subtotal: subtotal,
		Discount: in.Discount,
		Service:  service,
		Tax:      taxTotal,
		Tip:      in.Tip,
		Total:    taxBase.Add(taxTotal).Add(in.Tip),
		Taxes:    taxes,
	}
}
