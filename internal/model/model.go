// Package model содержит доменные сущности системы ресторанных заказов.
package model

import (
	"time"

	"github.com/mmeshcher/resto-system/internal/money"
)

// OrderType описывает канал происхождения заказа.
type OrderType string

const (
	OrderTypeDineIn   OrderType = "DINE_IN"
	OrderTypeTakeaway OrderType = "TAKEAWAY"
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypeOnline   OrderType = "ONLINE"
)

// OrderStatus описывает статус заказа в машине состояний.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "DRAFT"
	OrderStatusOpen       OrderStatus = "OPEN"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusReady      OrderStatus = "READY"
	OrderStatusServed     OrderStatus = "SERVED"
	OrderStatusPartPaid   OrderStatus = "PART_PAID"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// Order — корневой агрегат заказа. Денежные поля пересчитываются движком
// итогов и никогда не правятся напрямую.
type Order struct {
	ID         int64        `json:"id"`
	BrandID    int64        `json:"brand_id"`
	BranchID   int64        `json:"branch_id"`
	Type       OrderType    `json:"type"`
	Status     OrderStatus  `json:"status"`
	TableID    *int64       `json:"table_id,omitempty"`
	CustomerID *int64       `json:"customer_id,omitempty"`
	WaiterID   *int64       `json:"waiter_id,omitempty"`
	Covers     int          `json:"covers"`
	Notes      string       `json:"notes"`
	Subtotal   money.Amount `json:"subtotal"`
	Discount   money.Amount `json:"discount"`
	Service    money.Amount `json:"service"`
	Tax        money.Amount `json:"tax"`
	Tip        money.Amount `json:"tip"`
	Total      money.Amount `json:"total"`
	PaidTotal  money.Amount `json:"paid_total"`
	CreatedAt  time.Time    `json:"created_at"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
	Items      []OrderItem  `json:"items,omitempty"`
}

// OrderItem — строка заказа. Цена строки = (базовая цена + сумма
// модификаторов) × количество.
type OrderItem struct {
	ID        int64               `json:"id"`
	OrderID   int64               `json:"order_id"`
	ItemID    int64               `json:"item_id"`
	VariantID *int64              `json:"variant_id,omitempty"`
	Quantity  int                 `json:"quantity"`
	BasePrice money.Amount        `json:"base_price"`
	LinePrice money.Amount        `json:"line_price"`
	Voided    bool                `json:"voided"`
	Notes     string              `json:"notes"`
	Modifiers []OrderItemModifier `json:"modifiers,omitempty"`
}

// OrderItemModifier — платная добавка к строке заказа, неизменяемая после
// создания.
type OrderItemModifier struct {
	ID          int64        `json:"id"`
	OrderItemID int64        `json:"order_item_id"`
	ModifierID  int64        `json:"modifier_id"`
	Name        string       `json:"name"`
	Price       money.Amount `json:"price"`
}

// OrderTax — снимок начисленного налога по одной ставке на момент последнего
// пересчёта итогов. Полностью заменяется при каждом пересчёте.
type OrderTax struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"order_id"`
	TaxRateID int64        `json:"tax_rate_id"`
	Name      string       `json:"name"`
	Percent   money.Amount `json:"percent"`
	Amount    money.Amount `json:"amount"`
}

// OrderLog — запись журнала аудита по заказу.
type OrderLog struct {
	ID        int64       `json:"id"`
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Message   string      `json:"message"`
	Actor     string      `json:"actor"`
	CreatedAt time.Time   `json:"created_at"`
}

// Payment — факт оплаты заказа. Неизменяем после создания, корректируется
// только через возвраты.
type Payment struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"order_id"`
	Method    string       `json:"method"`
	Amount    money.Amount `json:"amount"`
	TipAmount money.Amount `json:"tip_amount"`
	Reference string       `json:"reference"`
	Metadata  []byte       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
}

// PaymentRefund — частичный или полный возврат по платежу.
type PaymentRefund struct {
	ID        int64        `json:"id"`
	PaymentID int64        `json:"payment_id"`
	Amount    money.Amount `json:"amount"`
	Reason    string       `json:"reason"`
	CreatedAt time.Time    `json:"created_at"`
}

// Recipe связывает продаваемую позицию или её вариант с расходом складских
// продуктов. Рецепт варианта имеет приоритет над рецептом позиции.
type Recipe struct {
	ID        int64        `json:"id"`
	ItemID    *int64       `json:"item_id,omitempty"`
	VariantID *int64       `json:"variant_id,omitempty"`
	Active    bool         `json:"active"`
	Lines     []RecipeLine `json:"lines,omitempty"`
}

// RecipeLine — расход одного продукта на единицу позиции. WastePct может
// отсутствовать, что означает нулевой процент потерь.
type RecipeLine struct {
	ID        int64         `json:"id"`
	RecipeID  int64         `json:"recipe_id"`
	ProductID int64         `json:"product_id"`
	Quantity  money.Amount  `json:"quantity"`
	WastePct  *money.Amount `json:"waste_pct,omitempty"`
}

// StockItem — текущий остаток продукта на складе.
type StockItem struct {
	ProductID int64        `json:"product_id"`
	Quantity  money.Amount `json:"quantity"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StockTransaction — запись журнала движения склада, только добавление.
// Списание идемпотентно по полю Reference.
type StockTransaction struct {
	ID        int64        `json:"id"`
	ProductID int64        `json:"product_id"`
	Quantity  money.Amount `json:"quantity"`
	Reference string       `json:"reference"`
	CreatedAt time.Time    `json:"created_at"`
}

// TicketStatus описывает статус кухонного тикета и его строк.
type TicketStatus string

const (
	TicketStatusNew TicketStatus = "NEW"
)

// KitchenTicket — задание на приготовление для станции кухни.
type KitchenTicket struct {
	ID        int64               `json:"id"`
	OrderID   int64               `json:"order_id"`
	StationID int64               `json:"station_id"`
	Status    TicketStatus        `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	Items     []KitchenTicketItem `json:"items,omitempty"`
}

// KitchenTicketItem — строка тикета, ссылается ровно на одну строку заказа.
type KitchenTicketItem struct {
	ID          int64        `json:"id"`
	TicketID    int64        `json:"ticket_id"`
	OrderItemID int64        `json:"order_item_id"`
	Quantity    int          `json:"quantity"`
	Status      TicketStatus `json:"status"`
}

// StationRoute — правило маршрутизации позиции или варианта на станцию кухни.
type StationRoute struct {
	ID        int64  `json:"id"`
	StationID int64  `json:"station_id"`
	ItemID    *int64 `json:"item_id,omitempty"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Active    bool   `json:"active"`
}

// ChargeKind описывает способ расчёта сервисного сбора или промо-скидки.
type ChargeKind string

const (
	ChargeKindPercent ChargeKind = "PERCENT"
	ChargeKindFixed   ChargeKind = "FIXED"
)

// ServiceCharge — конфигурация сервисного сбора. Настройка уровня филиала
// имеет приоритет над настройкой бренда.
type ServiceCharge struct {
	ID       int64        `json:"id"`
	BrandID  int64        `json:"brand_id"`
	BranchID *int64       `json:"branch_id,omitempty"`
	Kind     ChargeKind   `json:"kind"`
	Value    money.Amount `json:"value"`
	Active   bool         `json:"active"`
}

// TaxRate — активная налоговая ставка в рамках бренда или филиала.
type TaxRate struct {
	ID       int64        `json:"id"`
	BrandID  int64        `json:"brand_id"`
	BranchID *int64       `json:"branch_id,omitempty"`
	Name     string       `json:"name"`
	Percent  money.Amount `json:"percent"`
	Active   bool         `json:"active"`
}

// Promotion — правило скидки, активируемое кодом.
type Promotion struct {
	ID             int64        `json:"id"`
	BrandID        int64        `json:"brand_id"`
	Code           string       `json:"code"`
	Kind           ChargeKind   `json:"kind"`
	Value          money.Amount `json:"value"`
	MinSubtotal    money.Amount `json:"min_subtotal"`
	MaxRedemptions int          `json:"max_redemptions"`
	StartsAt       *time.Time   `json:"starts_at,omitempty"`
	EndsAt         *time.Time   `json:"ends_at,omitempty"`
	Active         bool         `json:"active"`
}

// PromoRedemption — факт применения промокода к заказу, один на пару
// (промоакция, заказ).
type PromoRedemption struct {
	ID          int64        `json:"id"`
	PromotionID int64        `json:"promotion_id"`
	OrderID     int64        `json:"order_id"`
	Amount      money.Amount `json:"amount"`
	CreatedAt   time.Time    `json:"created_at"`
}
