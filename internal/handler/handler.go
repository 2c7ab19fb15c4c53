// Package handler содержит HTTP-обработчики API сервиса ресторанных заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/resto-system/internal/middleware"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
	"github.com/mmeshcher/resto-system/internal/order"
	"github.com/mmeshcher/resto-system/internal/payment"
	"github.com/mmeshcher/resto-system/internal/promo"
	"github.com/mmeshcher/resto-system/internal/repository"
)

// OrderService определяет контракт сервиса заказов, используемый обработчиками.
type OrderService interface {
	Create(ctx context.Context, brandID, branchID int64, p order.CreateParams) (*model.Order, error)
	Get(ctx context.Context, brandID, branchID, orderID int64) (*model.Order, error)
	AddItems(ctx context.Context, brandID, branchID, orderID int64, items []order.ItemParams, actor string) (*model.Order, error)
	UpdateItem(ctx context.Context, brandID, branchID, orderID, itemID int64, p order.UpdateItemParams, actor string) (*model.Order, error)
	VoidItem(ctx context.Context, brandID, branchID, orderID, itemID int64, actor string) (*model.Order, error)
	UpdateStatus(ctx context.Context, brandID, branchID, orderID int64, status model.OrderStatus, actor string) (*model.Order, error)
	ApplyPromo(ctx context.Context, brandID, branchID, orderID int64, code, actor string) (*model.Order, error)
	RemovePromo(ctx context.Context, brandID, branchID, orderID int64, actor string) (*model.Order, error)
}

// PaymentLedger определяет контракт платёжного журнала, используемый
// обработчиками.
type PaymentLedger interface {
	TakePayment(ctx context.Context, brandID, branchID, orderID int64, p payment.Params) (*model.Order, *model.Payment, error)
	Refund(ctx context.Context, brandID, branchID, paymentID int64, amount money.Amount, reason, actor string) (*model.Order, *model.PaymentRefund, error)
}

// ReadStore определяет контракт чтения кухонных тикетов и складских остатков.
type ReadStore interface {
	KitchenTicketsForBranch(ctx context.Context, branchID int64) ([]model.KitchenTicket, error)
	StockLevels(ctx context.Context) ([]model.StockItem, error)
}

// Handler реализует HTTP-обработчики API сервиса ресторанных заказов.
type Handler struct {
	orders   OrderService
	payments PaymentLedger
	reads    ReadStore
	logger   *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(orders OrderService, payments PaymentLedger, reads ReadStore, logger *zap.Logger) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		reads:    reads,
		logger:   logger,
	}
}

type modifierRequest struct {
	ModifierID int64        `json:"modifier_id"`
	Name       string       `json:"name"`
	Price      money.Amount `json:"price"`
}

type itemRequest struct {
	ItemID    int64             `json:"item_id"`
	VariantID *int64            `json:"variant_id,omitempty"`
	Quantity  int               `json:"quantity"`
	BasePrice money.Amount      `json:"base_price"`
	Notes     string            `json:"notes"`
	Modifiers []modifierRequest `json:"modifiers,omitempty"`
}

type createOrderRequest struct {
	Type       string        `json:"type"`
	TableID    *int64        `json:"table_id,omitempty"`
	CustomerID *int64        `json:"customer_id,omitempty"`
	WaiterID   *int64        `json:"waiter_id,omitempty"`
	Covers     int           `json:"covers"`
	Notes      string        `json:"notes"`
	PromoCode  string        `json:"promo_code,omitempty"`
	Items      []itemRequest `json:"items"`
}

func toItemParams(items []itemRequest) []order.ItemParams {
	out := make([]order.ItemParams, 0, len(items))
	for _, it := range items {
		mods := make([]order.ModifierParams, 0, len(it.Modifiers))
		for _, m := range it.Modifiers {
			mods = append(mods, order.ModifierParams{
				ModifierID: m.ModifierID,
				Name:       m.Name,
				Price:      m.Price,
			})
		}
		out = append(out, order.ItemParams{
			ItemID:    it.ItemID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			BasePrice: it.BasePrice,
			Notes:     it.Notes,
			Modifiers: mods,
		})
	}
	return out
}

// CreateOrder создаёт заказ со строками в области арендатора запроса.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if len(req.Items) == 0 {
		http.Error(w, "order must contain at least one item", http.StatusBadRequest)
		return
	}

	ord, err := h.orders.Create(r.Context(), scope.BrandID, scope.BranchID, order.CreateParams{
		Type:       model.OrderType(req.Type),
		TableID:    req.TableID,
		CustomerID: req.CustomerID,
		WaiterID:   req.WaiterID,
		Covers:     req.Covers,
		Notes:      req.Notes,
		Items:      toItemParams(req.Items),
		PromoCode:  req.PromoCode,
		Actor:      middleware.GetActorFromContext(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, ord)
}

// GetOrder возвращает заказ со строками.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, err := h.orders.Get(r.Context(), scope.BrandID, scope.BranchID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

type addItemsRequest struct {
	Items []itemRequest `json:"items"`
}

// AddItems добавляет строки в открытый заказ.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "request must contain at least one item", http.StatusBadRequest)
		return
	}

	ord, err := h.orders.AddItems(r.Context(), scope.BrandID, scope.BranchID, orderID,
		toItemParams(req.Items), middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

type updateItemRequest struct {
	Quantity *int    `json:"quantity,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// UpdateItem изменяет количество или заметки строки заказа.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, err := h.orders.UpdateItem(r.Context(), scope.BrandID, scope.BranchID, orderID, itemID,
		order.UpdateItemParams{Quantity: req.Quantity, Notes: req.Notes},
		middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

// VoidItem помечает строку заказа аннулированной.
func (h *Handler) VoidItem(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, err := h.orders.VoidItem(r.Context(), scope.BrandID, scope.BranchID, orderID, itemID,
		middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus переводит заказ в новый статус.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, err := h.orders.UpdateStatus(r.Context(), scope.BrandID, scope.BranchID, orderID,
		model.OrderStatus(req.Status), middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

type applyPromoRequest struct {
	Code string `json:"code"`
}

// ApplyPromo применяет промокод к заказу.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req applyPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, err := h.orders.ApplyPromo(r.Context(), scope.BrandID, scope.BranchID, orderID, req.Code,
		middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

// RemovePromo снимает промокод с заказа.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, err := h.orders.RemovePromo(r.Context(), scope.BrandID, scope.BranchID, orderID,
		middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ord)
}

type takePaymentRequest struct {
	Method    string       `json:"method"`
	Amount    money.Amount `json:"amount"`
	Tip       money.Amount `json:"tip"`
	Reference string       `json:"reference"`
}

type paymentResponse struct {
	Order   *model.Order   `json:"order"`
	Payment *model.Payment `json:"payment"`
}

// TakePayment записывает платёж по заказу.
func (h *Handler) TakePayment(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := pathID(r, "orderID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req takePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, pay, err := h.payments.TakePayment(r.Context(), scope.BrandID, scope.BranchID, orderID, payment.Params{
		Method:    req.Method,
		Amount:    req.Amount,
		Tip:       req.Tip,
		Reference: req.Reference,
		Actor:     middleware.GetActorFromContext(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, paymentResponse{Order: ord, Payment: pay})
}

type refundRequest struct {
	Amount money.Amount `json:"amount"`
	Reason string       `json:"reason"`
}

type refundResponse struct {
	Order  *model.Order         `json:"order"`
	Refund *model.PaymentRefund `json:"refund"`
}

// Refund записывает возврат по платежу.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	paymentID, err := pathID(r, "paymentID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ord, refund, err := h.payments.Refund(r.Context(), scope.BrandID, scope.BranchID, paymentID,
		req.Amount, req.Reason, middleware.GetActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, refundResponse{Order: ord, Refund: refund})
}

// KitchenTickets возвращает кухонные тикеты филиала.
func (h *Handler) KitchenTickets(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScopeFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	tickets, err := h.reads.KitchenTicketsForBranch(r.Context(), scope.BranchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(tickets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, tickets)
}

// StockLevels возвращает текущие складские остатки.
func (h *Handler) StockLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.reads.StockLevels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(levels) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, levels)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError отображает доменные ошибки на HTTP-статусы. Неизвестные ошибки
// логируются и возвращаются как 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrOrderItemNotFound),
		errors.Is(err, repository.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, payment.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, order.ErrInvalidState),
		errors.Is(err, payment.ErrOrderNotPayable),
		errors.Is(err, promo.ErrRedemptionLimit):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, promo.ErrInvalidPromo),
		errors.Is(err, payment.ErrRefundExceedsPayment):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
