package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/resto-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса ресторанных
// заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.Tenant)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)

			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Post("/items", h.AddItems)
				r.Patch("/items/{itemID}", h.UpdateItem)
				r.Delete("/items/{itemID}", h.VoidItem)
				r.Post("/status", h.UpdateStatus)
				r.Post("/promo", h.ApplyPromo)
				r.Delete("/promo", h.RemovePromo)
				r.Post("/payments", h.TakePayment)
			})
		})

		r.Post("/payments/{paymentID}/refunds", h.Refund)

		r.Get("/kitchen/tickets", h.KitchenTickets)
		r.Get("/stock", h.StockLevels)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
