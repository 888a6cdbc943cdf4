package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/storeback-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса складского учёта.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", h.CreateCategory)
			r.Get("/", h.ListCategories)
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Post("/", h.CreateSupplier)
			r.Get("/", h.ListSuppliers)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Get("/", h.ListCustomers)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.CreateRequest)
			r.Get("/{id}", h.GetRequest)
			r.Get("/items/{itemID}/units", h.GetRequestItemUnits)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", h.CreateDelivery)
			r.Get("/{id}", h.GetDelivery)
			r.Post("/{id}/items", h.SaveDeliveryItem)
		})

		r.Route("/units", func(r chi.Router) {
			r.Post("/", h.CreateUnit)
			r.Get("/", h.ListUnits)
			r.Get("/serial/{serial}", h.GetUnit)
			r.Post("/{id}/status", h.TransitionUnit)
		})

		r.Route("/cashdays", func(r chi.Router) {
			r.Get("/{date}", h.GetCashDay)
			r.Post("/{date}/events", h.RecordSaleEvent)
			r.Post("/{date}/close", h.CloseDay)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
