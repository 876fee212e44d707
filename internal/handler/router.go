package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/cod-backoffice/internal/middleware"
	"github.com/mmeshcher/cod-backoffice/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware бэк-офиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Metrics)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	staff := custommiddleware.RequireRole(model.RoleOwner, model.RoleManager)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.CreateSession)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/currency", h.GetCurrency)

			r.With(staff).Post("/parties", h.CreateParty)
			r.Get("/parties/{id}", h.GetParty)

			r.With(staff).Post("/products", h.CreateProduct)
			r.With(staff).Post("/products/{id}/stock", h.PurchaseStock)
			r.Get("/inventory", h.Inventory)

			r.With(staff).Post("/investments", h.CreateInvestment)
			r.Get("/investments", h.ListInvestments)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.With(staff).Post("/orders/{id}/driver", h.AssignDriver)
			r.Post("/orders/{id}/status", h.SetStatus)
			r.Post("/orders/{id}/return", h.SubmitReturn)
			r.With(staff).Post("/orders/{id}/return/verify", h.VerifyReturn)

			r.Get("/dashboard/orders", h.OrdersDashboard)
			r.Get("/wallet", h.Wallet)
			r.Get("/wallet/{partyId}", h.Wallet)
			r.Get("/commission/agent/{id}", h.AgentCommission)
			r.Get("/commission/driver/{id}", h.DriverCommission)

			r.Post("/remittances", h.RequestRemittance)
			r.Get("/remittances", h.ListRemittances)
			r.With(staff).Post("/remittances/{id}/approve", h.ApproveRemittance)
			r.With(custommiddleware.RequireRole(model.RoleOwner)).Post("/remittances/{id}/send", h.SendRemittance)
			r.With(staff).Post("/receipts/manual", h.ManualReceipt)

			r.Get("/export/orders.csv", h.ExportOrders)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	return r
}
