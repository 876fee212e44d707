// Package handler содержит HTTP-обработчики API бэк-офиса.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cod-backoffice/internal/commission"
	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/middleware"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Currency() currency.Config

	CreateParty(ctx context.Context, actor service.Actor, in service.CreatePartyInput) (*model.Party, error)
	GetParty(ctx context.Context, actor service.Actor, id uuid.UUID) (*model.Party, error)

	CreateProduct(ctx context.Context, actor service.Actor, in service.CreateProductInput) (*model.Product, error)
	PurchaseStock(ctx context.Context, actor service.Actor, productID uuid.UUID, in service.PurchaseInput) (*model.Stock, error)
	StockReport(ctx context.Context) ([]model.StockReport, error)

	CreateInvestment(ctx context.Context, actor service.Actor, in service.CreateInvestmentInput) (*model.Investment, error)
	ListInvestments(ctx context.Context, actor service.Actor, investorID *uuid.UUID) ([]model.Investment, error)

	CreateOrder(ctx context.Context, actor service.Actor, in service.CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderView, error)
	ListOrders(ctx context.Context, actor service.Actor, f model.OrderFilter) ([]model.Order, error)
	AssignDriver(ctx context.Context, actor service.Actor, orderID, driverID uuid.UUID) (*model.Order, error)
	SetStatus(ctx context.Context, actor service.Actor, orderID uuid.UUID, to model.ShipmentStatus) (*model.Order, error)
	SubmitReturn(ctx context.Context, actor service.Actor, orderID uuid.UUID, in service.ReturnInput) (*model.Order, error)
	VerifyReturn(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*model.Order, error)

	OrderSummary(ctx context.Context, actor service.Actor, f model.OrderFilter) (*service.OrderSummary, error)
	AgentCommission(ctx context.Context, actor service.Actor, agentID uuid.UUID) (*commission.AgentSummary, error)
	DriverCommission(ctx context.Context, actor service.Actor, driverID uuid.UUID) (*service.DriverSummary, error)
	ExportOrdersCSV(ctx context.Context, actor service.Actor, w io.Writer, f model.OrderFilter) error

	Wallet(ctx context.Context, actor service.Actor, partyID uuid.UUID) (*model.Wallet, error)
	RequestRemittance(ctx context.Context, actor service.Actor, in service.RemittanceInput) (*model.Remittance, error)
	ApproveRemittance(ctx context.Context, actor service.Actor, id uuid.UUID) (*model.Remittance, error)
	SendRemittance(ctx context.Context, actor service.Actor, id uuid.UUID, in service.SendInput) (*model.Remittance, error)
	ListRemittances(ctx context.Context, actor service.Actor, f model.RemittanceFilter) ([]service.RemittanceView, error)
	IssueManualReceipt(ctx context.Context, actor service.Actor, in service.ManualReceiptInput) (*service.ManualReceipt, error)
}

// Handler реализует HTTP-обработчики API бэк-офиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	sessionKey     string
}

// Option настраивает обработчик.
type Option func(*Handler)

// WithSessionKey задаёт ключ, который внешний SSO передаёт в заголовке X-Session-Key
// при выдаче сессии. Без ключа выдача сессий выключена.
func WithSessionKey(key string) Option {
	return func(h *Handler) { h.sessionKey = key }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrCountryMismatch),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrImmutable),
		errors.Is(err, model.ErrInsufficientStock),
		errors.Is(err, model.ErrDuplicateAdjustment):
		return http.StatusConflict
	case errors.Is(err, model.ErrBelowMinimum),
		errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &model.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func actor(r *http.Request) service.Actor {
	id, _ := middleware.IdentityFromContext(r.Context())
	return service.Actor{ID: id.ID, Role: id.Role}
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, &model.ValidationError{Field: name, Reason: "must be a uuid"}
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &model.ValidationError{Field: name, Reason: "must be a uuid"}
	}
	return &id, nil
}

func orderFilter(r *http.Request) (model.OrderFilter, error) {
	q := r.URL.Query()
	f := model.OrderFilter{Country: model.Country(q.Get("country"))}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, model.ShipmentStatus(strings.TrimSpace(s)))
		}
	}
	driverID, err := queryID(r, "driver")
	if err != nil {
		return f, err
	}
	agentID, err := queryID(r, "agent")
	if err != nil {
		return f, err
	}
	f.DriverID, f.AgentID = driverID, agentID
	return f, nil
}

type sessionRequest struct {
	PartyID uuid.UUID `json:"partyRef"`
}

// sessionKeyHeader заголовок с общим ключом SSO.
const sessionKeyHeader = "X-Session-Key"

// CreateSession выдаёт подписанный cookie для известного участника. Личность участника
// подтверждается внешним SSO, который предъявляет общий ключ.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(sessionKeyHeader)
	if h.sessionKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.sessionKey)) != 1 {
		h.logger.Warn("session request rejected", zap.Bool("issuing_enabled", h.sessionKey != ""))
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.service.GetParty(r.Context(), service.Actor{ID: req.PartyID}, req.PartyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Identity{ID: p.ID, Role: p.Role})
	writeJSON(w, http.StatusOK, p)
}

// Health сообщает, что сервис жив.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetCurrency возвращает действующую таблицу курсов.
func (h *Handler) GetCurrency(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Currency())
}

type createPartyRequest struct {
	service.CreatePartyInput
	PayoutProfile json.RawMessage `json:"payoutProfile"`
}

// CreateParty регистрирует участника.
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	profile, err := model.DecodePayoutProfile(req.PayoutProfile)
	if err != nil {
		if !errors.Is(err, model.ErrValidation) {
			err = &model.ValidationError{Field: "payoutProfile", Reason: err.Error()}
		}
		h.writeError(w, r, err)
		return
	}
	req.Payout = profile

	p, err := h.service.CreateParty(r.Context(), actor(r), req.CreatePartyInput)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetParty возвращает участника.
func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.service.GetParty(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProduct добавляет товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in service.CreateProductInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// PurchaseStock регистрирует закупку товара.
func (h *Handler) PurchaseStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in service.PurchaseInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.service.PurchaseStock(r.Context(), actor(r), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Inventory возвращает отчёт об остатках.
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.StockReport(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CreateInvestment регистрирует инвестицию.
func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInvestmentInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.service.CreateInvestment(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListInvestments возвращает инвестиции.
func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	investorID, err := queryID(r, "investor")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.service.ListInvestments(r.Context(), actor(r), investorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Investment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateOrder регистрирует заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in service.CreateOrderInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.service.CreateOrder(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ListOrders возвращает заказы по фильтру.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.service.ListOrders(r.Context(), actor(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.service.GetOrder(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type assignDriverRequest struct {
	DriverID uuid.UUID `json:"driverRef"`
}

// AssignDriver назначает водителя на заказ.
func (h *Handler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req assignDriverRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.service.AssignDriver(r.Context(), actor(r), id, req.DriverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status model.ShipmentStatus `json:"shipmentStatus"`
}

// SetStatus меняет статус доставки.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.service.SetStatus(r.Context(), actor(r), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SubmitReturn отмечает передачу возврата компании.
func (h *Handler) SubmitReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in service.ReturnInput
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	o, err := h.service.SubmitReturn(r.Context(), actor(r), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// VerifyReturn подтверждает возврат.
func (h *Handler) VerifyReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.service.VerifyReturn(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// OrdersDashboard возвращает сводку заказов по странам и группам статусов.
func (h *Handler) OrdersDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sum, err := h.service.OrderSummary(r.Context(), actor(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Wallet возвращает кошелёк участника; без partyId кошелёк текущего участника.
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	partyID := a.ID
	if chi.URLParam(r, "partyId") != "" {
		id, err := pathID(r, "partyId")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		partyID = id
	}
	wallet, err := h.service.Wallet(r.Context(), a, partyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// AgentCommission возвращает реализованную и ожидаемую комиссию агента.
func (h *Handler) AgentCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sum, err := h.service.AgentCommission(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// DriverCommission возвращает комиссию водителя.
func (h *Handler) DriverCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sum, err := h.service.DriverCommission(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RequestRemittance создаёт заявку на выплату.
func (h *Handler) RequestRemittance(w http.ResponseWriter, r *http.Request) {
	var in service.RemittanceInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	rem, err := h.service.RequestRemittance(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

// ListRemittances возвращает заявки на выплату.
func (h *Handler) ListRemittances(w http.ResponseWriter, r *http.Request) {
	requester, err := queryID(r, "requester")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := model.RemittanceFilter{RequesterID: requester, Status: model.RemittanceStatus(r.URL.Query().Get("status"))}
	list, err := h.service.ListRemittances(r.Context(), actor(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []service.RemittanceView{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ApproveRemittance одобряет заявку.
func (h *Handler) ApproveRemittance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rem, err := h.service.ApproveRemittance(r.Context(), actor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// SendRemittance отмечает выплату отправленной.
func (h *Handler) SendRemittance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in service.SendInput
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	rem, err := h.service.SendRemittance(r.Context(), actor(r), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// ManualReceipt отправляет квитанцию о выплате вне заявок.
func (h *Handler) ManualReceipt(w http.ResponseWriter, r *http.Request) {
	var in service.ManualReceiptInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	rc, err := h.service.IssueManualReceipt(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// ExportOrders выгружает заказы в CSV.
func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf strings.Builder
	if err := h.service.ExportOrdersCSV(r.Context(), actor(r), &buf, f); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "orders.csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, buf.String())
}
