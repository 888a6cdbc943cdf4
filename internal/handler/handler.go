// Package handler содержит HTTP-обработчики API складского учёта.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/storeback-system/internal/model"
	"github.com/mmeshcher/storeback-system/internal/repository"
	"github.com/mmeshcher/storeback-system/internal/serial"
	"github.com/mmeshcher/storeback-system/internal/service"
	"github.com/mmeshcher/storeback-system/internal/validation"
)

const dateLayout = "2006-01-02"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	CreateCategory(ctx context.Context, c model.Category) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateSupplier(ctx context.Context, s model.Supplier) (*model.Supplier, error)
	ListSuppliers(ctx context.Context) ([]model.Supplier, error)
	CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)

	CreateRequest(ctx context.Context, req model.Request) (*model.Request, error)
	GetRequest(ctx context.Context, id int64) (*model.Request, error)
	ListUnitsByRequestItem(ctx context.Context, requestItemID int64) ([]model.Unit, error)

	CreateDelivery(ctx context.Context, d model.Delivery) (*model.Delivery, error)
	GetDelivery(ctx context.Context, id int64) (*model.Delivery, error)
	SaveDeliveryItem(ctx context.Context, item model.DeliveryItem) (*model.DeliveryItem, error)

	ListUnits(ctx context.Context, status *model.UnitStatus, productID *int64) ([]model.Unit, error)
	GetUnitBySerial(ctx context.Context, serialNumber string) (*model.Unit, error)
	CreateUnit(ctx context.Context, productID int64, serialNumber string) (*model.Unit, error)
	TransitionUnit(ctx context.Context, unitID int64, status model.UnitStatus) (*model.Unit, error)

	RecordSaleEvent(ctx context.Context, date time.Time, eventType model.EventType, paymentType model.PaymentType, amountCents int64, notes string) (*model.SaleEvent, error)
	CloseDay(ctx context.Context, date time.Time) (*model.CashDay, error)
	GetCashDay(ctx context.Context, date time.Time) (*model.CashDay, []model.SaleEvent, error)
}

// Handler реализует HTTP-обработчики API складского учёта.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func rubles(cents int64) float64 {
	return float64(cents) / 100
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError транслирует ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}

	switch {
	case errors.Is(err, repository.ErrUnitNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrRequestNotFound),
		errors.Is(err, repository.ErrDeliveryNotFound),
		errors.Is(err, repository.ErrCashDayNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrDayClosed),
		errors.Is(err, repository.ErrDuplicateSerial),
		errors.Is(err, repository.ErrDuplicateProductCode):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidUnit):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, serial.ErrExhausted):
		h.logger.Error("serial allocation exhausted", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func dateParam(r *http.Request) (time.Time, error) {
	return time.Parse(dateLayout, chi.URLParam(r, "date"))
}

type unitResponse struct {
	ID            int64  `json:"id"`
	SerialNumber  string `json:"serial_number"`
	ProductID     int64  `json:"product_id"`
	RequestItemID *int64 `json:"request_item_id,omitempty"`
	SupplyItemID  *int64 `json:"supply_item_id,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toUnitResponse(u model.Unit) unitResponse {
	return unitResponse{
		ID:            u.ID,
		SerialNumber:  u.SerialNumber,
		ProductID:     u.ProductID,
		RequestItemID: u.RequestItemID,
		SupplyItemID:  u.SupplyItemID,
		Status:        string(u.Status),
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     u.UpdatedAt.Format(time.RFC3339),
	}
}

// ListUnits возвращает единицы товара, при необходимости отфильтрованные
// по статусу и товару.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	var status *model.UnitStatus
	if q := r.URL.Query().Get("status"); q != "" {
		s := model.UnitStatus(q)
		status = &s
	}

	var productID *int64
	if q := r.URL.Query().Get("product_id"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		productID = &id
	}

	units, err := h.service.ListUnits(r.Context(), status, productID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]unitResponse, 0, len(units))
	for _, u := range units {
		resp = append(resp, toUnitResponse(u))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetUnit возвращает единицу товара по серийному номеру.
func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.GetUnitBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUnitResponse(*unit))
}

type createUnitPayload struct {
	ProductID    int64  `json:"product_id"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// CreateUnit создаёт единицу товара вне заявки. Серийный номер
// подбирается автоматически, если не передан.
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var payload createUnitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	unit, err := h.service.CreateUnit(r.Context(), payload.ProductID, payload.SerialNumber)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toUnitResponse(*unit))
}

type transitionRequest struct {
	Status string `json:"status"`
}

// TransitionUnit переводит единицу товара в новый статус.
func (h *Handler) TransitionUnit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	unit, err := h.service.TransitionUnit(r.Context(), id, model.UnitStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUnitResponse(*unit))
}

type requestItemPayload struct {
	ProductID       int64 `json:"product_id"`
	QuantityOrdered int   `json:"quantity_ordered"`
	IsCustomerOrder bool  `json:"is_customer_order"`
}

type createRequestPayload struct {
	CustomerID *int64               `json:"customer_id,omitempty"`
	Notes      string               `json:"notes,omitempty"`
	Items      []requestItemPayload `json:"items"`
}

type requestItemResponse struct {
	ID              int64 `json:"id"`
	ProductID       int64 `json:"product_id"`
	QuantityOrdered int   `json:"quantity_ordered"`
	IsCustomerOrder bool  `json:"is_customer_order"`
}

type requestResponse struct {
	ID         int64                 `json:"id"`
	CustomerID *int64                `json:"customer_id,omitempty"`
	Notes      string                `json:"notes,omitempty"`
	CreatedAt  string                `json:"created_at"`
	Items      []requestItemResponse `json:"items"`
}

func toRequestResponse(req *model.Request) requestResponse {
	resp := requestResponse{
		ID:         req.ID,
		CustomerID: req.CustomerID,
		Notes:      req.Notes,
		CreatedAt:  req.CreatedAt.Format(time.RFC3339),
		Items:      make([]requestItemResponse, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		resp.Items = append(resp.Items, requestItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			QuantityOrdered: item.QuantityOrdered,
			IsCustomerOrder: item.IsCustomerOrder,
		})
	}
	return resp
}

// CreateRequest принимает заявку покупателя; позиции с признаком
// клиентского заказа материализуются в единицы товара.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req := model.Request{
		CustomerID: payload.CustomerID,
		Notes:      payload.Notes,
	}
	for _, item := range payload.Items {
		req.Items = append(req.Items, model.RequestItem{
			ProductID:       item.ProductID,
			QuantityOrdered: item.QuantityOrdered,
			IsCustomerOrder: item.IsCustomerOrder,
		})
	}

	created, err := h.service.CreateRequest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

// GetRequest возвращает заявку вместе с позициями.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// GetRequestItemUnits возвращает единицы товара, материализованные из позиции заявки.
func (h *Handler) GetRequestItemUnits(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "itemID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	units, err := h.service.ListUnitsByRequestItem(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]unitResponse, 0, len(units))
	for _, u := range units {
		resp = append(resp, toUnitResponse(u))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type createDeliveryPayload struct {
	SupplierID   int64   `json:"supplier_id"`
	DeliveryDate string  `json:"delivery_date"`
	TotalAmount  float64 `json:"total_amount"`
	Notes        string  `json:"notes,omitempty"`
}

type deliveryItemPayload struct {
	ProductID        int64    `json:"product_id"`
	QuantityReceived int      `json:"quantity_received"`
	PricePerUnit     *float64 `json:"price_per_unit,omitempty"`
	RequestItemID    *int64   `json:"request_item_id,omitempty"`
	ReceivedUnitIDs  []int64  `json:"received_unit_ids,omitempty"`
	ID               int64    `json:"id,omitempty"`
}

type deliveryItemResponse struct {
	ID               int64    `json:"id"`
	DeliveryID       int64    `json:"delivery_id"`
	ProductID        int64    `json:"product_id"`
	QuantityReceived int      `json:"quantity_received"`
	PricePerUnit     *float64 `json:"price_per_unit,omitempty"`
	TotalPrice       *float64 `json:"total_price,omitempty"`
	RequestItemID    *int64   `json:"request_item_id,omitempty"`
	ReceivedUnitIDs  []int64  `json:"received_unit_ids,omitempty"`
}

func toDeliveryItemResponse(item model.DeliveryItem) deliveryItemResponse {
	resp := deliveryItemResponse{
		ID:               item.ID,
		DeliveryID:       item.DeliveryID,
		ProductID:        item.ProductID,
		QuantityReceived: item.QuantityReceived,
		RequestItemID:    item.RequestItemID,
		ReceivedUnitIDs:  item.ReceivedUnitIDs,
	}
	if item.PricePerUnitCents != nil {
		v := rubles(*item.PricePerUnitCents)
		resp.PricePerUnit = &v
	}
	if total := item.TotalPriceCents(); total != nil {
		v := rubles(*total)
		resp.TotalPrice = &v
	}
	return resp
}

type deliveryResponse struct {
	ID           int64                  `json:"id"`
	SupplierID   int64                  `json:"supplier_id"`
	DeliveryDate string                 `json:"delivery_date"`
	TotalAmount  float64                `json:"total_amount"`
	Notes        string                 `json:"notes,omitempty"`
	Items        []deliveryItemResponse `json:"items"`
}

// CreateDelivery сохраняет заголовок поставки.
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var payload createDeliveryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var deliveryDate time.Time
	if payload.DeliveryDate != "" {
		parsed, err := time.Parse(dateLayout, payload.DeliveryDate)
		if err != nil {
			h.writeError(w, validation.FieldErrors{"delivery_date": "expected format YYYY-MM-DD"})
			return
		}
		deliveryDate = parsed
	}

	created, err := h.service.CreateDelivery(r.Context(), model.Delivery{
		SupplierID:       payload.SupplierID,
		DeliveryDate:     deliveryDate,
		TotalAmountCents: cents(payload.TotalAmount),
		Notes:            payload.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, deliveryResponse{
		ID:           created.ID,
		SupplierID:   created.SupplierID,
		DeliveryDate: created.DeliveryDate.Format(dateLayout),
		TotalAmount:  rubles(created.TotalAmountCents),
		Notes:        created.Notes,
		Items:        []deliveryItemResponse{},
	})
}

// GetDelivery возвращает поставку вместе с позициями.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := deliveryResponse{
		ID:           d.ID,
		SupplierID:   d.SupplierID,
		DeliveryDate: d.DeliveryDate.Format(dateLayout),
		TotalAmount:  rubles(d.TotalAmountCents),
		Notes:        d.Notes,
		Items:        make([]deliveryItemResponse, 0, len(d.Items)),
	}
	for _, item := range d.Items {
		resp.Items = append(resp.Items, toDeliveryItemResponse(item))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SaveDeliveryItem создаёт или обновляет позицию поставки и переводит
// привязанные единицы товара в статус «в магазине».
func (h *Handler) SaveDeliveryItem(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := idParam(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var payload deliveryItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item := model.DeliveryItem{
		ID:               payload.ID,
		DeliveryID:       deliveryID,
		ProductID:        payload.ProductID,
		QuantityReceived: payload.QuantityReceived,
		RequestItemID:    payload.RequestItemID,
		ReceivedUnitIDs:  payload.ReceivedUnitIDs,
	}
	if payload.PricePerUnit != nil {
		v := cents(*payload.PricePerUnit)
		item.PricePerUnitCents = &v
	}

	saved, err := h.service.SaveDeliveryItem(r.Context(), item)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if payload.ID != 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, toDeliveryItemResponse(*saved))
}

type recordEventPayload struct {
	EventType   string  `json:"event_type"`
	PaymentType string  `json:"payment_type"`
	Amount      float64 `json:"amount"`
	Notes       string  `json:"notes,omitempty"`
}

type saleEventResponse struct {
	ID          int64   `json:"id"`
	CashDayID   int64   `json:"cash_day_id"`
	EventType   string  `json:"event_type"`
	PaymentType string  `json:"payment_type"`
	Amount      float64 `json:"amount"`
	CreatedAt   string  `json:"created_at"`
	Notes       string  `json:"notes,omitempty"`
}

func toSaleEventResponse(e model.SaleEvent) saleEventResponse {
	return saleEventResponse{
		ID:          e.ID,
		CashDayID:   e.CashDayID,
		EventType:   string(e.EventType),
		PaymentType: string(e.PaymentType),
		Amount:      rubles(e.AmountCents),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		Notes:       e.Notes,
	}
}

type cashDayResponse struct {
	Date       string              `json:"date"`
	CashTotal  float64             `json:"cash_sales_total"`
	CashCount  int                 `json:"cash_sales_count"`
	CardTotal  float64             `json:"card_sales_total"`
	CardCount  int                 `json:"card_sales_count"`
	TotalSales float64             `json:"total_sales"`
	IsClosed   bool                `json:"is_closed"`
	Events     []saleEventResponse `json:"events,omitempty"`
}

func toCashDayResponse(d *model.CashDay, events []model.SaleEvent) cashDayResponse {
	resp := cashDayResponse{
		Date:       d.Date.Format(dateLayout),
		CashTotal:  rubles(d.CashTotalCents),
		CashCount:  d.CashCount,
		CardTotal:  rubles(d.CardTotalCents),
		CardCount:  d.CardCount,
		TotalSales: rubles(d.TotalSalesCents),
		IsClosed:   d.IsClosed,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, toSaleEventResponse(e))
	}
	return resp
}

// RecordSaleEvent добавляет кассовое событие в журнал указанного дня.
func (h *Handler) RecordSaleEvent(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var payload recordEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	event, err := h.service.RecordSaleEvent(r.Context(), date,
		model.EventType(payload.EventType), model.PaymentType(payload.PaymentType),
		cents(payload.Amount), payload.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toSaleEventResponse(*event))
}

// CloseDay закрывает торговый день.
func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	day, err := h.service.CloseDay(r.Context(), date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCashDayResponse(day, nil))
}

// GetCashDay возвращает торговый день вместе с журналом событий.
func (h *Handler) GetCashDay(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	day, events, err := h.service.GetCashDay(r.Context(), date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCashDayResponse(day, events))
}
