package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storeback-system/internal/model"
	"github.com/mmeshcher/storeback-system/internal/repository"
	"github.com/mmeshcher/storeback-system/internal/serial"
	"github.com/mmeshcher/storeback-system/internal/service"
	"github.com/mmeshcher/storeback-system/internal/validation"
)

type stubService struct {
	createRequestResp *model.Request
	createRequestErr  error

	transitionResp *model.Unit
	transitionErr  error

	unitResp *model.Unit
	unitErr  error

	saveItemResp *model.DeliveryItem
	saveItemErr  error

	recordEventResp *model.SaleEvent
	recordEventErr  error

	closeDayResp *model.CashDay
	closeDayErr  error

	cashDayResp   *model.CashDay
	cashDayEvents []model.SaleEvent
	cashDayErr    error
}

func (s *stubService) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.ID = 1
	return &p, nil
}

func (s *stubService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return nil, repository.ErrProductNotFound
}

func (s *stubService) ListProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubService) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	c.ID = 1
	c.Slug = "stub"
	return &c, nil
}

func (s *stubService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return nil, nil
}

func (s *stubService) CreateSupplier(ctx context.Context, sup model.Supplier) (*model.Supplier, error) {
	sup.ID = 1
	return &sup, nil
}

func (s *stubService) ListSuppliers(ctx context.Context) ([]model.Supplier, error) { return nil, nil }

func (s *stubService) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	c.ID = 1
	return &c, nil
}

func (s *stubService) ListCustomers(ctx context.Context) ([]model.Customer, error) { return nil, nil }

func (s *stubService) CreateRequest(ctx context.Context, req model.Request) (*model.Request, error) {
	return s.createRequestResp, s.createRequestErr
}

func (s *stubService) GetRequest(ctx context.Context, id int64) (*model.Request, error) {
	return s.createRequestResp, s.createRequestErr
}

func (s *stubService) ListUnitsByRequestItem(ctx context.Context, requestItemID int64) ([]model.Unit, error) {
	return nil, nil
}

func (s *stubService) CreateDelivery(ctx context.Context, d model.Delivery) (*model.Delivery, error) {
	d.ID = 1
	return &d, nil
}

func (s *stubService) GetDelivery(ctx context.Context, id int64) (*model.Delivery, error) {
	return nil, repository.ErrDeliveryNotFound
}

func (s *stubService) SaveDeliveryItem(ctx context.Context, item model.DeliveryItem) (*model.DeliveryItem, error) {
	return s.saveItemResp, s.saveItemErr
}

func (s *stubService) ListUnits(ctx context.Context, status *model.UnitStatus, productID *int64) ([]model.Unit, error) {
	return nil, nil
}

func (s *stubService) GetUnitBySerial(ctx context.Context, serialNumber string) (*model.Unit, error) {
	return s.unitResp, s.unitErr
}

func (s *stubService) CreateUnit(ctx context.Context, productID int64, serialNumber string) (*model.Unit, error) {
	return s.unitResp, s.unitErr
}

func (s *stubService) TransitionUnit(ctx context.Context, unitID int64, status model.UnitStatus) (*model.Unit, error) {
	return s.transitionResp, s.transitionErr
}

func (s *stubService) RecordSaleEvent(ctx context.Context, date time.Time, eventType model.EventType, paymentType model.PaymentType, amountCents int64, notes string) (*model.SaleEvent, error) {
	return s.recordEventResp, s.recordEventErr
}

func (s *stubService) CloseDay(ctx context.Context, date time.Time) (*model.CashDay, error) {
	return s.closeDayResp, s.closeDayErr
}

func (s *stubService) GetCashDay(ctx context.Context, date time.Time) (*model.CashDay, []model.SaleEvent, error) {
	return s.cashDayResp, s.cashDayEvents, s.cashDayErr
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger).SetupRouter()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateRequest(t *testing.T) {
	svc := &stubService{
		createRequestResp: &model.Request{
			ID:        1,
			CreatedAt: time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
			Items: []model.RequestItem{
				{ID: 2, RequestID: 1, ProductID: 7, QuantityOrdered: 3, IsCustomerOrder: true},
			},
		},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/requests/", map[string]any{
		"items": []map[string]any{
			{"product_id": 7, "quantity_ordered": 3, "is_customer_order": true},
		},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp struct {
		ID    int64 `json:"id"`
		Items []struct {
			QuantityOrdered int `json:"quantity_ordered"`
		} `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 || len(resp.Items) != 1 || resp.Items[0].QuantityOrdered != 3 {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
}

func TestCreateRequest_ValidationError(t *testing.T) {
	svc := &stubService{
		createRequestErr: validation.FieldErrors{"items[0].quantity_ordered": "quantity must be positive"},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/requests/", map[string]any{
		"items": []map[string]any{{"product_id": 7, "quantity_ordered": 0}},
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp.Errors["items[0].quantity_ordered"]; !ok {
		t.Fatalf("expected field-scoped error, got %s", w.Body.String())
	}
}

func TestCreateRequest_MalformedJSON(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/requests/", bytes.NewBufferString("{broken"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTransitionUnit(t *testing.T) {
	svc := &stubService{
		transitionResp: &model.Unit{ID: 5, SerialNumber: "TSH-0A1B2C3D", ProductID: 7, Status: model.UnitStatusSold},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/units/5/status", map[string]string{"status": "sold"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "sold" {
		t.Fatalf("status = %q, want sold", resp.Status)
	}
}

func TestTransitionUnit_InvalidUnit(t *testing.T) {
	svc := &stubService{transitionErr: service.ErrInvalidUnit}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/units/5/status", map[string]string{"status": "sold"})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestCreateUnit(t *testing.T) {
	svc := &stubService{
		unitResp: &model.Unit{ID: 9, SerialNumber: "TSH-0A1B2C3D", ProductID: 7, Status: model.UnitStatusCreated},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/units/", map[string]any{"product_id": 7})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp struct {
		SerialNumber string `json:"serial_number"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SerialNumber != "TSH-0A1B2C3D" || resp.Status != "created" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
}

func TestCreateUnit_AllocationExhausted(t *testing.T) {
	svc := &stubService{unitErr: serial.ErrExhausted}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/units/", map[string]any{"product_id": 7})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestGetUnit_NotFound(t *testing.T) {
	svc := &stubService{unitErr: repository.ErrUnitNotFound}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/units/serial/NOPE-00000000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSaveDeliveryItem_Conflict(t *testing.T) {
	svc := &stubService{saveItemErr: repository.ErrDuplicateSerial}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/deliveries/1/items", map[string]any{
		"product_id": 7, "quantity_received": 2, "price_per_unit": 25.50,
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestSaveDeliveryItem(t *testing.T) {
	price := int64(2550)
	svc := &stubService{
		saveItemResp: &model.DeliveryItem{
			ID:                3,
			DeliveryID:        1,
			ProductID:         7,
			QuantityReceived:  2,
			PricePerUnitCents: &price,
			ReceivedUnitIDs:   []int64{10, 11},
		},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/deliveries/1/items", map[string]any{
		"product_id": 7, "quantity_received": 2, "price_per_unit": 25.50,
		"received_unit_ids": []int64{10, 11},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp struct {
		PricePerUnit *float64 `json:"price_per_unit"`
		TotalPrice   *float64 `json:"total_price"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PricePerUnit == nil || *resp.PricePerUnit != 25.50 {
		t.Fatalf("price_per_unit = %v, want 25.50", resp.PricePerUnit)
	}
	if resp.TotalPrice == nil || *resp.TotalPrice != 51.00 {
		t.Fatalf("total_price = %v, want 51.00", resp.TotalPrice)
	}
}

func TestRecordSaleEvent(t *testing.T) {
	svc := &stubService{
		recordEventResp: &model.SaleEvent{
			ID:          1,
			CashDayID:   2,
			EventType:   model.EventTypeSale,
			PaymentType: model.PaymentTypeCash,
			AmountCents: 10000,
			CreatedAt:   time.Date(2024, 1, 1, 18, 45, 0, 0, time.UTC),
		},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/cashdays/2024-01-01/events", map[string]any{
		"event_type": "sale", "payment_type": "cash", "amount": 100.00,
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp struct {
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Amount != 100.00 {
		t.Fatalf("amount = %v, want 100.00", resp.Amount)
	}
}

func TestRecordSaleEvent_DayClosed(t *testing.T) {
	svc := &stubService{recordEventErr: repository.ErrDayClosed}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/cashdays/2024-01-01/events", map[string]any{
		"event_type": "sale", "payment_type": "cash", "amount": 100.00,
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestRecordSaleEvent_BadDate(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	w := doJSON(t, router, http.MethodPost, "/api/cashdays/01.02.2024/events", map[string]any{
		"event_type": "sale",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetCashDay(t *testing.T) {
	svc := &stubService{
		cashDayResp: &model.CashDay{
			Date:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			CashTotalCents:  10000,
			CashCount:       1,
			CardTotalCents:  5000,
			CardCount:       1,
			TotalSalesCents: 15000,
		},
		cashDayEvents: []model.SaleEvent{
			{ID: 1, EventType: model.EventTypeSale, PaymentType: model.PaymentTypeCash, AmountCents: 10000},
			{ID: 2, EventType: model.EventTypeSale, PaymentType: model.PaymentTypeCard, AmountCents: 5000},
		},
	}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/cashdays/2024-01-01", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		CashTotal  float64 `json:"cash_sales_total"`
		CardTotal  float64 `json:"card_sales_total"`
		TotalSales float64 `json:"total_sales"`
		Events     []struct {
			Amount float64 `json:"amount"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CashTotal != 100.00 || resp.CardTotal != 50.00 || resp.TotalSales != 150.00 {
		t.Fatalf("totals: %s", w.Body.String())
	}
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Events))
	}
}

func TestCloseDay(t *testing.T) {
	svc := &stubService{
		closeDayResp: &model.CashDay{
			Date:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			IsClosed: true,
		},
	}
	router := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/api/cashdays/2024-01-01/close", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		IsClosed bool `json:"is_closed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsClosed {
		t.Fatal("expected closed day")
	}
}
