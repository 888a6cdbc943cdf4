// Package service реализует бизнес-логику складского учёта:
// материализацию заявок, приёмку поставок, жизненный цикл единиц товара
// и учёт кассовых событий.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/storeback-system/internal/model"
	"github.com/mmeshcher/storeback-system/internal/serial"
	"github.com/mmeshcher/storeback-system/internal/validation"
)

// ErrInvalidUnit возвращается, если серийный номер единицы товара
// отсутствует или превышает допустимую длину.
var (
	ErrInvalidUnit = errors.New("unit has invalid serial number")
	// ErrMaterializationFailed возвращается при сбое материализации партии
	// единиц товара из позиции заявки.
	ErrMaterializationFailed = errors.New("unit materialization failed")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	SerialExists(ctx context.Context, serial string) (bool, error)
	CreateUnit(ctx context.Context, unit model.Unit) (*model.Unit, error)
	GetUnitByID(ctx context.Context, id int64) (*model.Unit, error)
	GetUnitBySerial(ctx context.Context, serial string) (*model.Unit, error)
	ListUnits(ctx context.Context, status *model.UnitStatus, productID *int64) ([]model.Unit, error)
	UpdateUnitStatus(ctx context.Context, id int64, status model.UnitStatus) (*model.Unit, error)

	CreateRequestWithUnits(ctx context.Context, req model.Request, serialsByItem [][]string) (*model.Request, error)
	GetRequest(ctx context.Context, id int64) (*model.Request, error)
	ListUnitsByRequestItem(ctx context.Context, requestItemID int64) ([]model.Unit, error)

	CreateDelivery(ctx context.Context, d model.Delivery) (*model.Delivery, error)
	GetDelivery(ctx context.Context, id int64) (*model.Delivery, error)
	SaveDeliveryItem(ctx context.Context, item model.DeliveryItem) (*model.DeliveryItem, error)

	RecordSaleEvent(ctx context.Context, date time.Time, eventType model.EventType, paymentType model.PaymentType, amountCents int64, notes string) (*model.SaleEvent, error)
	CloseDay(ctx context.Context, date time.Time) (*model.CashDay, error)
	GetCashDay(ctx context.Context, date time.Time) (*model.CashDay, []model.SaleEvent, error)

	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateCategory(ctx context.Context, c model.Category) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateSupplier(ctx context.Context, s model.Supplier) (*model.Supplier, error)
	ListSuppliers(ctx context.Context) ([]model.Supplier, error)
	CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
}

// Service содержит бизнес-логику складского учёта.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// AllocateSerial подбирает свободный серийный номер для товара.
func (s *Service) AllocateSerial(ctx context.Context, productID int64) (string, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}

	return serial.Allocate(ctx, s.repo.SerialExists, product.SKU)
}

// CreateUnit создаёт единицу товара вне заявки. Если серийный номер
// не передан, он подбирается автоматически.
func (s *Service) CreateUnit(ctx context.Context, productID int64, serialNumber string) (*model.Unit, error) {
	if serialNumber == "" {
		allocated, err := s.AllocateSerial(ctx, productID)
		if err != nil {
			return nil, err
		}
		serialNumber = allocated
	}

	if !validation.IsValidSerialNumber(serialNumber) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnit, serialNumber)
	}

	return s.repo.CreateUnit(ctx, model.Unit{
		SerialNumber: serialNumber,
		ProductID:    productID,
		Status:       model.UnitStatusCreated,
	})
}

// TransitionUnit переводит единицу товара в новый статус.
// Набор статусов фиксирован, но граф переходов не ограничен:
// допускается любое присваивание статуса из набора.
func (s *Service) TransitionUnit(ctx context.Context, unitID int64, status model.UnitStatus) (*model.Unit, error) {
	if !model.IsValidUnitStatus(status) {
		return nil, validation.FieldErrors{"status": fmt.Sprintf("unknown status %q", status)}
	}

	unit, err := s.repo.GetUnitByID(ctx, unitID)
	if err != nil {
		return nil, err
	}

	if !validation.IsValidSerialNumber(unit.SerialNumber) {
		return nil, fmt.Errorf("%w: unit %d", ErrInvalidUnit, unitID)
	}

	return s.repo.UpdateUnitStatus(ctx, unitID, status)
}

// GetUnitBySerial возвращает единицу товара по серийному номеру.
func (s *Service) GetUnitBySerial(ctx context.Context, serialNumber string) (*model.Unit, error) {
	return s.repo.GetUnitBySerial(ctx, serialNumber)
}

// ListUnits возвращает единицы товара с необязательной фильтрацией.
func (s *Service) ListUnits(ctx context.Context, status *model.UnitStatus, productID *int64) ([]model.Unit, error) {
	if status != nil && !model.IsValidUnitStatus(*status) {
		return nil, validation.FieldErrors{"status": fmt.Sprintf("unknown status %q", *status)}
	}
	return s.repo.ListUnits(ctx, status, productID)
}

// CreateRequest сохраняет заявку и материализует единицы товара
// для позиций, отмеченных как клиентский заказ: по одной единице
// на каждую заказанную штуку, в статусе «в заявке». Заявка, позиции
// и партия единиц записываются одной транзакцией.
func (s *Service) CreateRequest(ctx context.Context, req model.Request) (*model.Request, error) {
	fieldErrs := validation.FieldErrors{}
	for i, item := range req.Items {
		if item.ProductID == 0 {
			fieldErrs[fmt.Sprintf("items[%d].product_id", i)] = "product is required"
		}
		if item.QuantityOrdered <= 0 {
			fieldErrs[fmt.Sprintf("items[%d].quantity_ordered", i)] = "quantity must be positive"
		}
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	serialsByItem := make([][]string, len(req.Items))
	for i, item := range req.Items {
		if !item.IsCustomerOrder || item.QuantityOrdered <= 0 {
			continue
		}

		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
		}

		serials, err := serial.AllocateBatch(ctx, s.repo.SerialExists, product.Code, item.QuantityOrdered, s.now())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
		}
		serialsByItem[i] = serials
	}

	created, err := s.repo.CreateRequestWithUnits(ctx, req, serialsByItem)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
	}
	return created, nil
}

// GetRequest возвращает заявку вместе с позициями.
func (s *Service) GetRequest(ctx context.Context, id int64) (*model.Request, error) {
	return s.repo.GetRequest(ctx, id)
}

// ListUnitsByRequestItem возвращает единицы товара, материализованные из позиции заявки.
func (s *Service) ListUnitsByRequestItem(ctx context.Context, requestItemID int64) ([]model.Unit, error) {
	return s.repo.ListUnitsByRequestItem(ctx, requestItemID)
}

// CreateDelivery сохраняет заголовок поставки.
func (s *Service) CreateDelivery(ctx context.Context, d model.Delivery) (*model.Delivery, error) {
	fieldErrs := validation.FieldErrors{}
	if d.SupplierID == 0 {
		fieldErrs["supplier_id"] = "supplier is required"
	}
	if d.DeliveryDate.IsZero() {
		fieldErrs["delivery_date"] = "delivery date is required"
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	return s.repo.CreateDelivery(ctx, d)
}

// GetDelivery возвращает поставку вместе с позициями.
func (s *Service) GetDelivery(ctx context.Context, id int64) (*model.Delivery, error) {
	return s.repo.GetDelivery(ctx, id)
}

// SaveDeliveryItem сохраняет позицию поставки и переводит привязанные к ней
// единицы товара в статус «в магазине». Единицы в других статусах
// не затрагиваются.
func (s *Service) SaveDeliveryItem(ctx context.Context, item model.DeliveryItem) (*model.DeliveryItem, error) {
	fieldErrs := validation.FieldErrors{}
	if item.ProductID == 0 {
		fieldErrs["product_id"] = "product is required"
	}
	if item.QuantityReceived <= 0 {
		fieldErrs["quantity_received"] = "quantity must be positive"
	}
	if item.PricePerUnitCents == nil {
		fieldErrs["price_per_unit"] = "price is required"
	} else if *item.PricePerUnitCents < 0 {
		fieldErrs["price_per_unit"] = "price must not be negative"
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	return s.repo.SaveDeliveryItem(ctx, item)
}

// RecordSaleEvent добавляет кассовое событие в журнал указанного дня.
// Итоги дня меняет только продажа за наличные или по карте.
func (s *Service) RecordSaleEvent(ctx context.Context, date time.Time, eventType model.EventType, paymentType model.PaymentType, amountCents int64, notes string) (*model.SaleEvent, error) {
	if paymentType == "" {
		paymentType = model.PaymentTypeNone
	}

	fieldErrs := validation.FieldErrors{}
	if !model.IsValidEventType(eventType) {
		fieldErrs["event_type"] = fmt.Sprintf("unknown event type %q", eventType)
	}
	if !model.IsValidPaymentType(paymentType) {
		fieldErrs["payment_type"] = fmt.Sprintf("unknown payment type %q", paymentType)
	}
	if amountCents < 0 {
		fieldErrs["amount"] = "amount must not be negative"
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	return s.repo.RecordSaleEvent(ctx, normalizeDate(date), eventType, paymentType, amountCents, notes)
}

// CloseDay закрывает торговый день. После закрытия новые события
// по этому дню не принимаются.
func (s *Service) CloseDay(ctx context.Context, date time.Time) (*model.CashDay, error) {
	return s.repo.CloseDay(ctx, normalizeDate(date))
}

// GetCashDay возвращает торговый день вместе с журналом событий.
func (s *Service) GetCashDay(ctx context.Context, date time.Time) (*model.CashDay, []model.SaleEvent, error) {
	return s.repo.GetCashDay(ctx, normalizeDate(date))
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateProduct сохраняет новый товар каталога.
func (s *Service) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	fieldErrs := validation.FieldErrors{}
	if strings.TrimSpace(p.Code) == "" {
		fieldErrs["code"] = "code is required"
	}
	if strings.TrimSpace(p.Name) == "" {
		fieldErrs["name"] = "name is required"
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	return s.repo.CreateProduct(ctx, p)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts возвращает все товары каталога.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateCategory сохраняет категорию, генерируя уникальный slug из имени.
// При коллизии к slug добавляется числовой суффикс.
func (s *Service) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, validation.FieldErrors{"name": "name is required"}
	}

	if c.Slug == "" {
		base := Slugify(c.Name)
		candidate := base
		for counter := 1; ; counter++ {
			taken, err := s.repo.SlugExists(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if !taken {
				break
			}
			candidate = fmt.Sprintf("%s-%d", base, counter)
		}
		c.Slug = candidate
	}

	return s.repo.CreateCategory(ctx, c)
}

// ListCategories возвращает все категории каталога.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// Slugify приводит имя к виду, пригодному для slug: латиница и цифры
// в нижнем регистре, остальные символы заменяются дефисом.
func Slugify(name string) string {
	var b strings.Builder
	prevDash := true

	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "category"
	}
	return slug
}

// CreateSupplier сохраняет нового поставщика.
func (s *Service) CreateSupplier(ctx context.Context, sup model.Supplier) (*model.Supplier, error) {
	if strings.TrimSpace(sup.Name) == "" {
		return nil, validation.FieldErrors{"name": "name is required"}
	}
	return s.repo.CreateSupplier(ctx, sup)
}

// ListSuppliers возвращает всех поставщиков.
func (s *Service) ListSuppliers(ctx context.Context) ([]model.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreateCustomer сохраняет нового клиента.
func (s *Service) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, validation.FieldErrors{"name": "name is required"}
	}
	return s.repo.CreateCustomer(ctx, c)
}

// ListCustomers возвращает всех клиентов.
func (s *Service) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx)
}
