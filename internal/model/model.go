// Package model содержит доменные сущности сервиса складского учёта.
package model

import "time"

// UnitStatus описывает статус жизненного цикла единицы товара.
type UnitStatus string

const (
	UnitStatusCreated   UnitStatus = "created"
	UnitStatusInRequest UnitStatus = "in_request"
	UnitStatusInSupply  UnitStatus = "in_supply"
	UnitStatusInStore   UnitStatus = "in_store"
	UnitStatusSold      UnitStatus = "sold"
	UnitStatusReturned  UnitStatus = "returned"
	UnitStatusLost      UnitStatus = "lost"
	UnitStatusTransfer  UnitStatus = "transfer"
)

// IsValidUnitStatus проверяет принадлежность статуса фиксированному набору.
func IsValidUnitStatus(s UnitStatus) bool {
	switch s {
	case UnitStatusCreated, UnitStatusInRequest, UnitStatusInSupply, UnitStatusInStore,
		UnitStatusSold, UnitStatusReturned, UnitStatusLost, UnitStatusTransfer:
		return true
	}
	return false
}

// Unit представляет виртуальную карту одной физической единицы товара.
type Unit struct {
	ID            int64
	SerialNumber  string
	ProductID     int64
	RequestItemID *int64
	SupplyItemID  *int64
	Status        UnitStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Product описывает товар каталога.
type Product struct {
	ID         int64
	Code       string
	SKU        string
	Name       string
	CategoryID *int64
	CreatedAt  time.Time
}

// Category описывает категорию каталога с необязательным родителем.
type Category struct {
	ID       int64
	Name     string
	ParentID *int64
	Slug     string
}

// Supplier описывает поставщика.
type Supplier struct {
	ID            int64
	Name          string
	ContactPerson string
	Phone         string
	Notes         string
}

// Customer описывает клиента магазина.
type Customer struct {
	ID    int64
	Name  string
	Phone string
	Email string
	Notes string
}

// Request представляет заявку покупателя (заголовок).
type Request struct {
	ID         int64
	CustomerID *int64
	Notes      string
	CreatedAt  time.Time
	Items      []RequestItem
}

// RequestItem представляет одну позицию заявки: товар и количество.
type RequestItem struct {
	ID              int64
	RequestID       int64
	ProductID       int64
	QuantityOrdered int
	IsCustomerOrder bool
}

// Delivery представляет поставку (заголовок).
type Delivery struct {
	ID               int64
	SupplierID       int64
	DeliveryDate     time.Time
	TotalAmountCents int64
	Notes            string
	Items            []DeliveryItem
}

// DeliveryItem представляет одну позицию поставки.
// PricePerUnitCents равен nil, пока цена не указана.
type DeliveryItem struct {
	ID                int64
	DeliveryID        int64
	ProductID         int64
	QuantityReceived  int
	PricePerUnitCents *int64
	RequestItemID     *int64
	ReceivedUnitIDs   []int64
}

// TotalPriceCents возвращает количество, умноженное на цену за единицу.
// Возвращает nil, если цена отсутствует или количество не задано:
// «ещё не оценённая» позиция отличается от позиции с нулевой суммой.
func (d *DeliveryItem) TotalPriceCents() *int64 {
	if d.QuantityReceived <= 0 || d.PricePerUnitCents == nil {
		return nil
	}
	total := int64(d.QuantityReceived) * *d.PricePerUnitCents
	return &total
}

// EventType описывает тип кассового события.
type EventType string

const (
	EventTypeSale            EventType = "sale"
	EventTypePriceRequest    EventType = "price_request"
	EventTypeOrder           EventType = "order"
	EventTypeCustomOrderSale EventType = "custom_order_sale"
	EventTypeReturn          EventType = "return"
	EventTypeFitting         EventType = "fitting"
)

// IsValidEventType проверяет принадлежность типа события фиксированному набору.
func IsValidEventType(t EventType) bool {
	switch t {
	case EventTypeSale, EventTypePriceRequest, EventTypeOrder,
		EventTypeCustomOrderSale, EventTypeReturn, EventTypeFitting:
		return true
	}
	return false
}

// PaymentType описывает тип оплаты кассового события.
type PaymentType string

const (
	PaymentTypeCash PaymentType = "cash"
	PaymentTypeCard PaymentType = "card"
	PaymentTypeNone PaymentType = "none"
)

// IsValidPaymentType проверяет принадлежность типа оплаты фиксированному набору.
func IsValidPaymentType(p PaymentType) bool {
	switch p {
	case PaymentTypeCash, PaymentTypeCard, PaymentTypeNone:
		return true
	}
	return false
}

// CashDay представляет торговый день: накопительные итоги по кассе и карте.
// Все суммы хранятся в копейках.
type CashDay struct {
	ID              int64
	Date            time.Time
	CashTotalCents  int64
	CashCount       int
	CardTotalCents  int64
	CardCount       int
	TotalSalesCents int64
	IsClosed        bool
}

// CountsTowardTotals сообщает, должно ли событие менять итоги дня.
// Итоги меняет только завершённая продажа за наличные или по карте;
// остальные события ведутся ради операционной аналитики.
func CountsTowardTotals(eventType EventType, paymentType PaymentType) bool {
	if eventType != EventTypeSale {
		return false
	}
	return paymentType == PaymentTypeCash || paymentType == PaymentTypeCard
}

// ApplySale увеличивает итог и счётчик соответствующего типа оплаты
// и пересчитывает общую выручку дня. События, не являющиеся продажей
// за наличные или по карте, игнорируются.
func (d *CashDay) ApplySale(eventType EventType, paymentType PaymentType, amountCents int64) {
	if !CountsTowardTotals(eventType, paymentType) {
		return
	}

	switch paymentType {
	case PaymentTypeCash:
		d.CashTotalCents += amountCents
		d.CashCount++
	case PaymentTypeCard:
		d.CardTotalCents += amountCents
		d.CardCount++
	}

	d.RecalcTotal()
}

// RecalcTotal пересчитывает общую выручку дня из итогов по типам оплаты.
func (d *CashDay) RecalcTotal() {
	d.TotalSalesCents = d.CashTotalCents + d.CardTotalCents
}

// SaleEvent представляет неизменяемую запись журнала кассовых событий.
// После создания запись никогда не обновляется и не удаляется: журнал —
// первоисточник, из которого выводятся итоги торгового дня.
type SaleEvent struct {
	ID          int64
	CashDayID   int64
	EventType   EventType
	PaymentType PaymentType
	AmountCents int64
	CreatedAt   time.Time
	Notes       string
}
