package model

import "testing"

func TestIsValidUnitStatus(t *testing.T) {
	valid := []UnitStatus{
		UnitStatusCreated, UnitStatusInRequest, UnitStatusInSupply, UnitStatusInStore,
		UnitStatusSold, UnitStatusReturned, UnitStatusLost, UnitStatusTransfer,
	}
	for _, s := range valid {
		if !IsValidUnitStatus(s) {
			t.Errorf("status %q must be valid", s)
		}
	}

	for _, s := range []UnitStatus{"", "unknown", "SOLD", "in request"} {
		if IsValidUnitStatus(s) {
			t.Errorf("status %q must be invalid", s)
		}
	}
}

func TestCountsTowardTotals(t *testing.T) {
	tests := []struct {
		event   EventType
		payment PaymentType
		want    bool
	}{
		{EventTypeSale, PaymentTypeCash, true},
		{EventTypeSale, PaymentTypeCard, true},
		{EventTypeSale, PaymentTypeNone, false},
		{EventTypeReturn, PaymentTypeCash, false},
		{EventTypePriceRequest, PaymentTypeNone, false},
		{EventTypeCustomOrderSale, PaymentTypeCard, false},
		{EventTypeFitting, PaymentTypeNone, false},
		{EventTypeOrder, PaymentTypeCash, false},
	}

	for _, tt := range tests {
		if got := CountsTowardTotals(tt.event, tt.payment); got != tt.want {
			t.Errorf("CountsTowardTotals(%q, %q) = %v, want %v", tt.event, tt.payment, got, tt.want)
		}
	}
}

func TestApplySaleMixedPayments(t *testing.T) {
	var day CashDay

	day.ApplySale(EventTypeSale, PaymentTypeCash, 10000)
	day.ApplySale(EventTypeSale, PaymentTypeCard, 5000)

	if day.CashTotalCents != 10000 || day.CashCount != 1 {
		t.Fatalf("cash: total=%d count=%d", day.CashTotalCents, day.CashCount)
	}
	if day.CardTotalCents != 5000 || day.CardCount != 1 {
		t.Fatalf("card: total=%d count=%d", day.CardTotalCents, day.CardCount)
	}
	if day.TotalSalesCents != 15000 {
		t.Fatalf("total=%d, want 15000", day.TotalSalesCents)
	}
}

func TestApplySaleInvariantHolds(t *testing.T) {
	var day CashDay

	events := []struct {
		event   EventType
		payment PaymentType
		amount  int64
	}{
		{EventTypeSale, PaymentTypeCash, 9999},
		{EventTypePriceRequest, PaymentTypeNone, 0},
		{EventTypeSale, PaymentTypeCard, 1},
		{EventTypeReturn, PaymentTypeCash, 5000},
		{EventTypeSale, PaymentTypeCash, 1},
		{EventTypeFitting, PaymentTypeNone, 0},
		{EventTypeSale, PaymentTypeCard, 123456},
	}

	var wantCash, wantCard int
	for _, e := range events {
		day.ApplySale(e.event, e.payment, e.amount)

		if e.event == EventTypeSale && e.payment == PaymentTypeCash {
			wantCash++
		}
		if e.event == EventTypeSale && e.payment == PaymentTypeCard {
			wantCard++
		}

		if day.TotalSalesCents != day.CashTotalCents+day.CardTotalCents {
			t.Fatalf("invariant broken: total=%d cash=%d card=%d",
				day.TotalSalesCents, day.CashTotalCents, day.CardTotalCents)
		}
		if day.CashCount != wantCash || day.CardCount != wantCard {
			t.Fatalf("counts: cash=%d/%d card=%d/%d", day.CashCount, wantCash, day.CardCount, wantCard)
		}
	}

	if day.CashTotalCents != 10000 {
		t.Fatalf("cash total=%d, want 10000", day.CashTotalCents)
	}
	if day.CardTotalCents != 123457 {
		t.Fatalf("card total=%d, want 123457", day.CardTotalCents)
	}
}

func TestRecalcTotal(t *testing.T) {
	day := CashDay{CashTotalCents: 700, CardTotalCents: 300}
	day.RecalcTotal()
	if day.TotalSalesCents != 1000 {
		t.Fatalf("total=%d, want 1000", day.TotalSalesCents)
	}
}

func TestDeliveryItemTotalPrice(t *testing.T) {
	price := int64(2550)

	item := DeliveryItem{QuantityReceived: 3, PricePerUnitCents: &price}
	total := item.TotalPriceCents()
	if total == nil || *total != 7650 {
		t.Fatalf("total = %v, want 7650", total)
	}

	unpriced := DeliveryItem{QuantityReceived: 3}
	if unpriced.TotalPriceCents() != nil {
		t.Fatal("unpriced line must have absent total, not zero")
	}

	zeroQty := DeliveryItem{QuantityReceived: 0, PricePerUnitCents: &price}
	if zeroQty.TotalPriceCents() != nil {
		t.Fatal("line without quantity must have absent total")
	}

	zeroPrice := int64(0)
	freeLine := DeliveryItem{QuantityReceived: 2, PricePerUnitCents: &zeroPrice}
	total = freeLine.TotalPriceCents()
	if total == nil || *total != 0 {
		t.Fatalf("zero-price line must have a present zero total, got %v", total)
	}
}
