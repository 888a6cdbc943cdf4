package serial

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func neverExists(ctx context.Context, serial string) (bool, error) {
	return false, nil
}

func alwaysExists(ctx context.Context, serial string) (bool, error) {
	return true, nil
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		sku  string
		want string
	}{
		{"ABCDEF", "ABC"},
		{"abcdef", "ABC"},
		{"AB", "AB"},
		{"a", "A"},
		{"", "SN"},
		{"   ", "SN"},
	}

	for _, tt := range tests {
		if got := Prefix(tt.sku); got != tt.want {
			t.Errorf("Prefix(%q) = %q, want %q", tt.sku, got, tt.want)
		}
	}
}

func TestAllocateFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{1,3}-[0-9A-F]{8}$`)

	for i := 0; i < 50; i++ {
		got, err := Allocate(context.Background(), neverExists, "TSH-001")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if !pattern.MatchString(got) {
			t.Fatalf("serial %q does not match pattern", got)
		}
		if !strings.HasPrefix(got, "TSH-") {
			t.Fatalf("serial %q must start with product prefix", got)
		}
	}
}

func TestAllocateFallbackPrefix(t *testing.T) {
	got, err := Allocate(context.Background(), neverExists, "")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !strings.HasPrefix(got, "SN-") {
		t.Fatalf("serial %q must use fallback prefix", got)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	probes := 0
	exists := func(ctx context.Context, serial string) (bool, error) {
		probes++
		return probes < 3, nil
	}

	got, err := Allocate(context.Background(), exists, "ABC")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got == "" {
		t.Fatal("expected serial after retries")
	}
	if probes != 3 {
		t.Fatalf("expected 3 probes, got %d", probes)
	}
}

func TestAllocateExhausted(t *testing.T) {
	_, err := Allocate(context.Background(), alwaysExists, "ABC")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestAllocatePropagatesProbeError(t *testing.T) {
	probeErr := errors.New("storage down")
	exists := func(ctx context.Context, serial string) (bool, error) {
		return false, probeErr
	}

	_, err := Allocate(context.Background(), exists, "ABC")
	if !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error, got %v", err)
	}
}

func TestAllocateBatch(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	serials, err := AllocateBatch(context.Background(), neverExists, "TSH001", 3, now)
	if err != nil {
		t.Fatalf("allocate batch: %v", err)
	}

	want := []string{
		"TSH001-202401151430-001",
		"TSH001-202401151430-002",
		"TSH001-202401151430-003",
	}
	if len(serials) != len(want) {
		t.Fatalf("expected %d serials, got %d", len(want), len(serials))
	}
	for i := range want {
		if serials[i] != want[i] {
			t.Errorf("serial[%d] = %q, want %q", i, serials[i], want[i])
		}
	}
}

func TestAllocateBatchSorted(t *testing.T) {
	serials, err := AllocateBatch(context.Background(), neverExists, "AB", 12, time.Now())
	if err != nil {
		t.Fatalf("allocate batch: %v", err)
	}

	for i := 1; i < len(serials); i++ {
		if !(serials[i-1] < serials[i]) {
			t.Fatalf("batch serials must sort lexicographically: %q >= %q", serials[i-1], serials[i])
		}
	}
}

func TestAllocateBatchEmptyCode(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	serials, err := AllocateBatch(context.Background(), neverExists, "", 1, now)
	if err != nil {
		t.Fatalf("allocate batch: %v", err)
	}
	if serials[0] != "SN-202401151430-001" {
		t.Fatalf("expected fallback code, got %q", serials[0])
	}
}

func TestAllocateBatchCollisionFallsBackToRandom(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	taken := fmt.Sprintf("%s-%s-%03d", "AB", now.Format("200601021504"), 1)

	exists := func(ctx context.Context, serial string) (bool, error) {
		return serial == taken, nil
	}

	serials, err := AllocateBatch(context.Background(), exists, "AB", 2, now)
	if err != nil {
		t.Fatalf("allocate batch: %v", err)
	}

	if serials[0] == taken {
		t.Fatalf("first serial must not reuse the taken value %q", taken)
	}
	if !regexp.MustCompile(`^AB-[0-9A-F]{8}$`).MatchString(serials[0]) {
		t.Fatalf("fallback serial %q must be random-suffixed", serials[0])
	}
	if serials[1] != "AB-202401151430-002" {
		t.Fatalf("second serial must keep batch format, got %q", serials[1])
	}
}
