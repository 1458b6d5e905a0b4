package fixed

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(New(10), Zero())
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestMul_Overflow(t *testing.T) {
	max := *new(uint256.Int).SetAllOne()
	_, err := Mul(max, New(2))
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestSub_Underflow(t *testing.T) {
	_, err := Sub(New(1), New(2))
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestSatSub(t *testing.T) {
	tests := []struct {
		x, y, want uint64
	}{
		{10, 3, 7},
		{3, 10, 0},
		{5, 5, 0},
	}
	for _, tt := range tests {
		got := SatSub(New(tt.x), New(tt.y))
		if got.Uint64() != tt.want {
			t.Errorf("SatSub(%d, %d) = %d, want %d", tt.x, tt.y, got.Uint64(), tt.want)
		}
	}
}

func TestRatioAndApply(t *testing.T) {
	r, err := Ratio(New(78948), New(100000))
	if err != nil {
		t.Fatal(err)
	}
	if r.Uint64() != 7894 {
		t.Errorf("Ratio = %d, want 7894", r.Uint64())
	}

	fee, err := Apply(New(78948), New(300))
	if err != nil {
		t.Fatal(err)
	}
	if fee.Uint64() != 2368 {
		t.Errorf("Apply = %d, want 2368", fee.Uint64())
	}
}

func TestAbsDiff(t *testing.T) {
	d, ge := AbsDiff(New(3), New(10))
	if d.Uint64() != 7 || ge {
		t.Errorf("AbsDiff(3, 10) = (%d, %v), want (7, false)", d.Uint64(), ge)
	}
	d, ge = AbsDiff(New(10), New(3))
	if d.Uint64() != 7 || !ge {
		t.Errorf("AbsDiff(10, 3) = (%d, %v), want (7, true)", d.Uint64(), ge)
	}
}

func TestParse(t *testing.T) {
	v, err := Parse("375000")
	if err != nil {
		t.Fatal(err)
	}
	if v.Uint64() != 375000 {
		t.Errorf("Parse = %s", v.Dec())
	}
	if _, err := Parse("-1"); err == nil {
		t.Error("expected error for negative input")
	}
}
