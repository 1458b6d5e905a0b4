package api

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oddspool/market-engine/internal/fixed"
)

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0", 0, false},
		{"1", 10000, false},
		{"1.85", 18500, false},
		{"2.0001", 20001, false},
		{"2.00001", 0, true},
		{"-0.5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRatio(decimal.RequireFromString(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Uint64() != tt.want {
				t.Errorf("got %s, want %d", got.Dec(), tt.want)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	if got := ratio(fixed.New(17657)).String(); got != "1.7657" {
		t.Errorf("ratio(17657) = %s", got)
	}
	if got := ratio(fixed.New(0)).String(); got != "0" {
		t.Errorf("ratio(0) = %s", got)
	}
}

func TestStatusFor_Unknown(t *testing.T) {
	if got := statusFor(errTest("boom")); got != 500 {
		t.Errorf("unknown error mapped to %d", got)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
