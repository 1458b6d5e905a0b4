package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

func TestArchiveMarket_WritesJSONL(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	m := model.NewMarket("m1", "e1", []string{"yes", "no"}, now, now)
	m.Settled = true
	m.WinningOptionIndex = 1

	bets := []*model.Bet{
		{ID: 1, Owner: "alice", MarketID: "m1", Amount: fixed.New(10), Status: model.BetSettledLost},
		{ID: 2, Owner: "bob", MarketID: "m1", OptionIndex: 1, Amount: fixed.New(20), Status: model.BetSettledWon},
	}

	w := NewMemoryWriter()
	a := NewArchiver(w, "ledgers")
	if err := a.ArchiveMarket(context.Background(), m, bets); err != nil {
		t.Fatal(err)
	}

	data, ok := w.Get("ledgers/m1.jsonl")
	if !ok {
		t.Fatal("expected object at ledgers/m1.jsonl")
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines [][]byte
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var gotMarket model.Market
	if err := json.Unmarshal(lines[0], &gotMarket); err != nil {
		t.Fatal(err)
	}
	if gotMarket.ID != "m1" || gotMarket.WinningOptionIndex != 1 {
		t.Errorf("unexpected market line %s", lines[0])
	}

	var gotBet model.Bet
	if err := json.Unmarshal(lines[2], &gotBet); err != nil {
		t.Fatal(err)
	}
	if gotBet.ID != 2 || gotBet.Status != model.BetSettledWon || gotBet.Amount.Uint64() != 20 {
		t.Errorf("unexpected bet line %s", lines[2])
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio.local", false, "http://minio.local"},
		{"minio.local", true, "https://minio.local"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}
