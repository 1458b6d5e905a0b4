package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/oddspool/market-engine/internal/model"
)

// Writer stores an object under a key.
type Writer interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Archiver writes a closed market's ledger as JSONL: the market record on
// the first line, then every bet in id order.
type Archiver struct {
	writer Writer
	prefix string
}

// NewArchiver creates an Archiver writing under prefix (e.g. "ledgers").
func NewArchiver(w Writer, prefix string) *Archiver {
	return &Archiver{writer: w, prefix: prefix}
}

// Key returns the object key a market's ledger is written to.
func (a *Archiver) Key(marketID string) string {
	return fmt.Sprintf("%s/%s.jsonl", a.prefix, marketID)
}

// ArchiveMarket uploads m and its bets.
func (a *Archiver) ArchiveMarket(ctx context.Context, m *model.Market, bets []*model.Bet) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("archive: encode market %s: %w", m.ID, err)
	}
	for _, b := range bets {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("archive: encode bet %d: %w", b.ID, err)
		}
	}
	return a.writer.Put(ctx, a.Key(m.ID), &buf, "application/x-ndjson")
}

// MemoryWriter keeps objects in memory. Used in tests and when no bucket is
// configured.
type MemoryWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryWriter returns an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{objects: make(map[string][]byte)}
}

func (w *MemoryWriter) Put(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects[key] = data
	return nil
}

// Get returns a stored object.
func (w *MemoryWriter) Get(key string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.objects[key]
	return data, ok
}
