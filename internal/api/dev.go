package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oddspool/market-engine/internal/oracle"
)

// EventAdmin registers events and their outcomes. Implemented by the
// in-memory oracle.
type EventAdmin interface {
	SetWindow(eventID string, w oracle.Window)
	Approve(eventID string, winner int)
}

// EventRequest is the JSON body for PUT /admin/events/{eventID}.
type EventRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ApproveRequest is the JSON body for POST /admin/events/{eventID}/approve.
type ApproveRequest struct {
	WinningOption int `json:"winning_option"`
}

// CreditRequest is the JSON body for POST /admin/accounts/{account}/credit.
type CreditRequest struct {
	Amount string `json:"amount"`
}

// EnableDevRoutes adds the event and funding endpoints used when the engine
// runs without a governance database. Call before Routes.
func (s *Service) EnableDevRoutes(events EventAdmin) {
	s.events = events
}

func (s *Service) devRoutes(r chi.Router) {
	if s.events == nil {
		return
	}
	r.Put("/admin/events/{eventID}", s.PutEvent)
	r.Post("/admin/events/{eventID}/approve", s.ApproveEvent)
	r.Post("/admin/accounts/{account}/credit", s.CreditAccount)
}

// PutEvent handles PUT /admin/events/{eventID}
func (s *Service) PutEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	if req.End.Before(req.Start) {
		writeError(w, "end must not be before start", http.StatusBadRequest)
		return
	}
	eventID := chi.URLParam(r, "eventID")
	s.events.SetWindow(eventID, oracle.Window{Start: req.Start, End: req.End})
	s.logger.Info("event window set", "event_id", eventID, "start", req.Start, "end", req.End)
	w.WriteHeader(http.StatusNoContent)
}

// ApproveEvent handles POST /admin/events/{eventID}/approve
func (s *Service) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	eventID := chi.URLParam(r, "eventID")
	s.events.Approve(eventID, req.WinningOption)
	s.logger.Info("event outcome approved", "event_id", eventID, "winner", req.WinningOption)
	w.WriteHeader(http.StatusNoContent)
}

// CreditAccount handles POST /admin/accounts/{account}/credit
func (s *Service) CreditAccount(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	account := chi.URLParam(r, "account")
	if err := s.vault.Credit(r.Context(), account, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.GetBalance(w, r)
}
