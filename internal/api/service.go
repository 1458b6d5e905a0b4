// Package api exposes the betting engine over HTTP and pushes odds changes
// to WebSocket subscribers.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oddspool/market-engine/internal/engine"
	"github.com/oddspool/market-engine/internal/model"
	"github.com/oddspool/market-engine/internal/vault"
)

// Service handles the HTTP surface of the engine. Every state change goes
// through the engine, which does its own per-market locking.
type Service struct {
	engine *engine.Engine
	vault  vault.Vault
	events EventAdmin // dev routes only
	logger *slog.Logger
}

// NewService creates the HTTP service.
func NewService(e *engine.Engine, v vault.Vault, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine: e,
		vault:  v,
		logger: logger.With("component", "api"),
	}
}

// Routes registers every handler on r. The WebSocket hub is mounted
// separately.
func (s *Service) Routes(r chi.Router) {
	r.Route("/markets", func(r chi.Router) {
		r.Get("/", s.ListMarkets)
		r.Post("/", s.CreateMarket)

		r.Route("/{marketID}", func(r chi.Router) {
			r.Get("/", s.GetMarket)
			r.Get("/odds", s.GetOdds)
			r.Get("/quote", s.QuoteBet)
			r.Get("/bets", s.ListBets)
			r.Post("/bets", s.PlaceBet)
			r.Get("/cashout/{owner}", s.ListCashouts)
			r.Post("/liquidity", s.AddLiquidity)
			r.Delete("/liquidity/{provider}", s.RemoveLiquidity)
			r.Post("/settle", s.Settle)
			r.Post("/cancel", s.Cancel)
			r.Post("/claim", s.Claim)
			r.Post("/pause", s.Pause)
			r.Post("/unpause", s.Unpause)
		})
	})

	r.Get("/bets/{betID}", s.GetBet)
	r.Get("/bets/{betID}/cashout", s.QuoteCashout)
	r.Post("/bets/{betID}/exit", s.EarlyExit)

	r.Get("/accounts/{account}", s.GetBalance)

	r.Get("/admin/fees", s.GetFees)
	r.Put("/admin/fees", s.SetFees)

	s.devRoutes(r)
}

// fail logs and writes an engine error.
func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, err.Error(), status)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func betID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "betID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "bet id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// --- Markets ---

// CreateMarket handles POST /markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if !decode(w, r, &req) {
		return
	}

	params := engine.MarketParams{
		EventID:            req.EventID,
		Options:            req.Options,
		SettlementDeadline: req.SettlementDeadline,
		Provider:           req.Provider,
	}
	if req.InitialLiquidity != "" {
		amount, err := parseAmount("initial_liquidity", req.InitialLiquidity)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		params.InitialLiquidity = amount
	}

	m, err := s.engine.CreateMarket(r.Context(), params)
	if err != nil {
		// A market that exists but could not be funded is still reported.
		if m != nil {
			s.logger.Warn("market created without liquidity", "market_id", m.ID, "err", err)
		}
		if errors.Is(err, model.ErrInvalidMarket) && m == nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMarketResponse(m))
}

// ListMarkets handles GET /markets
// Optional ?status= filters by open, paused, unfunded, settled or canceled.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.engine.ListMarkets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := r.URL.Query().Get("status")
	out := make([]MarketResponse, 0, len(markets))
	for i := range markets {
		resp := newMarketResponse(&markets[i])
		if status != "" && resp.Status != status {
			continue
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket handles GET /markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketResponse(m))
}

// GetOdds handles GET /markets/{marketID}/odds
func (s *Service) GetOdds(w http.ResponseWriter, r *http.Request) {
	odds, err := s.engine.GetAllOdds(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"odds":     ratios(odds),
		"odds_bps": decs(odds),
	})
}

// QuoteBet handles GET /markets/{marketID}/quote?option=0&amount=1000
func (s *Service) QuoteBet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	option, err := strconv.Atoi(q.Get("option"))
	if err != nil {
		writeError(w, "option must be an integer", http.StatusBadRequest)
		return
	}
	amount, err := parseAmount("amount", q.Get("amount"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := s.engine.CalculatePotentialReturn(r.Context(), chi.URLParam(r, "marketID"), option, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

// --- Bets ---

// PlaceBet handles POST /markets/{marketID}/bets
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Owner == "" {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	minOdds, err := parseRatio(req.MinOdds)
	if err != nil {
		writeError(w, "min_odds "+err.Error(), http.StatusBadRequest)
		return
	}

	bet, err := s.engine.PlaceBet(r.Context(), engine.BetRequest{
		MarketID: chi.URLParam(r, "marketID"),
		Owner:    req.Owner,
		Option:   req.Option,
		Amount:   amount,
		MinOdds:  minOdds,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBetResponse(bet))
}

// ListBets handles GET /markets/{marketID}/bets
func (s *Service) ListBets(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if _, err := s.engine.GetMarket(r.Context(), marketID); err != nil {
		s.fail(w, r, err)
		return
	}
	bets, err := s.engine.Ledger().MarketBets(r.Context(), marketID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBetResponses(bets))
}

// ListCashouts handles GET /markets/{marketID}/cashout/{owner}
// Values each of the owner's active bets at the current market state.
func (s *Service) ListCashouts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Ledger().GetActiveBetsWithCashout(r.Context(),
		chi.URLParam(r, "owner"), chi.URLParam(r, "marketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCashoutEntries(entries))
}

// GetBet handles GET /bets/{betID}
func (s *Service) GetBet(w http.ResponseWriter, r *http.Request) {
	id, ok := betID(w, r)
	if !ok {
		return
	}
	bet, err := s.engine.Ledger().GetBet(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBetResponse(bet))
}

// QuoteCashout handles GET /bets/{betID}/cashout
func (s *Service) QuoteCashout(w http.ResponseWriter, r *http.Request) {
	id, ok := betID(w, r)
	if !ok {
		return
	}
	c, err := s.engine.QuoteCashout(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCashoutResponse(id, c))
}

// EarlyExit handles POST /bets/{betID}/exit
func (s *Service) EarlyExit(w http.ResponseWriter, r *http.Request) {
	id, ok := betID(w, r)
	if !ok {
		return
	}
	var req ExitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	c, err := s.engine.EarlyExit(r.Context(), id, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCashoutResponse(id, c))
}

// --- Liquidity ---

// AddLiquidity handles POST /markets/{marketID}/liquidity
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Provider == "" {
		writeError(w, "provider is required", http.StatusBadRequest)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	marketID := chi.URLParam(r, "marketID")
	if err := s.engine.AddLiquidity(r.Context(), marketID, req.Provider, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeMarket(w, r, marketID)
}

// RemoveLiquidity handles DELETE /markets/{marketID}/liquidity/{provider}
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	marketID, provider := chi.URLParam(r, "marketID"), chi.URLParam(r, "provider")
	amount, err := s.engine.RemoveLiquidity(r.Context(), marketID, provider)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayoutResponse{MarketID: marketID, Account: provider, Amount: amount.Dec()})
}

// --- Settlement ---

// Settle handles POST /markets/{marketID}/settle
func (s *Service) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !decode(w, r, &req) {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	if err := s.engine.Settle(r.Context(), marketID, req.WinningOption); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeMarket(w, r, marketID)
}

// Cancel handles POST /markets/{marketID}/cancel
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if err := s.engine.Cancel(r.Context(), marketID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeMarket(w, r, marketID)
}

// Claim handles POST /markets/{marketID}/claim
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Claimant == "" {
		writeError(w, "claimant is required", http.StatusBadRequest)
		return
	}
	marketID := chi.URLParam(r, "marketID")
	amount, err := s.engine.ClaimWinnings(r.Context(), marketID, req.Claimant)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayoutResponse{MarketID: marketID, Account: req.Claimant, Amount: amount.Dec()})
}

// --- Admin ---

// Pause handles POST /markets/{marketID}/pause
func (s *Service) Pause(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if err := s.engine.Pause(r.Context(), marketID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeMarket(w, r, marketID)
}

// Unpause handles POST /markets/{marketID}/unpause
func (s *Service) Unpause(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if err := s.engine.Unpause(r.Context(), marketID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeMarket(w, r, marketID)
}

// GetFees handles GET /admin/fees
func (s *Service) GetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fees())
}

// SetFees handles PUT /admin/fees
func (s *Service) SetFees(w http.ResponseWriter, r *http.Request) {
	var req FeesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetFees(req.PlatformFeeBps, req.EarlyExitFeeBps); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fees())
}

// GetBalance handles GET /accounts/{account}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	bal, err := s.vault.Balance(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: bal.Dec()})
}

func (s *Service) fees() FeesResponse {
	platform, exit := s.engine.PlatformFee(), s.engine.EarlyExitFee()
	return FeesResponse{
		PlatformFeeBps:  platform.Dec(),
		EarlyExitFeeBps: exit.Dec(),
		PlatformFee:     ratio(platform),
		EarlyExitFee:    ratio(exit),
	}
}

// writeMarket responds with the market's post-operation state.
func (s *Service) writeMarket(w http.ResponseWriter, r *http.Request, marketID string) {
	m, err := s.engine.GetMarket(r.Context(), marketID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketResponse(m))
}
