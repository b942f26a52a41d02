// Package api provides the HTTP handlers for bettors, admins and read
// models. Handlers translate JSON to registry calls; every rule lives in the
// registry and ledger packages.
//
// Amounts travel as decimal strings in JSON.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/atmx/wager-engine/internal/asset"
	"github.com/atmx/wager-engine/internal/auth"
	"github.com/atmx/wager-engine/internal/ledger"
	"github.com/atmx/wager-engine/internal/registry"
	"github.com/atmx/wager-engine/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// errPoolRequired rejects an end-event body that names no winning pool.
var errPoolRequired = errors.New("pool is required")

// Service exposes a Registry over HTTP. The faucet endpoints under /asset
// are only mounted when the engine issues the asset itself.
type Service struct {
	reg   *registry.Registry
	roles auth.Authorizer
	token asset.Faucet
}

// NewService creates the HTTP service. Pass nil for token when the asset
// lives outside the engine.
func NewService(reg *registry.Registry, roles auth.Authorizer, token asset.Faucet) *Service {
	return &Service{reg: reg, roles: roles, token: token}
}

// Mount registers every route on r, typically the /api/v1 sub-router.
func (s *Service) Mount(r chi.Router) {
	r.Get("/settings", s.GetSettings)
	r.Put("/settings/commission", s.SetCommission)
	r.Put("/settings/asset", s.SetAsset)
	r.Put("/settings/house", s.SetHouse)

	r.Get("/events", s.ListEvents)
	r.Post("/events", s.CreateEvent)
	r.Get("/events/open", s.ListOpenEvents)

	r.Route("/events/{event}", func(r chi.Router) {
		r.Get("/", s.GetEvent)
		r.Get("/records", s.GetRecords)

		// Bettor actions.
		r.Post("/bets", s.PlaceBet)
		r.Post("/withdraw", s.Withdraw)

		// Read models.
		r.Get("/pools/{pool}/share", s.GetPoolShare)
		r.Get("/pools/{pool}/gain", s.GetPotentialGain)
		r.Get("/pools/{pool}/bettors", s.ListBettors)
		r.Get("/partners/{account}", s.ListPartners)

		// Admin actions.
		r.Post("/enable", s.EnableBet)
		r.Post("/disable", s.DisableBet)
		r.Post("/disable-at", s.DisableBetAt)
		r.Post("/deadline", s.SetDeadline)
		r.Post("/cancel", s.CancelEvent)
		r.Post("/end", s.EndEvent)
	})

	if s.token != nil {
		r.Get("/asset/balance/{account}", s.GetBalance)
		r.Post("/asset/approve", s.Approve)
		r.Post("/asset/mint", s.Mint)
	}
}

// --- helpers ---

// caller returns the authenticated account or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	acct, ok := auth.Caller(r.Context())
	if !ok {
		writeError(w, "authentication required", http.StatusUnauthorized)
		return common.Address{}, false
	}
	return acct, true
}

// eventParam parses the {event} path parameter or writes 400.
func eventParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	return addressParam(w, r, "event")
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := chi.URLParam(r, name)
	if !common.IsHexAddress(v) {
		writeError(w, "invalid "+name+" address: "+v, http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func poolParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	pool, err := strconv.Atoi(chi.URLParam(r, "pool"))
	if err != nil {
		writeError(w, "pool must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return pool, true
}

// page reads ?offset and ?limit, defaulting to the first defaultLimit items.
func page(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	q := r.URL.Query()
	offset, limit = 0, defaultLimit
	var err error
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			writeError(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return 0, 0, false
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return 0, 0, false
		}
	}
	return offset, min(limit, maxLimit), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps a registry, ledger or asset error to its HTTP status.
func fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, ledger.ErrNotEventRegistry):
		return http.StatusForbidden

	case errors.Is(err, registry.ErrUnknownEvent),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, errPoolRequired),
		errors.Is(err, ledger.ErrNotExistingPool),
		errors.Is(err, ledger.ErrNotSufficientBetAmount),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, registry.ErrWrongNbTeam),
		errors.Is(err, registry.ErrInvalidMinStake),
		errors.Is(err, registry.ErrWrongDeadline),
		errors.Is(err, registry.ErrWrongPercentage),
		errors.Is(err, registry.ErrZeroAddress),
		errors.Is(err, asset.ErrUnknownAsset),
		errors.Is(err, asset.ErrInvalidAmount):
		return http.StatusBadRequest

	case errors.Is(err, ledger.ErrCannotBet),
		errors.Is(err, ledger.ErrAlreadyClosed),
		errors.Is(err, ledger.ErrDeadlinePassed),
		errors.Is(err, ledger.ErrCannotWithdraw),
		errors.Is(err, registry.ErrAlreadyClosed),
		errors.Is(err, registry.ErrEventClosed),
		errors.Is(err, registry.ErrDeadlineExceeded):
		return http.StatusConflict

	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}
