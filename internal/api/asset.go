package api

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/auth"
)

// ApproveRequest is the JSON body for POST /asset/approve. Bettors approve
// an event address before placing a bet on it.
type ApproveRequest struct {
	Spender common.Address  `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

// MintRequest is the JSON body for POST /asset/mint.
type MintRequest struct {
	Account common.Address  `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// BalanceResponse reports an account's asset balance.
type BalanceResponse struct {
	Asset   common.Address  `json:"asset"`
	Account common.Address  `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// GetBalance handles GET /api/v1/asset/balance/{account}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := addressParam(w, r, "account")
	if !ok {
		return
	}
	bal, err := s.token.BalanceOf(r.Context(), account)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Asset: s.token.Address(), Account: account, Balance: bal})
}

// Approve handles POST /api/v1/asset/approve
func (s *Service) Approve(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.token.Approve(r.Context(), owner, req.Spender, req.Amount); err != nil {
		fail(w, err)
		return
	}
	allowance, err := s.token.Allowance(r.Context(), owner, req.Spender)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     owner,
		"spender":   req.Spender,
		"allowance": allowance,
	})
}

// Mint handles POST /api/v1/asset/mint (admin only).
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	if !s.roles.HasRole(auth.RoleAdmin, admin) {
		writeError(w, "caller is not an admin", http.StatusForbidden)
		return
	}
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	// Amounts finer than the asset's decimals are rejected like bets are.
	if err := s.token.Mint(r.Context(), req.Account, req.Amount); err != nil {
		fail(w, err)
		return
	}

	slog.Info("asset minted", "account", req.Account.Hex(), "amount", req.Amount.String())

	bal, _ := s.token.BalanceOf(r.Context(), req.Account)
	writeJSON(w, http.StatusOK, BalanceResponse{Asset: s.token.Address(), Account: req.Account, Balance: bal})
}
