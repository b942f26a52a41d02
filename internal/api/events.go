package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

// --- Request/Response types ---

// BetRequest is the JSON body for POST /events/{event}/bets.
type BetRequest struct {
	Pool     int             `json:"pool"`
	Amount   decimal.Decimal `json:"amount"`
	Referrer uint64          `json:"referrer"` // partner id, informational only
}

// WithdrawResponse is the JSON body returned from POST /events/{event}/withdraw.
type WithdrawResponse struct {
	Event   common.Address  `json:"event"`
	Account common.Address  `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// EventResponse is the public view of one event.
type EventResponse struct {
	Address        common.Address    `json:"address"`
	Asset          common.Address    `json:"asset"`
	PoolCount      int               `json:"pool_count"`
	MinStake       decimal.Decimal   `json:"min_stake"`
	CommissionRate int64             `json:"commission_rate"`
	Deadline       time.Time         `json:"deadline"`
	StopBetsAt     *time.Time        `json:"stop_bets_at,omitempty"`
	Result         model.Result      `json:"result"`
	CanBet         bool              `json:"can_bet"`
	PoolTotals     []decimal.Decimal `json:"pool_totals"`
	PoolShares     []int64           `json:"pool_shares"`
	Staked         decimal.Decimal   `json:"staked"`
	Held           decimal.Decimal   `json:"held"`
	Commission     decimal.Decimal   `json:"commission"`
	Forfeited      decimal.Decimal   `json:"forfeited"`
	CreatedAt      time.Time         `json:"created_at"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
}

// EventList is a window over an event enumeration.
type EventList struct {
	Count  int              `json:"count"`
	Events []common.Address `json:"events"`
}

// --- HTTP Handlers ---

// ListEvents handles GET /api/v1/events
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	count, err := s.reg.CountEvents(ctx)
	if err != nil {
		fail(w, err)
		return
	}
	events, err := s.reg.ListEvents(ctx, offset, limit)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventList{Count: count, Events: events})
}

// ListOpenEvents handles GET /api/v1/events/open
func (s *Service) ListOpenEvents(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	count, err := s.reg.CountOpenEvents(ctx)
	if err != nil {
		fail(w, err)
		return
	}
	events, err := s.reg.ListOpenEvents(ctx, offset, limit)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventList{Count: count, Events: events})
}

// GetEvent handles GET /api/v1/events/{event}
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	ev, err := s.reg.Event(ctx, addr)
	if err != nil {
		fail(w, err)
		return
	}
	canBet, err := s.reg.CanBet(ctx, addr)
	if err != nil {
		fail(w, err)
		return
	}

	resp := EventResponse{
		Address:        ev.Address,
		Asset:          ev.Asset,
		PoolCount:      ev.PoolCount,
		MinStake:       ev.MinStake,
		CommissionRate: ev.CommissionRate,
		Deadline:       ev.Deadline,
		Result:         ev.Result,
		CanBet:         canBet,
		PoolTotals:     ev.PoolTotals,
		PoolShares:     make([]int64, ev.PoolCount),
		Staked:         ev.Staked(),
		Held:           ev.Held(),
		Commission:     ev.Commission,
		Forfeited:      ev.Forfeited,
		CreatedAt:      ev.CreatedAt,
	}
	if !ev.StopBetsAt.IsZero() {
		resp.StopBetsAt = &ev.StopBetsAt
	}
	if !ev.ClosedAt.IsZero() {
		resp.ClosedAt = &ev.ClosedAt
	}
	for pool := range resp.PoolShares {
		if resp.PoolShares[pool], err = s.reg.PoolShare(ctx, addr, pool); err != nil {
			fail(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRecords handles GET /api/v1/events/{event}/records
func (s *Service) GetRecords(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	records, err := s.reg.Records(r.Context(), addr)
	if err != nil {
		fail(w, err)
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// PlaceBet handles POST /api/v1/events/{event}/bets
// The caller must have approved the event address beforehand.
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	bettor, ok := caller(w, r)
	if !ok {
		return
	}
	var req BetRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.reg.PlaceBet(r.Context(), bettor, addr, req.Pool, req.Amount, req.Referrer); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"event":    addr,
		"pool":     req.Pool,
		"bettor":   bettor,
		"amount":   req.Amount,
		"referrer": req.Referrer,
	})
}

// Withdraw handles POST /api/v1/events/{event}/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	bettor, ok := caller(w, r)
	if !ok {
		return
	}

	paid, err := s.reg.Withdraw(r.Context(), bettor, addr)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{Event: addr, Account: bettor, Amount: paid})
}

// GetPoolShare handles GET /api/v1/events/{event}/pools/{pool}/share
func (s *Service) GetPoolShare(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	pool, ok := poolParam(w, r)
	if !ok {
		return
	}
	share, err := s.reg.PoolShare(r.Context(), addr, pool)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool": pool, "share": share})
}

// GetPotentialGain handles GET /api/v1/events/{event}/pools/{pool}/gain?account=&extra=
func (s *Service) GetPotentialGain(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	pool, ok := poolParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var account common.Address
	if v := q.Get("account"); v != "" {
		if !common.IsHexAddress(v) {
			writeError(w, "invalid account address: "+v, http.StatusBadRequest)
			return
		}
		account = common.HexToAddress(v)
	} else if acct, ok := caller(w, r); ok {
		account = acct
	} else {
		return
	}
	extra := decimal.Zero
	if v := q.Get("extra"); v != "" {
		var err error
		if extra, err = decimal.NewFromString(v); err != nil {
			writeError(w, "extra must be a decimal amount", http.StatusBadRequest)
			return
		}
	}

	gain, err := s.reg.PotentialGain(r.Context(), addr, pool, account, extra)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":    pool,
		"account": account,
		"extra":   extra,
		"payout":  gain,
	})
}

// ListBettors handles GET /api/v1/events/{event}/pools/{pool}/bettors
func (s *Service) ListBettors(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	pool, ok := poolParam(w, r)
	if !ok {
		return
	}
	offset, limit, ok := page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	count, err := s.reg.CountBettorsPerPool(ctx, addr, pool)
	if err != nil {
		fail(w, err)
		return
	}
	bettors, err := s.reg.ListBettorsPerPool(ctx, addr, offset, limit, pool)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "bettors": bettors})
}

// ListPartners handles GET /api/v1/events/{event}/partners/{account}
func (s *Service) ListPartners(w http.ResponseWriter, r *http.Request) {
	addr, ok := eventParam(w, r)
	if !ok {
		return
	}
	account, ok := addressParam(w, r, "account")
	if !ok {
		return
	}
	offset, limit, ok := page(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	count, err := s.reg.CountPartnerIDs(ctx, addr, account)
	if err != nil {
		fail(w, err)
		return
	}
	ids, err := s.reg.ListPartnerIDs(ctx, addr, offset, limit, account)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "partners": ids})
}
