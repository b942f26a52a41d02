package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CreateEventRequest is the JSON body for POST /events.
type CreateEventRequest struct {
	Pools    int             `json:"pools"`     // 2..31; pool 0 may be the draw
	MinStake decimal.Decimal `json:"min_stake"` // smallest accepted bet
}

// ScheduleRequest carries the instant for disable-at and deadline calls.
type ScheduleRequest struct {
	At time.Time `json:"at"`
}

// EndEventRequest is the JSON body for POST /events/{event}/end. Pool is
// required.
type EndEventRequest struct {
	Pool *int `json:"pool"`
}

// CommissionRequest is the JSON body for PUT /settings/commission.
type CommissionRequest struct {
	Percentage int64 `json:"percentage"`
}

// AddressRequest is the JSON body for PUT /settings/asset and /settings/house.
type AddressRequest struct {
	Address common.Address `json:"address"`
}

// GetSettings handles GET /api/v1/settings
func (s *Service) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Settings())
}

// CreateEvent handles POST /api/v1/events
func (s *Service) CreateEvent(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreateEventRequest
	if !decode(w, r, &req) {
		return
	}

	addr, err := s.reg.CreateEvent(r.Context(), admin, req.Pools, req.MinStake)
	if err != nil {
		fail(w, err)
		return
	}
	ev, err := s.reg.Event(r.Context(), addr)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// EnableBet handles POST /api/v1/events/{event}/enable
func (s *Service) EnableBet(w http.ResponseWriter, r *http.Request) {
	s.adminEvent(w, r, func(admin, event common.Address) error {
		return s.reg.EnableBet(r.Context(), admin, event)
	})
}

// DisableBet handles POST /api/v1/events/{event}/disable
func (s *Service) DisableBet(w http.ResponseWriter, r *http.Request) {
	s.adminEvent(w, r, func(admin, event common.Address) error {
		return s.reg.DisableBet(r.Context(), admin, event)
	})
}

// DisableBetAt handles POST /api/v1/events/{event}/disable-at
func (s *Service) DisableBetAt(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	s.adminEvent(w, r, func(admin, event common.Address) error {
		return s.reg.DisableBetAtDate(r.Context(), admin, event, req.At)
	}, &req)
}

// SetDeadline handles POST /api/v1/events/{event}/deadline
func (s *Service) SetDeadline(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	s.adminEvent(w, r, func(admin, event common.Address) error {
		return s.reg.SetDeadline(r.Context(), admin, event, req.At)
	}, &req)
}

// CancelEvent handles POST /api/v1/events/{event}/cancel
func (s *Service) CancelEvent(w http.ResponseWriter, r *http.Request) {
	s.adminEvent(w, r, func(admin, event common.Address) error {
		return s.reg.CancelEvent(r.Context(), admin, event)
	})
}

// EndEvent handles POST /api/v1/events/{event}/end
func (s *Service) EndEvent(w http.ResponseWriter, r *http.Request) {
	var req EndEventRequest
	s.adminEvent(w, r, func(admin, event common.Address) error {
		if req.Pool == nil {
			return errPoolRequired
		}
		return s.reg.EndEvent(r.Context(), admin, event, *req.Pool)
	}, &req)
}

// adminEvent runs an admin action on the {event} path parameter, decoding
// the optional body first, and responds with the event's new state.
func (s *Service) adminEvent(w http.ResponseWriter, r *http.Request, action func(admin, event common.Address) error, body ...any) {
	event, ok := eventParam(w, r)
	if !ok {
		return
	}
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	for _, b := range body {
		if !decode(w, r, b) {
			return
		}
	}

	if err := action(admin, event); err != nil {
		fail(w, err)
		return
	}
	ev, err := s.reg.Event(r.Context(), event)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// SetCommission handles PUT /api/v1/settings/commission
func (s *Service) SetCommission(w http.ResponseWriter, r *http.Request) {
	var req CommissionRequest
	s.adminSettings(w, r, &req, func(admin common.Address) error {
		return s.reg.SetCommissionPercentage(r.Context(), admin, req.Percentage)
	})
}

// SetAsset handles PUT /api/v1/settings/asset
func (s *Service) SetAsset(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	s.adminSettings(w, r, &req, func(admin common.Address) error {
		return s.reg.SetTokenAddress(r.Context(), admin, req.Address)
	})
}

// SetHouse handles PUT /api/v1/settings/house
func (s *Service) SetHouse(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	s.adminSettings(w, r, &req, func(admin common.Address) error {
		return s.reg.SetOwnerAddress(r.Context(), admin, req.Address)
	})
}

func (s *Service) adminSettings(w http.ResponseWriter, r *http.Request, body any, action func(admin common.Address) error) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	if !decode(w, r, body) {
		return
	}
	if err := action(admin); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.reg.Settings())
}
