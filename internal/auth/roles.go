// Package auth answers "who is calling" and "may they do this". Role
// membership is injected into the registry as an Authorizer; caller identity
// comes from a bearer JWT whose subject is the caller's account address.
package auth

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a permission set.
type Role string

// RoleAdmin gates every registry-mutating call.
const RoleAdmin Role = "ADMIN"

// Authorizer reports role membership.
type Authorizer interface {
	HasRole(role Role, account common.Address) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(role Role, account common.Address) bool

func (f AuthorizerFunc) HasRole(role Role, account common.Address) bool { return f(role, account) }

// Roles is an in-memory role table.
type Roles struct {
	mu      sync.RWMutex
	members map[Role]map[common.Address]struct{}
}

// NewRoles grants RoleAdmin to every admin given.
func NewRoles(admins ...common.Address) *Roles {
	r := &Roles{members: make(map[Role]map[common.Address]struct{})}
	for _, a := range admins {
		r.Grant(RoleAdmin, a)
	}
	return r
}

func (r *Roles) Grant(role Role, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[role] == nil {
		r.members[role] = make(map[common.Address]struct{})
	}
	r.members[role][account] = struct{}{}
}

func (r *Roles) Revoke(role Role, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[role], account)
}

func (r *Roles) HasRole(role Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[role][account]
	return ok
}
