package domain

import "time"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleFarmer Role = "farmer"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleFarmer, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Privileged reports whether the role may act on other users' orders.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSystem
}

// Actor is the identity behind a mutating call.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Account is a user wallet. Balance always equals the signed sum of the
// account's ledger entries.
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Role        Role      `json:"role"`
	Balance     Amount    `json:"balance"`
	Version     int64     `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EscrowAccount is the resolved reference to the system account holding
// funds between auction end and delivery confirmation.
type EscrowAccount struct {
	ID string
}

func (e EscrowAccount) Configured() bool { return e.ID != "" }

// Actor returns the identity the sweeper acts under.
func (e EscrowAccount) Actor() Actor {
	return Actor{ID: e.ID, Role: RoleSystem}
}
