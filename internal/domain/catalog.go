package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
)

type Tenant struct {
	bun.BaseModel `bun:"table:tenants"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	Name           string    `bun:"name,notnull"`
	DepositPercent int       `bun:"deposit_percent,notnull"`
	PrepaidMethods []string  `bun:"prepaid_methods,array"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// RequiresPrepayment reports whether bookings paid with method start out Pending until
// the deposit is settled.
func (t Tenant) RequiresPrepayment(method PaymentMethod) bool {
	for _, m := range t.PrepaidMethods {
		if PaymentMethod(m) == method {
			return true
		}
	}
	return false
}

// DepositFor returns the share of total due up front, rounded up.
func (t Tenant) DepositFor(total int64) int64 {
	pct := int64(t.DepositPercent)
	if pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return total
	}
	return (total*pct + 99) / 100
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	TenantID        uuid.UUID `bun:"tenant_id,notnull,type:uuid"`
	Name            string    `bun:"name,notnull"`
	DurationSeconds int       `bun:"duration_seconds,notnull"`
	Price           int64     `bun:"price,notnull"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}
