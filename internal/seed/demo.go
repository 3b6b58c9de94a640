package seed

import (
	"math/rand/v2"
	"time"

	"github.com/atinyakov/crmkeeper/internal/models"
)

// DemoTenant describes the pre-provisioned demo tenant: an account that can
// log in without registering first and starts with a generated dataset.
type DemoTenant struct {
	Email     string
	Name      string
	ID        string
	Customers int
}

// DefaultDemoCustomers is the size of the dataset seeded for the demo tenant.
const DefaultDemoCustomers = 50

// NewDemoTenant returns a demo tenant for email, or nil when email is empty.
func NewDemoTenant(email string) *DemoTenant {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	return &DemoTenant{
		Email:     email,
		Name:      "Demo Account",
		ID:        "u_demo_001",
		Customers: DefaultDemoCustomers,
	}
}

// Matches reports whether email belongs to the demo tenant.
func (d *DemoTenant) Matches(email string) bool {
	return d != nil && models.NormalizeEmail(email) == d.Email
}

// Dataset builds the demo customers relative to now.
func (d *DemoTenant) Dataset(now time.Time) []models.Customer {
	seed := uint64(now.UnixNano())
	return Generate(d.Customers, now, rand.New(rand.NewPCG(seed, seed>>1|1)))
}
