// Package seed holds the customer data a tenant starts with and the
// pre-provisioned demo tenant.
package seed

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/atinyakov/crmkeeper/internal/models"
)

// Default returns the fixed sequence loaded for a tenant that has no stored
// customers yet. Each call returns fresh copies.
func Default() []models.Customer {
	return []models.Customer{
		{
			ID:          "1",
			Name:        "João Silva",
			Email:       "joao@techflow.com",
			Company:     "TechFlow Solutions",
			Status:      models.StatusActive,
			Value:       12500,
			Phone:       "(11) 99999-9999",
			LastContact: "2023-10-25",
			Notes:       "Recurring customer.",
			Priority:    models.PriorityHigh,
		},
		{
			ID:          "2",
			Name:        "Maria Santos",
			Email:       "maria@lumina.io",
			Company:     "Lumina Creative",
			Status:      models.StatusLead,
			Value:       4500,
			Phone:       "(21) 98888-8888",
			LastContact: "2023-10-20",
			Notes:       "Interested in the Enterprise plan.",
			Priority:    models.PriorityMedium,
		},
	}
}

var (
	firstNames = []string{"Gabriel", "Ana", "Lucas", "Julia", "Matheus", "Beatriz", "Pedro", "Larissa", "Thiago", "Camila", "Rodrigo", "Fernanda", "Bruno", "Isabela", "Vinicius", "Mariana"}
	lastNames  = []string{"Silva", "Santos", "Oliveira", "Souza", "Rodrigues", "Ferreira", "Almeida", "Pereira", "Costa", "Carvalho"}
	companies  = []string{"TechNexus", "BioLogic", "Vanguarda Digital", "Global Log", "EcoMinds", "SkyLine Group", "Prime Solutions", "Innova Soft", "Delta Services"}
	suffixes   = []string{"S.A", "LTDA", "ME", "Group"}
	industries = []string{"Technology", "Retail", "Health", "Education", "Manufacturing", "Services"}
	sources    = []string{"LinkedIn", "Referral", "Google Ads", "Outbound", "Social"}
	cities     = [][2]string{{"São Paulo", "SP"}, {"Rio de Janeiro", "RJ"}, {"Belo Horizonte", "MG"}, {"Curitiba", "PR"}, {"Porto Alegre", "RS"}, {"Salvador", "BA"}}
)

// Generate builds n plausible customers with last-contact dates spread over
// the 60 days before now. r drives every random choice.
func Generate(n int, now time.Time, r *rand.Rand) []models.Customer {
	out := make([]models.Customer, 0, n)
	for i := range n {
		first := pick(r, firstNames)
		last := pick(r, lastNames)
		company := pick(r, companies)
		city := cities[r.IntN(len(cities))]
		domain := strings.ToLower(strings.ReplaceAll(company, " ", ""))
		contacted := now.UTC().AddDate(0, 0, -r.IntN(60))

		status := models.StatusLead
		if r.Float64() > 0.4 {
			status = models.StatusActive
		}
		priority := models.PriorityLow
		switch p := r.Float64(); {
		case p > 0.7:
			priority = models.PriorityHigh
		case p > 0.4:
			priority = models.PriorityMedium
		}

		out = append(out, models.Customer{
			ID:          "gen_" + uuid.NewString(),
			Name:        first + " " + last,
			Email:       fmt.Sprintf("%s.%s%d@%s.com.br", strings.ToLower(first), strings.ToLower(last), i, domain),
			Company:     company + " " + pick(r, suffixes),
			Status:      status,
			Value:       float64(r.IntN(85000) + 1200),
			LastContact: contacted.Format(models.DateLayout),
			Phone:       fmt.Sprintf("(%d) 9%d-%d", 11+r.IntN(88), 7000+r.IntN(2999), 1000+r.IntN(8999)),
			Notes:       "Generated customer for performance analysis and interface testing.",
			Priority:    priority,
			TaxID:       fmt.Sprintf("%d.%d.%d/0001-%d", 10+r.IntN(89), 100+r.IntN(899), 100+r.IntN(899), 10+r.IntN(89)),
			Website:     "www." + domain + ".com.br",
			Industry:    pick(r, industries),
			LeadSource:  pick(r, sources),
			Address: &models.Address{
				PostalCode: fmt.Sprintf("%d-000", 10000+r.IntN(80000)),
				Street:     "Test Street",
				City:       city[0],
				State:      city[1],
			},
			ActivityLog: []models.Activity{{
				ID:   ulid.Make().String(),
				At:   contacted,
				Text: "Customer registered in the CRM.",
				Kind: models.ActivityNote,
			}},
		})
	}
	return out
}

func pick(r *rand.Rand, from []string) string {
	return from[r.IntN(len(from))]
}
