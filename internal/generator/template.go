package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atinyakov/crmkeeper/internal/models"
)

// Template writes reports locally from the customer figures alone.
type Template struct {
	Now func() time.Time
}

// NewTemplate constructs a Template.
func NewTemplate() *Template {
	return &Template{Now: time.Now}
}

// Generate renders the portfolio analysis.
func (t *Template) Generate(ctx context.Context, customers []models.CustomerSummary) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var total float64
	var active, leads, inactive int
	for _, c := range customers {
		total += c.Value
		switch c.Status {
		case models.StatusActive:
			active++
		case models.StatusLead:
			leads++
		case models.StatusInactive:
			inactive++
		}
	}

	var b strings.Builder
	b.WriteString("## Customer Portfolio Analysis\n\n")
	fmt.Fprintf(&b, "_Generated %s_\n\n", t.now().UTC().Format(models.DateLayout))
	b.WriteString("### Overview\n")
	fmt.Fprintf(&b, "- **Total value**: %s\n", money(total))
	fmt.Fprintf(&b, "- **Customers**: %d\n", len(customers))
	fmt.Fprintf(&b, "- **Active customers**: %d\n", active)
	fmt.Fprintf(&b, "- **Leads**: %d\n", leads)
	fmt.Fprintf(&b, "- **Inactive**: %d\n\n", inactive)

	b.WriteString("### Strategic Insights\n")
	if leads > 0 {
		b.WriteString("- **Opportunity**: focus on converting leads to grow revenue\n")
	} else {
		b.WriteString("- **Opportunity**: look for new qualified leads\n")
	}
	if active > 0 {
		b.WriteString("- **Retention**: keep close contact with active customers\n")
	} else {
		b.WriteString("- **Retention**: reactivate inactive customers\n")
	}
	b.WriteString("- **Potential**: concentrate effort on the highest value accounts\n")
	if top := topByValue(customers, 3); len(top) > 0 {
		b.WriteString("\n### Top Accounts\n")
		for i, c := range top {
			fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, c.Name, c.Company, money(c.Value))
		}
	}

	b.WriteString("\n### Recommendations\n")
	b.WriteString("1. Run a systematic follow-up for leads\n")
	b.WriteString("2. Build a loyalty program for active customers\n")
	b.WriteString("3. Study purchase patterns for cross-selling\n")
	return b.String(), nil
}

// Refine appends instruction to text as a revision note.
func (t *Template) Refine(ctx context.Context, text, instruction string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return text, nil
	}
	return fmt.Sprintf("%s\n\n> Revision (%s): %s\n", strings.TrimRight(text, "\n"),
		t.now().UTC().Format(models.DateLayout), instruction), nil
}

func (t *Template) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// Advice returns a one-line recommendation for c.
func Advice(c models.Customer) string {
	switch c.Status {
	case models.StatusActive:
		return fmt.Sprintf("Keep in frequent contact with %s. Consider a service upgrade based on the current value of %s.", c.Name, money(c.Value))
	case models.StatusLead:
		return fmt.Sprintf("Prioritize %s: a lead worth %s. Schedule a demo meeting.", c.Name, money(c.Value))
	default:
		return fmt.Sprintf("Try to reactivate %s. Last contact on %s. Offer special terms.", c.Name, c.LastContact)
	}
}

func topByValue(customers []models.CustomerSummary, n int) []models.CustomerSummary {
	out := append([]models.CustomerSummary(nil), customers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func money(v float64) string {
	whole := fmt.Sprintf("%.2f", v)
	intPart, frac, _ := strings.Cut(whole, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)
	s := "$" + strings.Join(groups, ",") + "." + frac
	if neg {
		s = "-" + s
	}
	return s
}
