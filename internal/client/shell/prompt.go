package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atinyakov/crmkeeper/internal/models"
)

// Prompter asks questions on out and reads one answer per line from in.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// Ask prints question and returns the trimmed answer. ok is false once the
// input is exhausted.
func (p *Prompter) Ask(question string) (string, bool) {
	fmt.Fprint(p.out, question)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// Confirm asks a yes/no question. Anything but y or yes means no.
func (p *Prompter) Confirm(question string) bool {
	answer, _ := p.Ask(question + " [y/N]: ")
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// PromptForCustomer asks for the fields of a new customer. Blank status,
// priority and last contact are filled in by the repository.
func (p *Prompter) PromptForCustomer() (models.Customer, error) {
	var c models.Customer
	c.Name, _ = p.Ask("Name: ")
	c.Company, _ = p.Ask("Company: ")
	c.Email, _ = p.Ask("Email: ")
	c.Phone, _ = p.Ask("Phone: ")

	status, _ := p.Ask("Status (Active/Lead/Inactive, empty for Lead): ")
	c.Status = models.Status(status)
	priority, _ := p.Ask("Priority (Low/Medium/High, empty for Medium): ")
	c.Priority = models.Priority(priority)

	value, _ := p.Ask("Value: ")
	if value != "" {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return models.Customer{}, fmt.Errorf("invalid value %q", value)
		}
		c.Value = v
	}
	c.Notes, _ = p.Ask("Notes: ")
	return c, nil
}

// PromptEditCustomer asks for new values of the editable fields of current.
// An empty answer keeps the current value.
func (p *Prompter) PromptEditCustomer(current models.Customer) (models.Customer, error) {
	c := current.Clone()
	keep := func(label string, dst *string) {
		if v, _ := p.Ask(fmt.Sprintf("%s [%s]: ", label, *dst)); v != "" {
			*dst = v
		}
	}
	keep("Name", &c.Name)
	keep("Company", &c.Company)
	keep("Email", &c.Email)
	keep("Phone", &c.Phone)

	status := string(c.Status)
	keep("Status", &status)
	c.Status = models.Status(status)
	priority := string(c.Priority)
	keep("Priority", &priority)
	c.Priority = models.Priority(priority)

	if v, _ := p.Ask(fmt.Sprintf("Value [%.2f]: ", c.Value)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return models.Customer{}, fmt.Errorf("invalid value %q", v)
		}
		c.Value = f
	}
	keep("Last contact (YYYY-MM-DD)", &c.LastContact)
	keep("Notes", &c.Notes)
	return c, nil
}

// ReadBlock reads lines until a line holding a single "." or the end of input.
func (p *Prompter) ReadBlock(question string) string {
	fmt.Fprintln(p.out, question)
	var lines []string
	for p.scanner.Scan() {
		line := p.scanner.Text()
		if strings.TrimSpace(line) == "." {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
