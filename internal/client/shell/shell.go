// Package shell is the interactive command line of the CRM. It drives a
// local workspace directly and prints notifications after every command.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/generator"
	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/service"
)

const helpText = `Available commands:
  register                      create an account and log in
  login <email> [--remember]    log in; --remember keeps the session across restarts
  logout | whoami
  list [query]                  list customers, optionally matching name or company
  status <Active|Lead|Inactive> list customers with a status
  get <id> | advice <id>
  add | edit <id> | delete <id>
  log <id> <note|call|email> <text>
  top [n] | churn | dashboard
  report | generate | refine <instruction> | setreport
  export [md|txt] [dir]
  theme [light|dark]
  exit`

// Shell reads commands and runs them against a workspace.
type Shell struct {
	ws     *service.Workspace
	prompt *Prompter
	out    io.Writer
	log    *zap.Logger
	now    func() time.Time
}

// New returns a shell over ws reading from in and writing to out.
func New(ws *service.Workspace, in io.Reader, out io.Writer, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{ws: ws, prompt: NewPrompter(in, out), out: out, log: log, now: time.Now}
}

// Run loops until exit, the end of input or the cancellation of ctx.
func (s *Shell) Run(ctx context.Context) {
	if session, ok := s.ws.Session(); ok {
		s.printf("Welcome back, %s.\n", session.Identity.Name)
	}
	for ctx.Err() == nil {
		line, ok := s.prompt.Ask("crm> ")
		if !ok {
			break
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			s.printf("Bye\n")
			return
		}
		err := s.Exec(ctx, args)
		s.flushToasts()
		if err != nil {
			s.printf("Error: %v\n", err)
		}
	}
}

// Exec runs one command.
func (s *Shell) Exec(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help":
		s.printf("%s\n", helpText)
		return nil
	case "register":
		return s.register(ctx)
	case "login":
		return s.login(ctx, rest)
	case "logout":
		return s.ws.Logout(ctx)
	case "whoami":
		return s.whoami()
	case "list":
		return s.list(strings.Join(rest, " "), "")
	case "status":
		if len(rest) != 1 {
			return errors.New("usage: status <Active|Lead|Inactive>")
		}
		status, err := models.ParseStatus(rest[0])
		if err != nil {
			return err
		}
		return s.list("", status)
	case "get":
		return s.withCustomer(cmd, rest, func(c models.Customer) {
			b, _ := json.MarshalIndent(c, "", "  ")
			s.printf("%s\n", b)
		})
	case "advice":
		return s.withCustomer(cmd, rest, func(c models.Customer) {
			s.printf("%s\n", generator.Advice(c))
		})
	case "add":
		return s.add(ctx)
	case "edit":
		return s.edit(ctx, rest)
	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: delete <id>")
		}
		return s.ws.DeleteCustomer(ctx, rest[0])
	case "log":
		return s.logActivity(ctx, rest)
	case "top":
		return s.top(rest)
	case "churn":
		customers, err := s.ws.Customers()
		if err != nil {
			return err
		}
		s.table(customers.ChurnRisk(s.now()))
		return nil
	case "dashboard":
		return s.dashboard()
	case "report":
		return s.showReport()
	case "generate":
		s.printf("Generating report...\n")
		text, err := s.ws.GenerateReport(ctx)
		if err == nil {
			s.printf("%s\n", text)
		}
		return err
	case "refine":
		if len(rest) == 0 {
			return errors.New("usage: refine <instruction>")
		}
		text, err := s.ws.RefineReport(ctx, strings.Join(rest, " "))
		if err == nil {
			s.printf("%s\n", text)
		}
		return err
	case "setreport":
		text := s.prompt.ReadBlock("Enter the report text, finish with a line holding a single '.':")
		return s.ws.SetReportText(ctx, text)
	case "export":
		return s.export(rest)
	case "theme":
		if len(rest) == 0 {
			s.printf("Theme: %s\n", s.ws.Theme(ctx))
			return nil
		}
		return s.ws.SetTheme(ctx, rest[0])
	}
	return fmt.Errorf("unknown command %q, type 'help' for a list of commands", cmd)
}

func (s *Shell) register(ctx context.Context) error {
	name, _ := s.prompt.Ask("Name: ")
	email, _ := s.prompt.Ask("Email: ")
	password, _ := s.prompt.Ask("Password: ")
	remember := s.prompt.Confirm("Remember me")
	if _, err := s.ws.Register(ctx, name, email, password, remember); err != nil {
		return err
	}
	return s.onboard(ctx)
}

func (s *Shell) login(ctx context.Context, args []string) error {
	var email string
	remember := false
	for _, a := range args {
		switch a {
		case "-r", "--remember":
			remember = true
		default:
			email = a
		}
	}
	if email == "" {
		return errors.New("usage: login <email> [--remember]")
	}
	password, _ := s.prompt.Ask("Password: ")
	if _, err := s.ws.Login(ctx, email, password, remember); err != nil {
		return err
	}
	return s.onboard(ctx)
}

// onboard shows the welcome tour once per tenant.
func (s *Shell) onboard(ctx context.Context) error {
	needed, err := s.ws.NeedsOnboarding()
	if err != nil || !needed {
		return err
	}
	s.printf("Getting started: 'list' shows your customers, 'add' creates one, " +
		"'dashboard' sums up the portfolio and 'generate' writes a strategic report.\n")
	return s.ws.CompleteOnboarding(ctx)
}

func (s *Shell) whoami() error {
	session, ok := s.ws.Session()
	if !ok {
		return service.ErrNoSession
	}
	durability := "until restart"
	if session.Remember {
		durability = "remembered"
	}
	s.printf("%s <%s> (%s, since %s)\n", session.Identity.Name, session.Identity.Email,
		durability, session.StartedAt.Local().Format(time.DateTime))
	return nil
}

func (s *Shell) list(q string, status models.Status) error {
	customers, err := s.ws.Customers()
	if err != nil {
		return err
	}
	s.table(customers.Query(q, status))
	return nil
}

func (s *Shell) withCustomer(cmd string, args []string, fn func(models.Customer)) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <id>", cmd)
	}
	customers, err := s.ws.Customers()
	if err != nil {
		return err
	}
	c, ok := customers.Get(args[0])
	if !ok {
		return service.ErrNotFound
	}
	fn(c)
	return nil
}

func (s *Shell) add(ctx context.Context) error {
	if _, err := s.ws.Customers(); err != nil {
		return err
	}
	c, err := s.prompt.PromptForCustomer()
	if err != nil {
		return err
	}
	added, err := s.ws.AddCustomer(ctx, c)
	if err == nil {
		s.printf("Customer %s created\n", added.ID)
	}
	return err
}

func (s *Shell) edit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: edit <id>")
	}
	customers, err := s.ws.Customers()
	if err != nil {
		return err
	}
	current, ok := customers.Get(args[0])
	if !ok {
		return service.ErrNotFound
	}
	c, err := s.prompt.PromptEditCustomer(current)
	if err != nil {
		return err
	}
	_, err = s.ws.UpdateCustomer(ctx, c)
	return err
}

func (s *Shell) logActivity(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: log <id> <note|call|email> <text>")
	}
	kind, err := models.ParseActivityKind(args[1])
	if err != nil {
		return err
	}
	_, err = s.ws.LogActivity(ctx, args[0], kind, strings.Join(args[2:], " "))
	return err
}

func (s *Shell) top(args []string) error {
	n := 5
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		n = v
	}
	customers, err := s.ws.Customers()
	if err != nil {
		return err
	}
	s.table(customers.TopAccounts(n))
	return nil
}

func (s *Shell) dashboard() error {
	stats, err := s.ws.Dashboard(3)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Customers\t%d\n", stats.TotalCustomers)
	fmt.Fprintf(w, "Active\t%d\n", stats.Active)
	fmt.Fprintf(w, "Leads\t%d\n", stats.Leads)
	fmt.Fprintf(w, "Inactive\t%d\n", stats.Inactive)
	fmt.Fprintf(w, "Portfolio value\t%.2f\n", stats.PortfolioValue)
	fmt.Fprintf(w, "Average value\t%.2f\n", stats.AverageValue)
	fmt.Fprintf(w, "Churn risk\t%d\n", stats.ChurnRisk)
	_ = w.Flush()
	if len(stats.TopAccounts) > 0 {
		s.printf("Top accounts:\n")
		s.table(stats.TopAccounts)
	}
	return nil
}

func (s *Shell) showReport() error {
	reports, err := s.ws.Reports()
	if err != nil {
		return err
	}
	text, ok := reports.Text()
	if !ok {
		s.printf("No report yet. Run 'generate' to create one.\n")
		return nil
	}
	s.printf("%s\n", text)
	return nil
}

func (s *Shell) export(args []string) error {
	format, dir := "md", "."
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		dir = args[1]
	}
	name, text, err := s.ws.ExportReport(format)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		s.log.Error("failed to write report", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.printf("Saved %s\n", path)
	return nil
}

func (s *Shell) table(customers []models.Customer) {
	if len(customers) == 0 {
		s.printf("No customers.\n")
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tSTATUS\tPRIORITY\tVALUE\tLAST CONTACT")
	for _, c := range customers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			c.ID, c.Name, c.Company, c.Status, c.Priority, c.Value, c.LastContact)
	}
	_ = w.Flush()
}

// flushToasts prints and dismisses the visible notifications.
func (s *Shell) flushToasts() {
	for _, t := range s.ws.Toasts() {
		s.printf("[%s] %s\n", t.Kind, t.Message)
		s.ws.DismissToast(t.ID)
	}
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
