package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/metrics"
	"github.com/atinyakov/crmkeeper/internal/models"
)

// Generator is the external text service that writes and rewrites reports.
type Generator interface {
	// Generate writes a report from customer summaries.
	Generate(ctx context.Context, customers []models.CustomerSummary) (string, error)
	// Refine rewrites text following instruction.
	Refine(ctx context.Context, text, instruction string) (string, error)
}

// ReportStore defines the persistence operation the report cache needs.
type ReportStore interface {
	SaveReport(ctx context.Context, tenant, text string) error
}

// ReportState is the position of a Reports cache in its state machine.
type ReportState int

const (
	ReportEmpty ReportState = iota
	ReportGenerating
	ReportReady
	ReportRefining
)

func (s ReportState) String() string {
	switch s {
	case ReportEmpty:
		return "empty"
	case ReportGenerating:
		return "generating"
	case ReportReady:
		return "ready"
	case ReportRefining:
		return "refining"
	}
	return fmt.Sprintf("ReportState(%d)", int(s))
}

func (s ReportState) busy() bool {
	return s == ReportGenerating || s == ReportRefining
}

// Reports caches the single current report of one tenant.
//
// Empty -> Generating -> Ready and Ready -> Refining -> Ready. While a
// generation or refinement runs, further Generate and Refine calls return
// ErrBusy without reaching the generator. A failed run settles on Empty when
// no text is held and on Ready otherwise.
type Reports struct {
	tenant string
	gen    Generator
	store  ReportStore
	log    *zap.Logger

	mu       sync.Mutex
	state    ReportState
	text     string
	detached bool
}

// NewReports creates the cache of tenant, starting from the persisted text.
func NewReports(tenant, text string, gen Generator, store ReportStore, log *zap.Logger) *Reports {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reports{tenant: tenant, gen: gen, store: store, log: log.With(zap.String("tenant", tenant)), text: text}
	if text != "" {
		r.state = ReportReady
	}
	return r
}

// Text returns the current report. ok is false when there is none.
func (r *Reports) Text() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text, r.text != ""
}

// State returns the current state.
func (r *Reports) State() ReportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Generate asks the generator for a new report over the summaries of
// customers. On failure the previous report is kept and ErrGenerationFailed
// is returned.
func (r *Reports) Generate(ctx context.Context, customers []models.Customer) (string, error) {
	if err := r.begin(ReportGenerating); err != nil {
		return "", err
	}

	summaries := make([]models.CustomerSummary, len(customers))
	for i, c := range customers {
		summaries[i] = c.Summary()
	}
	text, genErr := r.gen.Generate(ctx, summaries)
	if genErr == nil && strings.TrimSpace(text) == "" {
		genErr = fmt.Errorf("empty response")
	}
	metrics.ReportRuns.WithLabelValues("generate", metrics.Outcome(genErr)).Inc()
	if genErr != nil {
		r.log.Error("report generation failed", zap.Error(genErr))
		r.finish()
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
	}
	return text, r.commit(ctx, text)
}

// Refine rewrites the current report following instruction. On failure, or
// when the generator answers with nothing, the current text is returned
// unchanged together with the error.
func (r *Reports) Refine(ctx context.Context, instruction string) (string, error) {
	r.mu.Lock()
	if r.state.busy() {
		r.mu.Unlock()
		return "", ErrBusy
	}
	current := r.text
	if current == "" {
		r.mu.Unlock()
		return "", ErrNoReport
	}
	r.state = ReportRefining
	r.mu.Unlock()

	refined, genErr := r.gen.Refine(ctx, current, instruction)
	metrics.ReportRuns.WithLabelValues("refine", metrics.Outcome(genErr)).Inc()
	if genErr != nil {
		r.log.Error("report refinement failed", zap.Error(genErr))
		r.finish()
		return current, fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
	}
	if strings.TrimSpace(refined) == "" {
		r.finish()
		return current, nil
	}
	return refined, r.commit(ctx, refined)
}

// SetManualText overwrites the report with user-edited text and persists it.
// An empty text clears the report.
func (r *Reports) SetManualText(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	if !r.state.busy() {
		r.state = r.settled()
	}
	return r.persist(ctx)
}

// Detach cuts the cache off from storage. A request still in flight finishes
// without persisting its result. Called on logout.
func (r *Reports) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
}

// Export renders the report as a downloadable document. format is "md" or
// "txt"; the file name carries the date of now.
func (r *Reports) Export(format string, now time.Time) (string, string, error) {
	text, ok := r.Text()
	if !ok {
		return "", "", ErrNoReport
	}
	switch format {
	case "", "md":
		format = "md"
	case "txt":
	default:
		return "", "", &ValidationError{Errors: map[string]string{"format": "must be one of: md txt"}}
	}
	return fmt.Sprintf("crm_report_%s.%s", now.UTC().Format(models.DateLayout), format), text, nil
}

func (r *Reports) begin(next ReportState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.busy() {
		return ErrBusy
	}
	r.state = next
	return nil
}

// finish ends a failed or empty run. The text may have been replaced by
// SetManualText while the run was busy.
func (r *Reports) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = r.settled()
}

// settled must be called with mu held.
func (r *Reports) settled() ReportState {
	if r.text == "" {
		return ReportEmpty
	}
	return ReportReady
}

func (r *Reports) commit(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	r.state = ReportReady
	return r.persist(ctx)
}

// persist must be called with mu held.
func (r *Reports) persist(ctx context.Context) error {
	if r.detached {
		r.log.Debug("report result discarded after logout")
		return nil
	}
	if err := r.store.SaveReport(ctx, r.tenant, r.text); err != nil {
		r.log.Error("failed to persist report", zap.Error(err))
		return fmt.Errorf("persist report: %w", err)
	}
	return nil
}
