package http

import (
	"context"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/service"
)

// ReportService defines the report operations required by the ReportHandler.
type ReportService interface {
	Reports() (*service.Reports, error)
	GenerateReport(ctx context.Context) (string, error)
	RefineReport(ctx context.Context, instruction string) (string, error)
	SetReportText(ctx context.Context, text string) error
	ExportReport(format string) (string, string, error)
}

// ReportHandler handles the report endpoints.
type ReportHandler struct {
	ReportService ReportService
	Log           *zap.Logger
}

type reportResponse struct {
	Text  string `json:"text"`
	State string `json:"state"`
}

// Get handles GET /api/report.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	reports, err := h.ReportService.Reports()
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	text, _ := reports.Text()
	writeJSON(w, http.StatusOK, reportResponse{Text: text, State: reports.State().String()})
}

// Generate handles POST /api/report/generate.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	text, err := h.ReportService.GenerateReport(r.Context())
	h.respond(w, r, text, err)
}

// Refine handles POST /api/report/refine.
func (h *ReportHandler) Refine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instruction string `json:"instruction"`
	}
	if !decode(w, r, &req) {
		return
	}
	text, err := h.ReportService.RefineReport(r.Context(), req.Instruction)
	h.respond(w, r, text, err)
}

// Put handles PUT /api/report with a manually edited text.
func (h *ReportHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	err := h.ReportService.SetReportText(r.Context(), req.Text)
	h.respond(w, r, req.Text, err)
}

// Export handles GET /api/report/export?format=md|txt as a file download.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	name, text, err := h.ReportService.ExportReport(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	_, _ = w.Write([]byte(text))
}

func (h *ReportHandler) respond(w http.ResponseWriter, r *http.Request, text string, err error) {
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	state := service.ReportEmpty
	if reports, rerr := h.ReportService.Reports(); rerr == nil {
		state = reports.State()
	}
	writeJSON(w, http.StatusOK, reportResponse{Text: text, State: state.String()})
}
