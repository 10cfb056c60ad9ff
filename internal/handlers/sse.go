package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/observability"
	"ecommerce-dashboard/internal/services"
	"ecommerce-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// reportSignals are the selector values bound on the page.
type reportSignals struct {
	Year    string `json:"year"`
	Country string `json:"country"`
}

// selection turns the signals into a filter, falling back to All for a value
// that no longer parses.
func (s reportSignals) selection() models.FilterState {
	fs, err := models.ParseFilterState(s.Year, s.Country)
	if err != nil {
		fs, _ = models.ParseFilterState("", s.Country)
	}
	return fs
}

func selectorValue(fs models.FilterState) reportSignals {
	sig := reportSignals{Year: models.AllOption, Country: models.AllOption}
	if fs.HasYear() {
		sig.Year = strconv.Itoa(fs.Year)
	}
	if fs.HasCountry() {
		sig.Country = fs.Country
	}
	return sig
}

func renderFragment(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// HandleReport recomputes the report for the page's current selection and
// patches the signals and every fragment in one stream.
func (h *SSEHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)

	var signals reportSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		logger.Warn("invalid datastar signals", "error", err)
	}
	fs := signals.selection()

	sse := datastar.NewSSE(w, r)

	// A country that does not occur in the chosen year is reset to All, the
	// way a select box drops a value that left its options.
	opts, err := h.analytics.Options(ctx, models.FilterState{Year: fs.Year})
	if err != nil {
		h.patchAlert(ctx, sse, logger, err)
		return
	}
	if fs.HasCountry() && !slices.Contains(opts.Countries, fs.Country) {
		logger.Debug("country not available for year, resetting", "country", fs.Country, "year", fs.Year)
		fs.Country = ""
	}

	bundle, err := h.analytics.Report(ctx, fs)
	if err != nil {
		h.patchAlert(ctx, sse, logger, err)
		return
	}

	sel := selectorValue(bundle.Filter)
	jsonData, err := json.Marshal(map[string]any{
		"year":         sel.Year,
		"country":      sel.Country,
		"options":      bundle.Options,
		"kpis":         bundle.KPIs,
		"monthlyData":  bundle.MonthlyTrend,
		"productsData": bundle.TopProducts,
		"geoData":      bundle.Geo,
	})
	if err != nil {
		logger.Error("marshal report signals", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	for _, c := range []templ.Component{
		templates.Alert(""),
		templates.Report(bundle),
	} {
		html, err := renderFragment(ctx, c)
		if err != nil {
			logger.Error("render report fragment", "error", err)
			return
		}
		sse.PatchElements(html)
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) patchAlert(ctx context.Context, sse *datastar.ServerSentEventGenerator, logger *slog.Logger, err error) {
	appErr := toAppError(err)
	logger.Error("report stream failed", "error_code", appErr.Code, "error", err)

	html, renderErr := renderFragment(ctx, templates.Alert(appErr.Message))
	if renderErr != nil {
		logger.Error("render alert", "error", renderErr)
		return
	}
	sse.PatchElements(html)
}
