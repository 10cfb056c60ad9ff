package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/dataset"
	"ecommerce-dashboard/internal/errors"
	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/observability"
	"ecommerce-dashboard/internal/services"
)

const (
	cacheMaxAge      = "public, max-age=300"
	sampleFilePrefix = "ecommerce_sample_"
)

type APIHandlers struct {
	analytics *services.Analytics
	data      config.DataConfig
	logger    *slog.Logger
	now       func() time.Time
	newRand   func() *rand.Rand
}

func NewAPIHandlers(analytics *services.Analytics, data config.DataConfig, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		data:      data,
		logger:    logger,
		now:       time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
}

func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	fs, err := filterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	bundle, err := h.analytics.Report(r.Context(), fs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, bundle, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

// HandleOptions lists the selectable years and the countries present in the
// requested year.
func (h *APIHandlers) HandleOptions(w http.ResponseWriter, r *http.Request) {
	fs, err := filterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	opts, err := h.analytics.Options(r.Context(), fs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, opts, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

func (h *APIHandlers) HandleTable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	fs, err := filterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	bundle, err := h.analytics.Report(r.Context(), fs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	table, ok := bundle.Table(name)
	if !ok {
		h.writeError(w, r, errors.NotFound(fmt.Sprintf("Unknown table %q", name)))
		return
	}

	errors.WriteSuccessWithHeaders(w, table, map[string]string{
		"Cache-Control": cacheMaxAge,
	})
}

// HandleSample streams a random sample of the filtered records as CSV.
func (h *APIHandlers) HandleSample(w http.ResponseWriter, r *http.Request) {
	fs, err := filterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rows, err := h.sampleRows(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sample, err := h.analytics.Sample(r.Context(), fs, rows, h.newRand())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filename := sampleFilePrefix + h.now().Format(time.DateOnly) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if err := dataset.WriteCSV(w, sample.Records, sample.Columns); err != nil {
		observability.FromContext(r.Context(), h.logger).Error("failed to write sample",
			"rows", sample.Len(),
			"error", err,
		)
	}
}

func (h *APIHandlers) sampleRows(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("rows")
	if raw == "" {
		return h.data.SampleDefault, nil
	}

	rows, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationWrap(err, fmt.Sprintf("rows must be a number, got %q", raw))
	}
	if rows < h.data.SampleMin || rows > h.data.SampleMax {
		return 0, errors.Validation(fmt.Sprintf("rows must be between %d and %d", h.data.SampleMin, h.data.SampleMax))
	}
	return rows, nil
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.Stats())
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, r, h.logger, toAppError(err))
}

func filterFromQuery(r *http.Request) (models.FilterState, error) {
	q := r.URL.Query()
	fs, err := models.ParseFilterState(q.Get("year"), q.Get("country"))
	if err != nil {
		return models.FilterState{}, errors.ValidationWrap(err, "Invalid filter")
	}
	return fs, nil
}

// toAppError maps pipeline failures onto the HTTP error envelope.
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, dataset.ErrDataSource):
		return errors.DataSource(err)
	case stderrors.Is(err, services.ErrNoSource):
		return errors.ServiceUnavailable("No data source is configured")
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout(err)
	default:
		return errors.InternalWrap(err, "Failed to build report")
	}
}
