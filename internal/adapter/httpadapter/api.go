package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/pipeline"
	"github.com/couchcryptid/volcano-risk-service/internal/scheduler"
	"github.com/go-playground/validator/v10"
)

// API is the read service behind the HTTP routes.
type API interface {
	ListLocations(ctx context.Context, page, limit int) (pipeline.LocationPage, error)
	SearchLocations(ctx context.Context, term string) ([]domain.Location, error)
	Status(ctx context.Context, vnum string) (pipeline.StatusReport, error)
	Earthquakes(ctx context.Context, vnum string, q domain.WindowQuery) (pipeline.EarthquakeReport, error)
	Indicators(ctx context.Context, vnum string, q domain.WindowQuery) (pipeline.IndicatorReport, error)
	NTVC(ctx context.Context, vnum string, radiusKm, minMagnitude float64) (pipeline.NTVCReport, error)
	RiskMap(ctx context.Context, req pipeline.RiskMapRequest) (pipeline.RiskMap, error)
}

// Syncer runs one full registry risk sync on demand.
type Syncer interface {
	RunOnce(ctx context.Context) (int, error)
}

// Defaults fill in query parameters the caller left out.
type Defaults struct {
	RadiusKm     float64
	MinMagnitude float64
}

type rangeParams struct {
	Start        string  `validate:"required,datetime=2006-01-02"`
	End          string  `validate:"required,datetime=2006-01-02"`
	RadiusKm     float64 `validate:"gte=1,lte=500"`
	MinMagnitude float64 `validate:"gte=-1,lte=10"`
}

type riskMapParams struct {
	Days         int     `validate:"gte=1,lte=365"`
	RadiusKm     float64 `validate:"gte=1,lte=500"`
	MinMagnitude float64 `validate:"gte=-1,lte=10"`
	Limit        int     `validate:"gte=10,lte=1000"`
	Page         int     `validate:"gte=1"`
	Concurrency  int     `validate:"gte=1,lte=20"`
}

var validate = validator.New()

type handlers struct {
	api      API
	defaults Defaults
	logger   *slog.Logger
}

func (h *handlers) listVolcanoes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err1 := intParam(q, "page", 1)
	limit, err2 := intParam(q, "limit", pipeline.DefaultPageLimit)
	if err := errors.Join(err1, err2); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.api.ListLocations(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) searchVolcanoes(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		h.writeError(w, r, fmt.Errorf("%w: missing query parameter q", domain.ErrInvalidQuery))
		return
	}
	locs, err := h.api.SearchLocations(r.Context(), term)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if locs == nil {
		locs = []domain.Location{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"query":   term,
		"count":   len(locs),
		"results": locs,
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	res, err := h.api.Status(r.Context(), r.PathValue("vnum"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) earthquakes(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRange(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.api.Earthquakes(r.Context(), r.PathValue("vnum"), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) indicators(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRange(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.api.Indicators(r.Context(), r.PathValue("vnum"), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) ntvc(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	radius, err1 := floatParam(q, "radius_km", h.defaults.RadiusKm)
	minmag, err2 := floatParam(q, "minmag", h.defaults.MinMagnitude)
	if err := errors.Join(err1, err2); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.api.NTVC(r.Context(), r.PathValue("vnum"), radius, minmag)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) riskMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var p riskMapParams
	var errs []error
	var err error
	p.Days, err = intParam(q, "days", 30)
	errs = append(errs, err)
	p.RadiusKm, err = floatParam(q, "radius_km", h.defaults.RadiusKm)
	errs = append(errs, err)
	p.MinMagnitude, err = floatParam(q, "minmag", h.defaults.MinMagnitude)
	errs = append(errs, err)
	p.Limit, err = intParam(q, "limit", 300)
	errs = append(errs, err)
	p.Page, err = intParam(q, "page", 1)
	errs = append(errs, err)
	p.Concurrency, err = intParam(q, "concurrency", pipeline.DefaultConcurrency)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(p); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err))
		return
	}

	res, err := h.api.RiskMap(r.Context(), pipeline.RiskMapRequest{
		Days:         p.Days,
		RadiusKm:     p.RadiusKm,
		MinMagnitude: p.MinMagnitude,
		Page:         p.Page,
		Limit:        p.Limit,
		Concurrency:  p.Concurrency,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) parseRange(q url.Values) (domain.WindowQuery, error) {
	p := rangeParams{Start: q.Get("start"), End: q.Get("end")}
	var err1, err2 error
	p.RadiusKm, err1 = floatParam(q, "radius_km", h.defaults.RadiusKm)
	p.MinMagnitude, err2 = floatParam(q, "minmag", h.defaults.MinMagnitude)
	if err := errors.Join(err1, err2); err != nil {
		return domain.WindowQuery{}, err
	}
	if err := validate.Struct(p); err != nil {
		return domain.WindowQuery{}, fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err)
	}
	return domain.NewWindowQuery(p.Start, p.End, p.RadiusKm, p.MinMagnitude)
}

// writeError maps input errors to 400 and unknown volcanoes to 404. Anything
// else is logged and answered with a generic 500.
type syncHandler struct {
	syncer Syncer
	logger *slog.Logger
}

func (h *syncHandler) sync(w http.ResponseWriter, r *http.Request) {
	n, err := h.syncer.RunOnce(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrSyncInProgress):
		sharedobs.WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Error("manual risk sync failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	default:
		sharedobs.WriteJSON(w, http.StatusOK, map[string]int{"assessed": n})
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrLocationNotFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown volcano vnum"})
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	}
}

func intParam(q url.Values, key string, def int) (int, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidQuery, key, s)
	}
	return n, nil
}

func floatParam(q url.Values, key string, def float64) (float64, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", domain.ErrInvalidQuery, key, s)
	}
	return f, nil
}
