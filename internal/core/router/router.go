// Package router maps HTTP requests onto service operations: it checks and
// validates parameters, maps errors to status codes and records metrics and
// usage events.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/geojsonagg"
	"github.com/mohammed-shakir/city-indicators-api/internal/aggregate/pivot"
	"github.com/mohammed-shakir/city-indicators-api/internal/composer"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
	mylog "github.com/mohammed-shakir/city-indicators-api/internal/logger"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore/formula"
	"github.com/mohammed-shakir/city-indicators-api/internal/service"
	"github.com/mohammed-shakir/city-indicators-api/internal/usage"
)

// Service is the set of operations served over HTTP.
type Service interface {
	ListCities(ctx context.Context, appID model.ApplicationID, projects []string, iso3 string) ([]service.City, error)
	GetCity(ctx context.Context, appID model.ApplicationID, cityID string) (service.City, error)
	CityIndicators(ctx context.Context, q model.GeoQuery) (pivot.Result, error)
	CityGeometry(ctx context.Context, cityID, adminLevel string) (geojsonagg.FeatureCollection, error)
	CityIndicatorsGeoJSON(ctx context.Context, q model.GeoQuery) (geojsonagg.FeatureCollection, error)
	CityIndicatorsTable(ctx context.Context, q model.GeoQuery) (composer.TabularResult, error)
	CityIndicatorsStats(ctx context.Context, cityID, adminLevel string, indicatorIDs []string) (map[string]composer.MinMax, error)
	ListIndicators(ctx context.Context, appID model.ApplicationID, project string, cityIDs []string) ([]service.Indicator, error)
	ListThemes(ctx context.Context) ([]string, error)
	IndicatorMetadata(ctx context.Context, indicatorID string) (map[string]any, error)
	CitiesByIndicator(ctx context.Context, indicatorID string) ([]service.CityIndicatorValue, error)
	CityIndicator(ctx context.Context, indicatorID, cityID string) (*service.CityIndicatorValue, error)
	ListDatasets(ctx context.Context, appID model.ApplicationID, cityID string, layerIDs []string) ([]service.Dataset, error)
	ListProjects(ctx context.Context, appID model.ApplicationID) ([]service.Project, error)
	CityLayer(ctx context.Context, cityID, layerID string) (*service.CityLayer, error)
	ListInterventions(ctx context.Context, cityID string) ([]service.Intervention, error)
	Scenarios(ctx context.Context, cityID, aoiID, interventionID string) ([]service.Scenario, error)
}

type Handlers struct {
	svc      Service
	usage    usage.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

func New(svc Service, rec usage.Recorder, logger *slog.Logger) *Handlers {
	if rec == nil {
		rec = usage.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{svc: svc, usage: rec, logger: logger, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if n := f.Tag.Get("query"); n != "" {
			return n
		}
		return f.Tag.Get("path")
	})
	_ = v.RegisterValidation("formulasafe", func(fl validator.FieldLevel) bool {
		return formula.Safe(fl.Field().String())
	})
	return v
}

// InvalidParamError names the query or path parameter that was rejected.
type InvalidParamError struct {
	Param string
}

func (e *InvalidParamError) Error() string { return "Invalid query parameter: " + e.Param }

func (h *Handlers) bind(params any) error {
	err := h.validate.Struct(params)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		name := verrs[0].Field()
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		return &InvalidParamError{Param: name}
	}
	return err
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type endpoint struct {
	route string
	// params lists the accepted query parameters.
	params []string
	// notFound is the detail of a 404.
	notFound string
	// action names the operation in the detail of a 500.
	action string
	// track publishes a usage event per request.
	track bool
	serve func(w http.ResponseWriter, r *http.Request) error
}

func (h *Handlers) handle(e endpoint) http.HandlerFunc {
	allowed := make(map[string]struct{}, len(e.params))
	for _, p := range e.params {
		allowed[p] = struct{}{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		ctx := mylog.WithRoute(r.Context(), e.route)
		if cityID := chi.URLParam(r, "city_id"); cityID != "" {
			ctx = mylog.WithCityID(ctx, cityID)
		}
		r = r.WithContext(ctx)

		var err error
		for k := range r.URL.Query() {
			if _, ok := allowed[k]; !ok {
				err = &InvalidParamError{Param: k}
				break
			}
		}
		if err == nil {
			err = e.serve(sw, r)
		}
		if err != nil {
			h.writeError(sw, r, e, err)
		}

		observability.ObserveHTTP(r.Method, e.route, sw.code, time.Since(start).Seconds())
		if e.track {
			q := r.URL.Query()
			h.usage.Publish(usage.Event{
				Route:       e.route,
				CityID:      chi.URLParam(r, "city_id"),
				AdminLevel:  q.Get("admin_level"),
				IndicatorID: q.Get("indicator_id"),
				Format:      q.Get("format"),
				Status:      sw.code,
			})
		}
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, e endpoint, err error) {
	var ipe *InvalidParamError
	switch {
	case errors.As(err, &ipe):
		composer.WriteError(w, http.StatusBadRequest, ipe.Error())
	case errors.Is(err, model.ErrNoGeometry):
		composer.WriteError(w, http.StatusNotFound, "No geometry found.")
	case errors.Is(err, model.ErrNoData):
		composer.WriteError(w, http.StatusNotFound, "No data found.")
	case errors.Is(err, model.ErrBadReference):
		composer.WriteError(w, http.StatusNotFound, "No indicator found.")
	case errors.Is(err, model.ErrNotFound):
		composer.WriteError(w, http.StatusNotFound, e.notFound)
	case errors.Is(err, context.Canceled):
		h.logger.InfoContext(r.Context(), "request canceled", "route", e.route)
		w.WriteHeader(499)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "route", e.route, "err", err)
		composer.WriteError(w, http.StatusInternalServerError, "An error occurred: "+e.action+" failed.")
	}
}

// Mount registers every route on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/cities", h.listCities())
	r.Get("/cities/{city_id}", h.getCity())
	r.Get("/cities/{city_id}/geojson", h.cityGeometry("/cities/{city_id}/geojson"))
	r.Get("/cities/{city_id}/indicators", h.cityIndicators("/cities/{city_id}/indicators"))
	r.Get("/cities/{city_id}/indicators/geojson", h.cityIndicatorsGeoJSON("/cities/{city_id}/indicators/geojson"))
	r.Get("/cities/{city_id}/indicators/csv", h.cityIndicatorsTable())
	r.Get("/cities/{city_id}/indicators/stats", h.cityIndicatorsStats())
	r.Get("/cities/{city_id}/{admin_level}", h.cityIndicators("/cities/{city_id}/{admin_level}"))
	r.Get("/cities/{city_id}/{admin_level}/geojson", h.cityGeometry("/cities/{city_id}/{admin_level}/geojson"))
	r.Get("/cities/{city_id}/{admin_level}/geojson/indicators", h.cityIndicatorsGeoJSON("/cities/{city_id}/{admin_level}/geojson/indicators"))

	r.Get("/indicators", h.listIndicators())
	r.Get("/indicators/themes", h.listThemes())
	r.Get("/indicators/metadata/{indicator_id}", h.indicatorMetadata())
	r.Get("/indicators/{indicator_id}", h.citiesByIndicator("/indicators/{indicator_id}"))
	r.Get("/indicators/{indicator_id}/cities", h.citiesByIndicator("/indicators/{indicator_id}/cities"))
	r.Get("/indicators/{indicator_id}/cities/{city_id}", h.cityIndicator("/indicators/{indicator_id}/cities/{city_id}"))
	r.Get("/indicators/{indicator_id}/{city_id}", h.cityIndicator("/indicators/{indicator_id}/{city_id}"))

	r.Get("/datasets", h.listDatasets())
	r.Get("/projects", h.listProjects())
	r.Get("/layers/{layer_id}/{city_id}", h.cityLayer())

	r.Get("/interventions", h.listInterventions("/interventions"))
	r.Get("/interventions/{city_id}", h.listInterventions("/interventions/{city_id}"))
	r.Get("/scenarios/{city_id}/{aoi_id}/{intervention_id}", h.scenarios())
}
