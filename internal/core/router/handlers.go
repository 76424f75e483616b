package router

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/city-indicators-api/internal/composer"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/model"
	"github.com/mohammed-shakir/city-indicators-api/internal/service"
)

const (
	pApplicationID = "application_id"
	pProjects      = "projects"
	pProject       = "project"
	pCountry       = "country_code_iso3"
	pCityID        = "city_id"
	pLayerID       = "layer_id"
	pAdminLevel    = "admin_level"
	pIndicatorID   = "indicator_id"
	pFormat        = "format"
	pAoiID         = "aoi_id"
	pIntervention  = "intervention_id"
)

type cityListParams struct {
	ApplicationID string   `query:"application_id" validate:"omitempty,oneof=all ccl cid"`
	Projects      []string `query:"projects" validate:"dive,required,formulasafe"`
	Country       string   `query:"country_code_iso3" validate:"omitempty,alpha,len=3"`
}

type cityParams struct {
	ApplicationID string `query:"application_id" validate:"omitempty,oneof=all ccl cid"`
	CityID        string `path:"city_id" validate:"required,formulasafe"`
}

type geoParams struct {
	CityID      string `path:"city_id" validate:"required,formulasafe"`
	AdminLevel  string `query:"admin_level" validate:"omitempty,formulasafe"`
	IndicatorID string `query:"indicator_id" validate:"omitempty,formulasafe"`
	Format      string `query:"format" validate:"omitempty,oneof=csv xlsx excel"`
}

type statsParams struct {
	CityID       string   `path:"city_id" validate:"required,formulasafe"`
	AdminLevel   string   `query:"admin_level" validate:"omitempty,formulasafe"`
	IndicatorIDs []string `query:"indicator_id" validate:"dive,required,formulasafe"`
}

type indicatorListParams struct {
	ApplicationID string   `query:"application_id" validate:"omitempty,oneof=all ccl cid"`
	Project       string   `query:"project" validate:"omitempty,formulasafe"`
	CityIDs       []string `query:"city_id" validate:"dive,required,formulasafe"`
}

type indicatorParams struct {
	IndicatorID string `path:"indicator_id" validate:"required,formulasafe"`
	CityID      string `path:"city_id" validate:"omitempty,formulasafe"`
}

type datasetListParams struct {
	ApplicationID string   `query:"application_id" validate:"omitempty,oneof=all ccl cid"`
	CityID        string   `query:"city_id" validate:"omitempty,formulasafe"`
	LayerIDs      []string `query:"layer_id" validate:"dive,required,formulasafe"`
}

type layerParams struct {
	LayerID string `path:"layer_id" validate:"required,formulasafe"`
	CityID  string `path:"city_id" validate:"required,formulasafe"`
}

type interventionParams struct {
	CityID string `path:"city_id" validate:"omitempty,formulasafe"`
}

type scenarioParams struct {
	CityID         string `path:"city_id" validate:"required,formulasafe"`
	AoiID          string `path:"aoi_id" validate:"required,formulasafe"`
	InterventionID string `path:"intervention_id" validate:"required,formulasafe"`
}

// geo reads the geography selection. The legacy routes carry the admin
// level in the path.
func geo(r *http.Request) geoParams {
	q := r.URL.Query()
	p := geoParams{
		CityID:      chi.URLParam(r, pCityID),
		AdminLevel:  q.Get(pAdminLevel),
		IndicatorID: q.Get(pIndicatorID),
		Format:      q.Get(pFormat),
	}
	if lvl := chi.URLParam(r, pAdminLevel); lvl != "" {
		p.AdminLevel = lvl
	}
	return p
}

func (p geoParams) query() model.GeoQuery {
	return model.GeoQuery{CityID: p.CityID, AdminLevel: p.AdminLevel, IndicatorID: p.IndicatorID}
}

func (h *Handlers) listCities() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/cities",
		params:   []string{pApplicationID, pProjects, pCountry},
		notFound: "No cities found",
		action:   "Retrieving cities",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			q := r.URL.Query()
			p := cityListParams{ApplicationID: q.Get(pApplicationID), Projects: q[pProjects], Country: q.Get(pCountry)}
			if err := h.bind(p); err != nil {
				return err
			}
			cities, err := h.svc.ListCities(r.Context(), model.ApplicationID(p.ApplicationID), p.Projects, p.Country)
			if err != nil {
				return err
			}
			if len(cities) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"cities": cities})
		},
	})
}

func (h *Handlers) getCity() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/cities/{city_id}",
		params:   []string{pApplicationID},
		notFound: "No city found",
		action:   "Retrieving city by city_id",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := cityParams{ApplicationID: r.URL.Query().Get(pApplicationID), CityID: chi.URLParam(r, pCityID)}
			if err := h.bind(p); err != nil {
				return err
			}
			city, err := h.svc.GetCity(r.Context(), model.ApplicationID(p.ApplicationID), p.CityID)
			if err != nil {
				return err
			}
			if len(city) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, city)
		},
	})
}

func (h *Handlers) cityIndicators(route string) http.HandlerFunc {
	return h.handle(endpoint{
		route:    route,
		params:   []string{pAdminLevel, pIndicatorID},
		notFound: "No data found.",
		action:   "Retrieving city indicators",
		track:    true,
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := geo(r)
			if err := h.bind(p); err != nil {
				return err
			}
			res, err := h.svc.CityIndicators(r.Context(), p.query())
			if err != nil {
				return err
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"city_indicators": res.Records})
		},
	})
}

func (h *Handlers) cityGeometry(route string) http.HandlerFunc {
	return h.handle(endpoint{
		route:    route,
		params:   []string{pAdminLevel},
		notFound: "No geometry found.",
		action:   "Retrieving city geometry",
		track:    true,
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := geo(r)
			if err := h.bind(p); err != nil {
				return err
			}
			fc, err := h.svc.CityGeometry(r.Context(), p.CityID, p.AdminLevel)
			if err != nil {
				return err
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeGeoJSON, fc)
		},
	})
}

func (h *Handlers) cityIndicatorsGeoJSON(route string) http.HandlerFunc {
	return h.handle(endpoint{
		route:    route,
		params:   []string{pAdminLevel, pIndicatorID},
		notFound: "No data found.",
		action:   "Retrieving city indicators geojson",
		track:    true,
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := geo(r)
			if err := h.bind(p); err != nil {
				return err
			}
			fc, err := h.svc.CityIndicatorsGeoJSON(r.Context(), p.query())
			if err != nil {
				return err
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeGeoJSON, fc)
		},
	})
}

func (h *Handlers) cityIndicatorsTable() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/cities/{city_id}/indicators/csv",
		params:   []string{pAdminLevel, pIndicatorID, pFormat},
		notFound: "No data found.",
		action:   "Exporting city indicators",
		track:    true,
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := geo(r)
			if err := h.bind(p); err != nil {
				return err
			}
			neg := composer.NegotiateFormat(composer.NegotiationInput{
				AcceptHeader:  r.Header.Get("Accept"),
				OutputFormat:  p.Format,
				DefaultFormat: composer.FormatCSV,
			})
			if neg.Format != composer.FormatXLSX {
				neg = composer.NegotiateFormat(composer.NegotiationInput{OutputFormat: composer.FormatCSV.String()})
			}
			table, err := h.svc.CityIndicatorsTable(r.Context(), p.query())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if neg.Format == composer.FormatXLSX {
				err = composer.WriteXLSX(&buf, table)
			} else {
				err = composer.WriteCSV(&buf, table)
			}
			if err != nil {
				return fmt.Errorf("encode %s: %w", neg.Format, err)
			}
			w.Header().Set("Content-Disposition",
				fmt.Sprintf(`attachment; filename="%s_%s.%s"`, p.CityID, p.AdminLevel, neg.Format.Extension()))
			composer.WriteBody(w, r, http.StatusOK, neg.ContentType, buf.Bytes())
			return nil
		},
	})
}

func (h *Handlers) cityIndicatorsStats() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/cities/{city_id}/indicators/stats",
		params:   []string{pAdminLevel, pIndicatorID},
		notFound: "No data found.",
		action:   "Retrieving city indicator statistics",
		track:    true,
		serve: func(w http.ResponseWriter, r *http.Request) error {
			q := r.URL.Query()
			p := statsParams{CityID: chi.URLParam(r, pCityID), AdminLevel: q.Get(pAdminLevel), IndicatorIDs: q[pIndicatorID]}
			if err := h.bind(p); err != nil {
				return err
			}
			stats, err := h.svc.CityIndicatorsStats(r.Context(), p.CityID, p.AdminLevel, p.IndicatorIDs)
			if err != nil {
				return err
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"indicators": stats})
		},
	})
}

func (h *Handlers) listIndicators() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/indicators",
		params:   []string{pApplicationID, pProject, pCityID},
		notFound: "No indicators found",
		action:   "Retrieving list of indicators",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			q := r.URL.Query()
			p := indicatorListParams{ApplicationID: q.Get(pApplicationID), Project: q.Get(pProject), CityIDs: q[pCityID]}
			if err := h.bind(p); err != nil {
				return err
			}
			list, err := h.svc.ListIndicators(r.Context(), model.ApplicationID(p.ApplicationID), p.Project, p.CityIDs)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"indicators": list})
		},
	})
}

func (h *Handlers) listThemes() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/indicators/themes",
		notFound: "No themes found",
		action:   "Retrieving the list of indicator themes",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			themes, err := h.svc.ListThemes(r.Context())
			if err != nil {
				return err
			}
			if themes == nil {
				themes = []string{}
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"themes": themes})
		},
	})
}

func (h *Handlers) indicatorMetadata() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/indicators/metadata/{indicator_id}",
		notFound: "No indicators metadata found",
		action:   "Retrieving metadata for the specified indicator",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := indicatorParams{IndicatorID: chi.URLParam(r, pIndicatorID)}
			if err := h.bind(p); err != nil {
				return err
			}
			meta, err := h.svc.IndicatorMetadata(r.Context(), p.IndicatorID)
			if err != nil {
				return err
			}
			if len(meta) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, meta)
		},
	})
}

func (h *Handlers) citiesByIndicator(route string) http.HandlerFunc {
	return h.handle(endpoint{
		route:    route,
		notFound: "No indicator found",
		action:   "Retrieving indicator values",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := indicatorParams{IndicatorID: chi.URLParam(r, pIndicatorID)}
			if err := h.bind(p); err != nil {
				return err
			}
			values, err := h.svc.CitiesByIndicator(r.Context(), p.IndicatorID)
			if err != nil {
				return err
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"indicator_values": values})
		},
	})
}

func (h *Handlers) cityIndicator(route string) http.HandlerFunc {
	return h.handle(endpoint{
		route:    route,
		notFound: "No indicator found",
		action:   "Retrieving indicator value",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := indicatorParams{IndicatorID: chi.URLParam(r, pIndicatorID), CityID: chi.URLParam(r, pCityID)}
			if err := h.bind(p); err != nil {
				return err
			}
			v, err := h.svc.CityIndicator(r.Context(), p.IndicatorID, p.CityID)
			if err != nil {
				return err
			}
			if v == nil {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, v)
		},
	})
}

func (h *Handlers) listDatasets() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/datasets",
		params:   []string{pApplicationID, pCityID, pLayerID},
		notFound: "No datasets found",
		action:   "Retrieving the list of datasets",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			q := r.URL.Query()
			p := datasetListParams{ApplicationID: q.Get(pApplicationID), CityID: q.Get(pCityID), LayerIDs: q[pLayerID]}
			if err := h.bind(p); err != nil {
				return err
			}
			ds, err := h.svc.ListDatasets(r.Context(), model.ApplicationID(p.ApplicationID), p.CityID, p.LayerIDs)
			if err != nil {
				return err
			}
			if ds == nil {
				ds = []service.Dataset{}
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"datasets": ds})
		},
	})
}

func (h *Handlers) listProjects() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/projects",
		params:   []string{pApplicationID},
		notFound: "No projects found",
		action:   "Retrieving the list of projects",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := cityListParams{ApplicationID: r.URL.Query().Get(pApplicationID)}
			if err := h.bind(p); err != nil {
				return err
			}
			projects, err := h.svc.ListProjects(r.Context(), model.ApplicationID(p.ApplicationID))
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"projects": projects})
		},
	})
}

func (h *Handlers) cityLayer() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/layers/{layer_id}/{city_id}",
		notFound: "No layer found",
		action:   "Retrieving layer",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := layerParams{LayerID: chi.URLParam(r, pLayerID), CityID: chi.URLParam(r, pCityID)}
			if err := h.bind(p); err != nil {
				return err
			}
			layer, err := h.svc.CityLayer(r.Context(), p.CityID, p.LayerID)
			if err != nil {
				return err
			}
			if layer == nil {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, layer)
		},
	})
}

func (h *Handlers) listInterventions(route string) http.HandlerFunc {
	return h.handle(endpoint{
		route:    route,
		notFound: "No interventions found",
		action:   "Retrieving interventions",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := interventionParams{CityID: chi.URLParam(r, pCityID)}
			if err := h.bind(p); err != nil {
				return err
			}
			list, err := h.svc.ListInterventions(r.Context(), p.CityID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, map[string]any{"interventions": list})
		},
	})
}

func (h *Handlers) scenarios() http.HandlerFunc {
	return h.handle(endpoint{
		route:    "/scenarios/{city_id}/{aoi_id}/{intervention_id}",
		notFound: "No scenarios found",
		action:   "Retrieving scenarios",
		serve: func(w http.ResponseWriter, r *http.Request) error {
			p := scenarioParams{
				CityID:         chi.URLParam(r, pCityID),
				AoiID:          chi.URLParam(r, pAoiID),
				InterventionID: chi.URLParam(r, pIntervention),
			}
			if err := h.bind(p); err != nil {
				return err
			}
			list, err := h.svc.Scenarios(r.Context(), p.CityID, p.AoiID, p.InterventionID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return model.ErrNotFound
			}
			return composer.WriteJSON(w, r, http.StatusOK, composer.ContentTypeJSON, list)
		},
	})
}
