package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tariffsim/internal/cache"
	"tariffsim/internal/model"
	"tariffsim/internal/selection"
	"tariffsim/internal/views"
)

var errBadRequest = errors.New("bad request")

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	GeneratedAt string `json:"generated_at"`
	Rows        int    `json:"rows"`
	Sectors     int    `json:"sectors"`
	Countries   int    `json:"countries"`
	Unmatched   int    `json:"unmatched"`
	Cache       string `json:"cache"`
}

type optionsResponse struct {
	Countries views.Options `json:"countries"`
	Sectors   views.Options `json:"sectors"`
}

type historyResponse struct {
	Country string               `json:"country"`
	Points  []model.HistoryPoint `json:"points"`
}

type sessionResponse struct {
	ID    string          `json:"id"`
	Focus selection.Focus `json:"focus"`
	State selection.State `json:"state"`
}

type sessionViewsResponse struct {
	sessionResponse
	Map     model.FeatureCollection `json:"map"`
	Ranked  views.Ranked            `json:"ranked"`
	Detail  views.Detail            `json:"detail"`
	History historyResponse         `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     s.ds.Version(),
		GeneratedAt: s.ds.GeneratedAt.Format(time.RFC3339),
		Rows:        s.ds.Table.Len(),
		Sectors:     len(s.ds.Table.Sectors()),
		Countries:   len(s.ds.Table.Countries()),
		Unmatched:   len(s.ds.Report.Unmatched),
		Cache:       "ok",
	}
	if err := s.cache.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Cache = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optionsResponse{Countries: s.countries, Sectors: s.sectors})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	sector, err := s.sectorParam(r.URL.Query().Get("sector"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.serveCached(w, r, "map", map[string]string{"sector": sector}, func() any {
		return views.MapOverlay(s.ds.Table, s.ds.Geo, sector)
	})
}

func (s *Server) handleRanked(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sector, err := s.sectorParam(query.Get("sector"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := tariffParam(query.Get("tariff"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	unit, err := views.ParseUnit(query.Get("units"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	top := s.topN
	if raw := strings.TrimSpace(query.Get("top")); raw != "" {
		top, err = strconv.Atoi(raw)
		if err != nil || top < 0 {
			writeError(w, r, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
	}

	params := map[string]string{
		"sector": sector,
		"mode":   modeKey(mode),
		"units":  string(unit),
		"top":    strconv.Itoa(top),
	}
	s.serveCached(w, r, "ranked", params, func() any {
		return views.BuildRanked(s.ds.Table, sector, mode, unit, top)
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	country, err := s.countryParam(query.Get("country"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sector, err := s.sectorParam(query.Get("sector"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if country != model.AllCountries && sector != model.AllSectors {
		writeError(w, r, http.StatusBadRequest, "country and sector cannot both be selected")
		return
	}
	mode, err := tariffParam(query.Get("tariff"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	params := map[string]string{"country": country, "sector": sector, "mode": modeKey(mode)}
	s.serveCached(w, r, "detail", params, func() any {
		return views.BuildDetail(s.ds.Table, s.ds.History, country, sector, mode)
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	country, err := s.countryParam(r.URL.Query().Get("country"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.history(country))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.create(s.ds.Table)
	s.updateSessionGauge()
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}

	sess.mu.Lock()
	resp := newSessionResponse(sess)
	sess.mu.Unlock()
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (any, error) {
		return newSessionResponse(sess), nil
	})
}

func (s *Server) handleSelectCountry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Country string `json:"country"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	country, err := s.countryParam(body.Country)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.withSession(w, r, func(sess *session) (any, error) {
		sess.sync.SelectCountry(country)
		s.metrics.Transitions.WithLabelValues("country").Inc()
		return newSessionResponse(sess), nil
	})
}

func (s *Server) handleSelectSector(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sector string `json:"sector"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sector, err := s.sectorParam(body.Sector)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.withSession(w, r, func(sess *session) (any, error) {
		sess.sync.SelectSector(sector)
		s.metrics.Transitions.WithLabelValues("sector").Inc()
		return newSessionResponse(sess), nil
	})
}

func (s *Server) handleSetTariff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tariff *float64 `json:"tariff"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if body.Tariff == nil {
		writeError(w, r, http.StatusBadRequest, selection.ErrInvalidTariff.Error())
		return
	}
	s.withSession(w, r, func(sess *session) (any, error) {
		if _, err := sess.sync.SetManualTariff(*body.Tariff); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		s.metrics.Transitions.WithLabelValues("tariff").Inc()
		return newSessionResponse(sess), nil
	})
}

func (s *Server) handleResetTariff(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (any, error) {
		sess.sync.ResetToETR()
		s.metrics.Transitions.WithLabelValues("reset").Inc()
		return newSessionResponse(sess), nil
	})
}

// handleSessionViews renders every view for the session's current state.
// Ranked and map follow the selected sector.
func (s *Server) handleSessionViews(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (any, error) {
		state := sess.sync.State()
		mode := state.Mode()
		return sessionViewsResponse{
			sessionResponse: newSessionResponse(sess),
			Map:             views.MapOverlay(s.ds.Table, s.ds.Geo, state.Sector),
			Ranked:          views.BuildRanked(s.ds.Table, state.Sector, mode, views.UnitUSD, s.topN),
			Detail:          views.BuildDetail(s.ds.Table, s.ds.History, state.Country, state.Sector, mode),
			History:         s.history(state.Country),
		}, nil
	})
}

// withSession runs fn while holding the session lock.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*session) (any, error)) {
	sess, err := s.sessions.get(mux.Vars(r)["id"])
	s.updateSessionGauge()
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	sess.mu.Lock()
	resp, err := fn(sess)
	sess.mu.Unlock()

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errBadRequest) {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateSessionGauge publishes the live session count; lookups and creates
// expire idle sessions.
func (s *Server) updateSessionGauge() {
	s.metrics.Sessions.Set(float64(s.sessions.len()))
}

func newSessionResponse(sess *session) sessionResponse {
	return sessionResponse{
		ID:    sess.id,
		Focus: sess.sync.Focus(),
		State: sess.sync.State(),
	}
}

func (s *Server) history(country string) historyResponse {
	return historyResponse{Country: country, Points: views.History(s.ds.History, country)}
}

// serveCached writes the cached body for (view, params) or builds, caches
// and writes it. Cache failures only cost a rebuild.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, view string, params map[string]string, build func() any) {
	key := cache.Key(s.ds.Version(), view, params)
	ctx := r.Context()

	body, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("view", view).Msg("view cache read failed")
	}
	if ok {
		s.metrics.CacheLookups.WithLabelValues(view, "hit").Inc()
		writeRaw(w, http.StatusOK, body)
		return
	}
	s.metrics.CacheLookups.WithLabelValues(view, "miss").Inc()

	body, err = json.Marshal(build())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.storeCached(ctx, view, key, body)
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) storeCached(ctx context.Context, view, key string, body []byte) {
	if err := s.cache.Set(ctx, key, body, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("view", view).Msg("view cache write failed")
	}
}

func (s *Server) countryParam(raw string) (string, error) {
	country := strings.ToUpper(strings.TrimSpace(raw))
	if country == "" {
		return model.AllCountries, nil
	}
	if !s.ds.Table.HasCountry(country) {
		return "", fmt.Errorf("unknown country: %s", raw)
	}
	return country, nil
}

func (s *Server) sectorParam(raw string) (string, error) {
	sector := strings.TrimSpace(raw)
	if sector == "" {
		return model.AllSectors, nil
	}
	if !s.ds.Table.HasSector(sector) {
		return "", fmt.Errorf("unknown sector: %s", raw)
	}
	return sector, nil
}

// tariffParam parses an optional manual tariff with the same clamping as a
// session; empty means ETR mode.
func tariffParam(raw string) (views.TariffMode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return views.ETRMode, nil
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return views.TariffMode{}, selection.ErrInvalidTariff
	}
	state, err := selection.New(nil).SetManualTariff(rate)
	if err != nil {
		return views.TariffMode{}, err
	}
	return state.Mode(), nil
}

func modeKey(mode views.TariffMode) string {
	if mode.ETR {
		return "etr"
	}
	return strconv.FormatFloat(mode.Manual, 'g', -1, 64)
}

func decodeBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestID(r)})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}
