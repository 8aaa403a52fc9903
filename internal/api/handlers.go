package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/aggregate"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"github.com/rxtech-lab/nsplit-trading/pkg/schema"
	"go.uber.org/zap"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code  errors.ErrorCode `json:"code"`
	Error string           `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error code to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsStateConflict(err):
		return http.StatusConflict
	case errors.IsPreconditionFailed(err):
		return http.StatusPreconditionFailed
	case errors.IsFeedUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Code: errors.GetCode(err), Error: err.Error()})
}

func decodeConfig(r *http.Request) (types.SessionConfig, error) {
	var cfg types.SessionConfig

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeValidation, "invalid request body", err)
	}

	return cfg, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConfig(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	session, err := s.service.CreateSession(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConfig(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	session, err := s.service.UpdateConfig(r.Context(), mux.Vars(r)["id"], cfg)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, session)
}

// parseFilter reads ?status=, ?symbol= and ?year= from the query.
func parseFilter(r *http.Request) (aggregate.Filter, error) {
	query := r.URL.Query()
	filter := aggregate.Filter{
		Status:        optional.None[types.SessionStatus](),
		SymbolCode:    query.Get("symbol"),
		CompletedYear: optional.None[int](),
	}

	if raw := query.Get("status"); raw != "" {
		status, ok := types.ParseSessionStatus(raw)
		if !ok {
			return filter, errors.Newf(errors.ErrCodeValidation, "unknown status %q", raw)
		}

		filter.Status = optional.Some(status)
	}

	if raw := query.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.Wrapf(errors.ErrCodeValidation, err, "invalid year %q", raw)
		}

		filter.CompletedYear = optional.Some(year)
	}

	return filter, nil
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, s.service.ListSessions(r.Context(), filter))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, id string) (*types.Session, error)

func (s *Server) handleTransition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := fn(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)

			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.Events(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Portfolio(r.Context()))
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	providers := []pricefeed.ProviderInfo{}
	for _, name := range pricefeed.GetSupportedProviders() {
		info, err := pricefeed.GetProviderInfo(name)
		if err != nil {
			continue
		}

		providers = append(providers, info)
	}

	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) handleSessionSchema(w http.ResponseWriter, r *http.Request) {
	//nolint:exhaustruct
	out, err := schema.ToJSONSchema(types.SessionConfig{})
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeUnknown, "failed to render schema", err))

		return
	}

	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write([]byte(out))
}
