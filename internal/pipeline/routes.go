package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/receiver-discovery-go/internal/api"
	"github.com/strefethen/receiver-discovery-go/internal/apperrors"
)

// RegisterRoutes wires discovery routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/discovery/rescan", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		result, err := service.Rescan(r.Context())
		if err != nil {
			if errors.Is(err, ErrNoScanner) {
				return apperrors.NewAppError(apperrors.ErrorCodeDiscoveryDisabled, "Discovery is disabled", http.StatusServiceUnavailable, nil)
			}
			return apperrors.NewDiscoveryFailedError("Discovery run failed: " + err.Error())
		}
		return api.WriteResource(w, http.StatusOK, result)
	}))

	router.Method(http.MethodGet, "/v1/discovery/status", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, service.Status())
	}))

	router.Method(http.MethodGet, "/v1/discovery/runs", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 200 {
				return apperrors.NewValidationError("limit must be between 1 and 200", map[string]any{"limit": raw})
			}
			limit = parsed
		}

		runs, err := service.History(limit)
		if err != nil {
			return apperrors.NewInternalError("Failed to load discovery runs")
		}
		return api.WriteList(w, "/v1/discovery/runs", runs, false)
	}))

	router.Method(http.MethodGet, "/v1/discovery/participants", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		types := service.SupportedTypes()
		participants := make([]map[string]any, 0, len(types))
		for _, thingType := range types {
			participants = append(participants, map[string]any{
				"object":         "discovery_participant",
				"thing_type_uid": thingType,
			})
		}
		return api.WriteList(w, "/v1/discovery/participants", participants, false)
	}))
}
