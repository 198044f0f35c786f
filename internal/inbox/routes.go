package inbox

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/receiver-discovery-go/internal/api"
	"github.com/strefethen/receiver-discovery-go/internal/apperrors"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

// RegisterRoutes wires inbox routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/inbox", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		filter := ListFilter{
			Status:    Status(r.URL.Query().Get("status")),
			ThingType: recognizer.ThingTypeUID(r.URL.Query().Get("thing_type")),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return apperrors.NewValidationError("Invalid status filter", map[string]any{"status": filter.Status})
		}

		entries, err := service.List(filter)
		if err != nil {
			return apperrors.NewInternalError("Failed to load inbox")
		}
		return api.WriteList(w, "/v1/inbox", entries, false)
	}))

	router.Method(http.MethodGet, "/v1/inbox/{thing_uid}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		thingUID := thingUIDParam(r)
		entry, err := service.Get(thingUID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load inbox entry")
		}
		if entry == nil {
			return apperrors.NewInboxNotFoundError(thingUID)
		}
		return api.WriteResource(w, http.StatusOK, entry)
	}))

	router.Method(http.MethodPost, "/v1/inbox/{thing_uid}/approve", api.Handler(statusHandler(service.Approve)))
	router.Method(http.MethodPost, "/v1/inbox/{thing_uid}/ignore", api.Handler(statusHandler(service.Ignore)))

	router.Method(http.MethodDelete, "/v1/inbox/{thing_uid}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		thingUID := thingUIDParam(r)
		removed, err := service.Remove(thingUID)
		if err != nil {
			return apperrors.NewInternalError("Failed to remove inbox entry")
		}
		if !removed {
			return apperrors.NewInboxNotFoundError(thingUID)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":    "inbox_entry",
			"thing_uid": thingUID,
			"deleted":   true,
		})
	}))
}

func statusHandler(apply func(thingUID string) (*Entry, error)) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		thingUID := thingUIDParam(r)
		entry, err := apply(thingUID)
		if err != nil {
			return apperrors.NewInternalError("Failed to update inbox entry")
		}
		if entry == nil {
			return apperrors.NewInboxNotFoundError(thingUID)
		}
		return api.WriteResource(w, http.StatusOK, entry)
	}
}

// thingUIDParam returns the unescaped thing UID; clients escape the ':' separators.
func thingUIDParam(r *http.Request) string {
	raw := chi.URLParam(r, "thing_uid")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}
