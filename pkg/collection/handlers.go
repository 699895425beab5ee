package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/herbtrace/herbtrace/pkg/audit"
	"github.com/herbtrace/herbtrace/pkg/authz"
)

// HistorySource lists the audit events recorded against a collection.
type HistorySource interface {
	ListByResource(ctx context.Context, resourceID string) ([]audit.Event, error)
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// HistoryResponse lists a record's audit trail, oldest first.
type HistoryResponse struct {
	CollectionID string        `json:"collectionId"`
	Events       []audit.Event `json:"events"`
}

// createHandler handles POST /collections.
func createHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err), nil)
			return
		}
		resp, err := svc.Create(r.Context(), &req, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/collections/"+resp.Collection.ID)
		writeJSON(w, http.StatusCreated, resp)
	}
}

// listHandler handles GET /collections.
func listHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		list, err := svc.ListForActor(r.Context(), actor, r.URL.Query().Get("filter"), pageFromRequest(r))
		respond(w, list, err)
	}
}

// listMineHandler handles GET /collections/mine.
func listMineHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		list, err := svc.ListMine(r.Context(), actor, pageFromRequest(r))
		respond(w, list, err)
	}
}

// listAllHandler handles GET /collections/all.
func listAllHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		list, err := svc.ListAll(r.Context(), actor, r.URL.Query().Get("filter"), pageFromRequest(r))
		respond(w, list, err)
	}
}

// searchHandler handles GET /collections/search?q=.
func searchHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Search(r.Context(), r.URL.Query().Get("q"), pageFromRequest(r))
		respond(w, list, err)
	}
}

// byStatusHandler handles GET /collections/by-status/{status}.
func byStatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := ParseStatus(chi.URLParam(r, "status"))
		if err != nil {
			writeServiceError(w, invalid(err.Error()))
			return
		}
		list, err := svc.ListByStatus(r.Context(), status, pageFromRequest(r))
		respond(w, list, err)
	}
}

// byHerbHandler handles GET /collections/by-herb/{herb}.
func byHerbHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByHerb(r.Context(), chi.URLParam(r, "herb"), pageFromRequest(r))
		respond(w, list, err)
	}
}

// byLocationHandler handles GET /collections/by-location?q=.
func byLocationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByLocation(r.Context(), r.URL.Query().Get("q"), pageFromRequest(r))
		respond(w, list, err)
	}
}

// statisticsHandler handles GET /collections/statistics?since=.
func statisticsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var since *time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := parseSince(raw)
			if err != nil {
				writeServiceError(w, invalid(err.Error()))
				return
			}
			since = &t
		}
		stats, err := svc.Statistics(r.Context(), actor, since)
		respond(w, stats, err)
	}
}

// herbNamesHandler handles GET /collections/herbs.
func herbNamesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := svc.DistinctHerbNames(r.Context())
		respond(w, names, err)
	}
}

// locationsHandler handles GET /collections/locations.
func locationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locations, err := svc.DistinctLocations(r.Context())
		respond(w, locations, err)
	}
}

// recentHandler handles GET /collections/recent?limit=.
func recentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				writeServiceError(w, invalid("limit must be a positive integer"))
				return
			}
			limit = v
		}
		records, err := svc.Recent(r.Context(), limit)
		respond(w, records, err)
	}
}

// getHandler handles GET /collections/{id}.
func getHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		respond(w, rec, err)
	}
}

// updateStatusHandler handles PATCH /collections/{id}/status.
func updateStatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err), nil)
			return
		}
		status, err := ParseStatus(req.Status)
		if err != nil {
			writeServiceError(w, invalid(err.Error()))
			return
		}
		rec, err := svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status, req.Reason, actor)
		respond(w, rec, err)
	}
}

// deleteHandler handles DELETE /collections/{id}.
func deleteHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		rec, err := svc.SoftDelete(r.Context(), chi.URLParam(r, "id"), actor)
		respond(w, rec, err)
	}
}

// historyHandler handles GET /collections/{id}/history.
func historyHandler(svc *Service, history HistorySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := svc.Get(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		events, err := history.ListByResource(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		writeJSON(w, http.StatusOK, HistoryResponse{CollectionID: id, Events: events})
	}
}

// transitionsHandler handles GET /collections/{id}/transitions.
func transitionsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		allowed := svc.Machine().AllowedTransitions(rec.Status)
		if allowed == nil {
			allowed = []Status{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"collectionId":     rec.ID,
			"status":           rec.Status,
			"enforceAdjacency": svc.Machine().EnforcesAdjacency(),
			"allowed":          allowed,
		})
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no authenticated actor", nil)
	}
	return actor, ok
}

func pageFromRequest(r *http.Request) Page {
	p := Page{Token: r.URL.Query().Get("pageToken")}
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			p.Size = v
		}
	}
	return p
}

// parseSince accepts RFC 3339 timestamps and plain dates.
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("since must be RFC 3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

func respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		verr *ValidationError
		aerr *AuthorizationError
		nerr *NotFoundError
		cerr *ConflictError
		terr *TransitionError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error(), verr.Errors)
		return
	case errors.As(err, &aerr):
		writeError(w, http.StatusForbidden, "forbidden", aerr.Error(), nil)
		return
	case errors.As(err, &nerr):
		writeError(w, http.StatusNotFound, "not_found", nerr.Error(), nil)
		return
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, "conflict", cerr.Error(), nil)
		return
	case errors.As(err, &terr):
		writeError(w, http.StatusBadRequest, strings.ToLower(terr.Code), terr.Message, nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details []string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}
