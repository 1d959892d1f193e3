package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gramvani/kisan/internal/advisory"
	"github.com/gramvani/kisan/internal/connectivity"
	"github.com/gramvani/kisan/internal/directory"
	"github.com/gramvani/kisan/internal/dispatch"
	"github.com/gramvani/kisan/internal/locale"
	"github.com/gramvani/kisan/internal/profile"
	"github.com/gramvani/kisan/internal/storage"
)

const maxRequestBodySize = 1 << 20   // 1MB
const maxDiagnoseBodySize = 10 << 20 // 10MB, image payloads

// QueryStore is the read/delete surface the API needs over stored queries.
// *storage.Store and *storage.Memory both satisfy it.
type QueryStore interface {
	GetQuery(id int64) (storage.Query, error)
	ListQueries(limit int) ([]storage.Query, error)
	GetResponsesFor(queryID int64) ([]storage.Response, error)
	DeleteQuery(id int64) error
	CountByStatus(status string) (int, error)
}

// Diagnoser abstracts the vision pipeline for the API layer.
type Diagnoser interface {
	Diagnose(ctx context.Context, notes, language string, image []byte) (advisory.Diagnosis, error)
}

type AppDeps struct {
	Dispatcher *dispatch.Dispatcher
	Store      QueryStore
	Monitor    *connectivity.Monitor
	Profile    *profile.Manager
	Directory  *directory.Directory
	Diagnoser  Diagnoser // optional; if nil, POST /diagnose reports unavailable
	Token      string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/ask", handleAsk(deps))
		r.Get("/events", handleEvents(deps))

		r.Get("/connectivity", handleGetConnectivity(deps))
		r.Post("/connectivity", handleSetConnectivity(deps))

		r.Post("/diagnose", handleDiagnose(deps))

		r.Get("/status", handleStatus(deps))
		r.Get("/queries", handleListQueries(deps))
		r.Get("/queries/{id}", handleGetQuery(deps))
		r.Get("/queries/{id}/responses", handleGetResponses(deps))
		r.Delete("/queries/{id}", handleDeleteQuery(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))

		r.Get("/experts", handleExperts(deps))
		r.Get("/schemes", handleSchemes(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type askRequest struct {
	Prompt   string `json:"prompt"`
	Kind     string `json:"kind"`
	Language string `json:"language"`
}

func handleAsk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sub, err := deps.Dispatcher.Submit(r.Context(), req.Prompt, req.Kind, locale.Normalize(req.Language))
		if errors.Is(err, dispatch.ErrEmptyPrompt) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to submit query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sub)
	}
}

// handleEvents streams dispatcher results as server-sent events, one
// "data:" line per answered query, until the client disconnects.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		id, ch := deps.Dispatcher.Subscribe()
		defer deps.Dispatcher.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case res, open := <-ch:
				if !open {
					return
				}
				payload, err := json.Marshal(res)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}

func handleGetConnectivity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"online": deps.Monitor.Online()})
	}
}

// handleSetConnectivity is the push-style connectivity report: whoever can
// observe the network (UI, supervisor script) tells the daemon. Reporting the
// current state again is a no-op; an offline-to-online edge starts the replay.
func handleSetConnectivity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Online *bool `json:"online"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Online == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "online is required")
			return
		}

		deps.Monitor.SetOnline(*req.Online)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"online": deps.Monitor.Online()})
	}
}

type diagnoseRequest struct {
	Notes    string `json:"notes"`
	Language string `json:"language"`
	Image    string `json:"image"` // base64-encoded
}

func handleDiagnose(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Diagnoser == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "diagnosis is not available")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxDiagnoseBodySize)
		defer r.Body.Close()

		var req diagnoseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Image == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image is required")
			return
		}
		image, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 image")
			return
		}

		d, err := deps.Diagnoser.Diagnose(r.Context(), req.Notes, locale.Normalize(req.Language), image)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "diagnosis failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := deps.Store.CountByStatus(storage.StatusPending)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count queries: %v", err)
			return
		}
		completed, err := deps.Store.CountByStatus(storage.StatusCompleted)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count queries: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"online":    deps.Monitor.Online(),
			"pending":   pending,
			"completed": completed,
		})
	}
}

type queryView struct {
	ID        int64     `json:"id"`
	Prompt    string    `json:"prompt"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type responseView struct {
	ID        int64     `json:"id"`
	QueryID   int64     `json:"query_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func toQueryViews(qs []storage.Query) []queryView {
	out := make([]queryView, 0, len(qs))
	for _, q := range qs {
		out = append(out, queryView(q))
	}
	return out
}

func toResponseViews(rs []storage.Response) []responseView {
	out := make([]responseView, 0, len(rs))
	for _, r := range rs {
		out = append(out, responseView(r))
	}
	return out
}

func handleListQueries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		queries, err := deps.Store.ListQueries(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list queries: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toQueryViews(queries))
	}
}

func handleGetQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid query id")
			return
		}

		q, err := deps.Store.GetQuery(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "query not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(queryView(q))
	}
}

func handleGetResponses(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid query id")
			return
		}

		if _, err := deps.Store.GetQuery(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "query not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get query: %v", err)
			return
		}

		responses, err := deps.Store.GetResponsesFor(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get responses: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toResponseViews(responses))
	}
}

func handleDeleteQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid query id")
			return
		}

		err = deps.Store.DeleteQuery(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "query not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		for key, value := range fields {
			if err := deps.Profile.SetField(key, value); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to set field %q: %v", key, err)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func handleExperts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		experts := deps.Directory.Experts(r.URL.Query().Get("state"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(experts)
	}
}

func handleSchemes(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schemes := deps.Directory.Schemes(r.URL.Query().Get("category"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(schemes)
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
