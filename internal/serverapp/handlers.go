package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"restql/internal/engine"
	"restql/internal/logging"
	"restql/internal/middleware"
	"restql/internal/query"
	"restql/internal/transport"
)

type queryRequest struct {
	Query string `json:"query"`
	Data  any    `json:"data,omitempty"`
}

type errorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeQuery reads a JSON query request no larger than maxBytes.
func decodeQuery(w http.ResponseWriter, r *http.Request, maxBytes int64) (queryRequest, bool) {
	var req queryRequest
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return req, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return req, false
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return req, false
	}
	return req, true
}

// errorStatus maps an engine error to the gateway's response.
func errorStatus(err error) (int, errorResponse) {
	var statusErr *transport.StatusError
	switch {
	case errors.Is(err, query.ErrMalformedQuery),
		errors.Is(err, engine.ErrUnsupportedCommand),
		errors.Is(err, engine.ErrNestedRouteWithoutCondition),
		errors.Is(err, engine.ErrUnresolvedRouteParam):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, errorResponse{Error: "upstream request failed", UpstreamStatus: statusErr.Status}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorResponse{Error: "query timed out"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "query failed"}
	}
}

func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	body.RequestID = logging.GetRequestID(r.Context())

	reqLogger := logging.FromContext(r.Context())
	attrs := []any{slog.Int("status", status), slog.String("error", err.Error())}
	if status >= http.StatusInternalServerError {
		reqLogger.Error("query failed", attrs...)
	} else {
		reqLogger.Info("query rejected", attrs...)
	}
	writeJSON(w, status, body)
}

func queryHandler(eng *engine.Engine, maxBody int64, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeQuery(w, r, maxBody)
		if !ok {
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if auth, ok := middleware.AuthFromContext(ctx); ok {
			logging.FromContext(ctx).Debug("executing query", slog.String("subject", auth.Subject))
		}

		result, err := eng.Exec(ctx, req.Query, req.Data)
		if err != nil {
			writeQueryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": result})
	}
}

func explainHandler(eng *engine.Engine, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeQuery(w, r, maxBody)
		if !ok {
			return
		}
		plan, err := eng.Explain(req.Query, req.Data)
		if err != nil {
			writeQueryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports healthy unless the pagination store is remote and
// unreachable.
func healthHandler(store any, timeout time.Duration) http.HandlerFunc {
	p, remote := store.(pinger)
	return func(w http.ResponseWriter, r *http.Request) {
		if !remote {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "pagination_store"),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "pagination_store": "failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "pagination_store": "ok"})
	}
}
