package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"net/http"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/sopr"
	"sopr-stats-sol/internal/sopr/analytics"
	"sopr-stats-sol/internal/sopr/types"
)

// SoprComputer 由 sopr.App 实现
type SoprComputer interface {
	Compute(ctx context.Context, token, session string, progress analytics.ProgressFunc) (*types.SoprResult, error)
	ResetSession(session string) (bool, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetSopr GET /api/v1/sopr/{address}?session=&details=true
func GetSopr(app SoprComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				http.Error(w, fmt.Sprintf("Internal server error: %v", r), http.StatusInternalServerError)
			}
		}()

		address := chi.URLParam(r, "address")
		session := r.URL.Query().Get("session")

		res, err := app.Compute(r.Context(), address, session, nil)
		if err != nil {
			status := StatusOf(err)
			if status >= http.StatusInternalServerError {
				logger.Warnf("[Handler] sopr for %s failed: %v", address, err)
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, summarize(res, r.URL.Query().Get("details") == "true"))
	}
}

// ResetSession DELETE /api/v1/sopr/sessions/{session}
func ResetSession(app SoprComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		existed, err := app.ResetSession(chi.URLParam(r, "session"))
		if err != nil {
			writeJSON(w, StatusOf(err), errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reset": existed})
	}
}

// summarize 返回副本，res 可能仍被推送协程读取
func summarize(res *types.SoprResult, details bool) *types.SoprResult {
	out := *res
	if !details {
		out.Holders = nil
	}
	return &out
}

// StatusOf 错误到 HTTP 状态码的映射
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, types.ErrInvalidAddress), errors.Is(err, sopr.ErrInvalidSession):
		return http.StatusBadRequest
	case errors.Is(err, analytics.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // 客户端断开
	case errors.Is(err, analytics.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("[Handler] write response failed: %v", err)
	}
}
