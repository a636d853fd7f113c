package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ReadyChecker 由 sopr.App 实现
type ReadyChecker interface {
	IsReady() bool
}

func HealthCheck(app ReadyChecker) http.HandlerFunc {
	startTime := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		// 使用 defer 和 recover 捕获 panic 错误
		defer func() {
			if r := recover(); r != nil {
				http.Error(w, fmt.Sprintf("Internal server error: %v", r), http.StatusInternalServerError)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		if app.IsReady() {
			w.WriteHeader(http.StatusOK)
			resp := map[string]any{
				"status":    "UP",
				"checkTime": formatLocalDateTime(),
				"uptime":    time.Since(startTime).Truncate(time.Second).String(),
			}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}

		w.WriteHeader(http.StatusServiceUnavailable)
		resp := map[string]any{
			"status":  "DOWN",
			"details": "Application is not ready",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// 格式化本地时间为 "yyyy-MM-ddTHH:mm:ss.SSSSSSS" 格式
func formatLocalDateTime() string {
	return time.Now().In(time.Local).Format("2006-01-02T15:04:05.9999999")
}
