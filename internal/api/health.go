package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/web/response"
)

const healthTimeout = 2 * time.Second

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	if a.health == nil {
		response.RenderJSON(w, http.StatusOK, healthStatus{Status: "ok", Database: "unchecked"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := a.health.Ping(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		response.RenderJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Database: "down"})
		return
	}
	response.RenderJSON(w, http.StatusOK, healthStatus{Status: "ok", Database: "up"})
}
