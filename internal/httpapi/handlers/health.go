package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"slidecast/internal/engine"
	"slidecast/internal/httpkit"
	"slidecast/internal/ports"
)

var probeEngine = engine.Probe

const healthProbeKey = ".healthcheck/probe"

// Health probes the media engine. With ?deep=true it also checks the optional
// PostgreSQL, Redis and storage dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	st, err := probeEngine(ctx, h.ffmpegBin)
	if err != nil {
		log.WithError(err).Error("media engine probe failed")
		httpkit.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	health := map[string]any{
		"status":          "healthy",
		"ffmpeg":          st.Version,
		"fonts_available": st.FontsAvailable,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"postgres": h.checkPostgres(ctx),
		"redis":    h.checkRedis(ctx),
		"storage":  h.checkStorage(ctx),
	}
}

func disabled() map[string]any {
	return map[string]any{"status": "disabled"}
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	if h.db == nil {
		return disabled()
	}
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.db.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	if h.rdb == nil {
		return disabled()
	}
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

// checkStorage writes and removes a small probe object.
func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	if h.sp == nil {
		return disabled()
	}
	start := time.Now()
	result := map[string]any{
		"status":   "ok",
		"provider": h.sp.Provider(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := h.sp.PutObject(checkCtx, ports.PutObjectInput{
		ObjectKey:   healthProbeKey,
		ContentType: "text/plain",
		Reader:      strings.NewReader("ok"),
		Size:        2,
	})
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else if err := h.sp.DeleteObject(checkCtx, out.ObjectKey); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
