package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/jeeves-wordclock/pkg/mqtt"
	"github.com/saaga0h/jeeves-wordclock/pkg/postgres"
	"github.com/saaga0h/jeeves-wordclock/pkg/redis"
)

// DisplayStatus is the render state of the clock face
type DisplayStatus struct {
	Display      string     `json:"display"`
	Synchronized bool       `json:"synchronized"`
	Controller   string     `json:"controller,omitempty"`
	LastRender   *time.Time `json:"last_render,omitempty"`
	Bucket       *int       `json:"bucket,omitempty"`
	Brightness   float64    `json:"brightness"`
}

// DisplayStatusProvider reports the current display status
type DisplayStatusProvider interface {
	DisplayStatus() DisplayStatus
}

// Checker provides health check functionality for the agent
type Checker struct {
	mqtt     mqtt.Client
	redis    redis.Client
	display  DisplayStatusProvider
	postgres postgres.Client
	logger   *slog.Logger
}

// NewChecker creates a new health checker. display may be nil.
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, display DisplayStatusProvider, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:    mqttClient,
		redis:   redisClient,
		display: display,
		logger:  logger,
	}
}

// WithPostgres adds the render journal database to the detailed check. The
// journal is optional, so its state never degrades the overall status.
func (h *Checker) WithPostgres(client postgres.Client) *Checker {
	h.postgres = client
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  *Services      `json:"services,omitempty"`
	Display   *DisplayStatus `json:"display,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Redis    string `json:"redis"`
	MQTT     string `json:"mqtt"`
	Postgres string `json:"postgres,omitempty"`
}

// HandlerFunc returns a liveness handler. It answers 200 while the process
// is alive and does not touch any dependency.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		h.write(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that reports dependencies and the
// display. A display that never synchronized its clock is "degraded".
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Redis: "unknown",
			MQTT:  "unknown",
		}

		if h.mqtt != nil && h.mqtt.IsConnected() {
			services.MQTT = "connected"
		} else {
			services.MQTT = "disconnected"
		}

		// Redis is not pinged here to keep the check fast
		if h.redis != nil {
			services.Redis = "connected"
		} else {
			services.Redis = "disconnected"
		}

		status := "healthy"
		statusCode := http.StatusOK

		if services.Redis == "disconnected" || services.MQTT == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if h.postgres != nil {
			services.Postgres = "disconnected"
			pg, err := h.postgres.HealthCheck(r.Context())
			if err == nil && pg.Connected {
				services.Postgres = "connected"
				if !pg.JournalReady {
					services.Postgres = "connected (journal table missing)"
				}
			}
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		}

		if h.display != nil {
			display := h.display.DisplayStatus()
			response.Display = &display
			if !display.Synchronized {
				response.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		h.write(w, statusCode, response)
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
