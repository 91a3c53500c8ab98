// Package api is the northbound HTTP/WebSocket surface: a gorilla/mux
// subrouter per resource, http.Error for failures, json.NewEncoder for
// success bodies, and an in-memory capped activity log.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/squaredose/doser/controller"
	"github.com/squaredose/doser/controller/modules/doselog"
	"github.com/squaredose/doser/controller/modules/dosinghead"
	"github.com/squaredose/doser/controller/modules/motor"
	"github.com/squaredose/doser/controller/modules/reservoir"
	"github.com/squaredose/doser/controller/modules/schedule"
	"github.com/squaredose/doser/controller/modules/wifi"
)

const HeadCount = 4

// Detacher is the subset of tasks.Fabric the API needs to hand off
// work that must outlive the request — ad-hoc doses and Wi-Fi
// transitions, both of which respond immediately and finish in the
// background.
type Detacher interface {
	SpawnDetached(label string, fn func())
}

// Server holds every subsystem handle the HTTP layer dispatches to. It
// never holds a subsystem's own mutex across a call — each call into
// heads/schedules/logs/wifi already manages its own locking.
type Server struct {
	heads      [HeadCount]*dosinghead.Head
	actuator   motor.Actuator
	schedules  *schedule.Manager
	logs       *doselog.Manager
	wifi       *wifi.Supervisor
	reservoirs *reservoir.Manager
	clock      controller.Clock
	logger     *slog.Logger
	detacher   Detacher
	hub        *Hub
	metrics    *Metrics

	mu        sync.Mutex
	activity  []string
	startedAt int64
}

func NewServer(
	heads [HeadCount]*dosinghead.Head,
	actuator motor.Actuator,
	schedules *schedule.Manager,
	logs *doselog.Manager,
	wifiSupervisor *wifi.Supervisor,
	reservoirs *reservoir.Manager,
	clock controller.Clock,
	logger *slog.Logger,
	detacher Detacher,
) *Server {
	return &Server{
		heads:      heads,
		actuator:   actuator,
		schedules:  schedules,
		logs:       logs,
		wifi:       wifiSupervisor,
		reservoirs: reservoirs,
		clock:      clock,
		logger:     logger,
		detacher:   detacher,
		hub:        newHub(),
		metrics:    newMetrics(),
		startedAt:  clock.WallSeconds(),
	}
}

// appendActivity records msg into the capped in-memory activity log.
func (s *Server) appendActivity(format string, args ...interface{}) {
	entry := time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entry)
	if len(s.activity) > 100 {
		s.activity = s.activity[len(s.activity)-100:]
	}
}

// LoadAPI registers every route under r.
func (s *Server) LoadAPI(r *mux.Router) {
	r.HandleFunc("/api/status", s.getStatus).Methods("GET")
	r.HandleFunc("/api/time", s.getTime).Methods("GET")
	r.HandleFunc("/api/time", s.setTime).Methods("POST")
	r.HandleFunc("/api/dose", s.postDose).Methods("POST")
	r.HandleFunc("/api/emergency-stop", s.postEmergencyStop).Methods("POST")
	r.HandleFunc("/api/calibration", s.getCalibration).Methods("GET")
	r.HandleFunc("/api/calibrate", s.postCalibrate).Methods("POST")

	r.HandleFunc("/api/wifi/status", s.getWiFiStatus).Methods("GET")
	r.HandleFunc("/api/wifi/configure", s.postWiFiConfigure).Methods("POST")
	r.HandleFunc("/api/wifi/reset", s.postWiFiReset).Methods("POST")

	r.HandleFunc("/api/schedules", s.getSchedules).Methods("GET")
	r.HandleFunc("/api/schedules/{head}", s.getSchedule).Methods("GET")
	r.HandleFunc("/api/schedules/{head}", s.putSchedule).Methods("POST")
	r.HandleFunc("/api/schedules/{head}", s.deleteSchedule).Methods("DELETE")

	r.HandleFunc("/api/logs/dashboard", s.getLogsDashboard).Methods("GET")
	r.HandleFunc("/api/logs/hourly", s.getLogsHourly).Methods("GET")
	r.HandleFunc("/api/logs", s.deleteLogs).Methods("DELETE")

	r.HandleFunc("/api/activity", s.getActivity).Methods("GET")

	r.HandleFunc("/api/reservoirs", s.getReservoirs).Methods("GET")
	r.HandleFunc("/api/reservoirs/{head}", s.putReservoir).Methods("POST")

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/healthz", s.getHealthz).Methods("GET")
	r.HandleFunc("/ws", s.serveWS)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]string(nil), s.activity...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}
