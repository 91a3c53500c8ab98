package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/squaredose/doser/controller"
	"github.com/squaredose/doser/controller/modules/dosinghead"
)

type statusResponse struct {
	WallSeconds    int64            `json:"wallSeconds"`
	WallSynced     bool             `json:"wallSynced"`
	UptimeSeconds  int64            `json:"uptimeSeconds"`
	Heads          []headStatus     `json:"heads"`
	WiFiMode       string           `json:"wifiMode"`
	FreeMemoryKB   uint64           `json:"freeMemoryKb,omitempty"`
}

type headStatus struct {
	Head        int     `json:"head"`
	Dispensing  bool    `json:"dispensing"`
	MLPerSecond float64 `json:"mlPerSecond"`
	Calibrated  bool    `json:"calibrated"`
}

// getStatus reports overall device state plus a per-head summary.
// The optional free-memory field is pulled from gopsutil when
// available and silently omitted otherwise, since diagnostics like
// this are "nice to have" but
// never block a status response.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	wallNow := s.clock.WallSeconds()
	resp := statusResponse{
		WallSeconds:   wallNow,
		WallSynced:    controller.WallSynced(wallNow),
		UptimeSeconds: wallNow - s.startedAt,
		WiFiMode:      s.wifi.CurrentMode().String(),
	}
	for i, h := range s.heads {
		cal := h.GetCalibrationData()
		resp.Heads = append(resp.Heads, headStatus{
			Head:        i,
			Dispensing:  h.IsDispensing(),
			MLPerSecond: cal.MLPerSecond,
			Calibrated:  cal.Calibrated,
		})
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.FreeMemoryKB = vm.Available / 1024
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getTime(w http.ResponseWriter, r *http.Request) {
	wallNow := s.clock.WallSeconds()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallSeconds": wallNow,
		"synced":      controller.WallSynced(wallNow),
	})
}

type setTimeRequest struct {
	WallSeconds int64 `json:"wallSeconds"`
}

// setTime exists for completeness against POST /api/time — the
// device itself has no RTC write path here (Clock.WallSeconds always
// reads the host OS clock), so this
// only validates the payload and reports whether the requested value
// would be considered synced; NTP is what actually advances wall time.
func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	var req setTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallSeconds": req.WallSeconds,
		"synced":      controller.WallSynced(req.WallSeconds),
	})
}

type doseRequest struct {
	Head      int     `json:"head"`
	VolumeML  float64 `json:"volumeMl"`
}

// postDose dispatches an ad-hoc dose in a detached goroutine and
// answers 202 Accepted immediately, the same response-now/work-later
// pattern WebServer.cpp's /api/dose handler uses with xTaskCreate —
// the caller learns the outcome from the dose_complete/dose_error
// WebSocket event.
func (s *Server) postDose(w http.ResponseWriter, r *http.Request) {
	var req doseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Head < 0 || req.Head >= HeadCount {
		http.Error(w, "head out of range", http.StatusBadRequest)
		return
	}
	if req.VolumeML < dosinghead.MinVolumeML || req.VolumeML > dosinghead.MaxVolumeML {
		http.Error(w, "volume out of range", http.StatusBadRequest)
		return
	}

	head := s.heads[req.Head]
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "head": req.Head})

	s.detacher.SpawnDetached("dose", func() {
		estimatedMl, err := head.DispenseML(req.VolumeML)
		wallNow := s.clock.WallSeconds()
		if err != nil {
			s.appendActivity("head %d dose failed: %v", req.Head, err)
			s.hub.Broadcast(Event{Type: "dose_error", Head: req.Head, Error: err.Error()})
			return
		}
		if err := s.logs.LogAdhocDose(req.Head, estimatedMl, wallNow); err != nil {
			s.logger.Error("log adhoc dose failed", "head", req.Head, "error", err)
		}
		if state, err := s.reservoirs.Consume(req.Head, estimatedMl); err != nil {
			s.logger.Error("reservoir consume failed", "head", req.Head, "error", err)
		} else if state.IsLow() {
			s.appendActivity("head %d reservoir low: %.1f mL remaining", req.Head, state.RemainingML)
		}
		s.metrics.ObserveDose(req.Head, estimatedMl)
		s.appendActivity("head %d dosed %.2f mL", req.Head, estimatedMl)
		s.hub.Broadcast(Event{Type: "dose_complete", Head: req.Head, VolumeML: estimatedMl})
	})
}

// postEmergencyStop immediately halts every head's motor and
// interrupts any in-flight dispense, then broadcasts a WebSocket
// event — MotorDriver::emergencyStopAll plus DosingHead::stopDispensing
// for every head, matching WebServer.cpp's /api/emergency-stop.
func (s *Server) postEmergencyStop(w http.ResponseWriter, r *http.Request) {
	for _, h := range s.heads {
		h.StopDispensing()
	}
	if err := s.actuator.EmergencyStopAll(); err != nil {
		s.logger.Error("emergency stop failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.appendActivity("emergency stop triggered")
	s.hub.Broadcast(Event{Type: "emergency_stop"})
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) getCalibration(w http.ResponseWriter, r *http.Request) {
	var out []interface{}
	for _, h := range s.heads {
		out = append(out, h.GetCalibrationData())
	}
	writeJSON(w, http.StatusOK, out)
}

type calibrateRequest struct {
	Head             int     `json:"head"`
	ActualVolumeML   float64 `json:"actualVolumeMl"`
	RuntimeMillis    int64   `json:"runtimeMillis"`
}

// postCalibrate accepts a measured volume from a calibration run the
// operator already performed (via RunCalibrationDose, dispatched
// separately so the operator can physically measure the output first)
// and recomputes the head's mL/s rate.
func (s *Server) postCalibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Head < 0 || req.Head >= HeadCount {
		http.Error(w, "head out of range", http.StatusBadRequest)
		return
	}
	ok, err := s.heads[req.Head].Calibrate(req.ActualVolumeML, req.RuntimeMillis)
	if err != nil {
		var rejected *controller.CalibrationRejectedError
		if errors.As(err, &rejected) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.appendActivity("head %d calibrated", req.Head)
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": ok})
}

func headFromVars(r *http.Request) (int, bool) {
	v, ok := mux.Vars(r)["head"]
	if !ok {
		return 0, false
	}
	head, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return head, true
}
