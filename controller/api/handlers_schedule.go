package api

import (
	"encoding/json"
	"net/http"

	"github.com/squaredose/doser/controller/modules/schedule"
)

func (s *Server) getSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.schedules.All())
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	head, ok := headFromVars(r)
	if !ok || head < 0 || head >= HeadCount {
		http.Error(w, "head out of range", http.StatusBadRequest)
		return
	}
	sched, found := s.schedules.Get(head)
	if !found {
		http.Error(w, "no schedule set for this head", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

type scheduleRequest struct {
	Enabled             bool    `json:"enabled"`
	DosesPerDay         int     `json:"dosesPerDay"`
	DailyTargetVolumeML float64 `json:"dailyTargetVolumeMl"`
}

func (s *Server) putSchedule(w http.ResponseWriter, r *http.Request) {
	head, ok := headFromVars(r)
	if !ok || head < 0 || head >= HeadCount {
		http.Error(w, "head out of range", http.StatusBadRequest)
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	sched, err := s.schedules.Set(schedule.Schedule{
		Head:                head,
		Enabled:             req.Enabled,
		DosesPerDay:         req.DosesPerDay,
		DailyTargetVolumeML: req.DailyTargetVolumeML,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.appendActivity("head %d schedule updated: %d doses/day, %.2f mL/day",
		head, req.DosesPerDay, req.DailyTargetVolumeML)
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	head, ok := headFromVars(r)
	if !ok || head < 0 || head >= HeadCount {
		http.Error(w, "head out of range", http.StatusBadRequest)
		return
	}
	if err := s.schedules.Delete(head); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.appendActivity("head %d schedule removed", head)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
