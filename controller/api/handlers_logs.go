package api

import (
	"net/http"
	"strconv"
)

// getLogsDashboard returns each head's daily summary against its
// schedule's target, if one is set — DosingLogManager::getAllDailySummaries.
func (s *Server) getLogsDashboard(w http.ResponseWriter, r *http.Request) {
	wallNow := s.clock.WallSeconds()
	out := make([]interface{}, 0, HeadCount)
	for head := 0; head < HeadCount; head++ {
		target := 0.0
		if sched, ok := s.schedules.Get(head); ok {
			target = sched.DailyTargetVolumeML
		}
		summary, err := s.logs.DailySummary(head, wallNow, target)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, summary)
	}
	count, _ := s.logs.Count()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": out,
		"logCount":  count,
	})
}

// getLogsHourly returns a head's raw hourly entries over
// [start, end) — query params head, start, end (all required, all
// integers: head index, wall seconds).
func (s *Server) getLogsHourly(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	head, err := strconv.Atoi(q.Get("head"))
	if err != nil || head < 0 || head >= HeadCount {
		http.Error(w, "head query parameter required and must be in range", http.StatusBadRequest)
		return
	}
	start, err := strconv.ParseInt(q.Get("start"), 10, 64)
	if err != nil {
		http.Error(w, "start query parameter required", http.StatusBadRequest)
		return
	}
	end, err := strconv.ParseInt(q.Get("end"), 10, 64)
	if err != nil {
		http.Error(w, "end query parameter required", http.StatusBadRequest)
		return
	}
	entries, err := s.logs.HourlyLogs(head, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// deleteLogs clears all stored hourly history — DosingLogStore::clearAll.
func (s *Server) deleteLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.logs.ClearAll(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.appendActivity("dosing logs cleared")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
