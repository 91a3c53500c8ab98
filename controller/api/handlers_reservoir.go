package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) getReservoirs(w http.ResponseWriter, r *http.Request) {
	states, err := s.reservoirs.All()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

type reservoirRequest struct {
	StartVolumeML  float64 `json:"startVolumeMl"`
	LowThresholdML float64 `json:"lowThresholdMl"`
}

// putReservoir configures (or refills) a head's reservoir, resetting
// its remaining volume to startVolumeMl.
func (s *Server) putReservoir(w http.ResponseWriter, r *http.Request) {
	head, ok := headFromVars(r)
	if !ok || head < 0 || head >= HeadCount {
		http.Error(w, "head out of range", http.StatusBadRequest)
		return
	}
	var req reservoirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	state, err := s.reservoirs.Configure(head, req.StartVolumeML, req.LowThresholdML)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.appendActivity("head %d reservoir configured: %.1f mL, low threshold %.1f mL",
		head, req.StartVolumeML, req.LowThresholdML)
	writeJSON(w, http.StatusOK, state)
}
