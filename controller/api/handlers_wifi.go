package api

import (
	"encoding/json"
	"net/http"
)

type wifiStatusResponse struct {
	Mode        string `json:"mode"`
	SSID        string `json:"ssid,omitempty"`
	LocalIP     string `json:"localIp,omitempty"`
	APSSID      string `json:"apSsid"`
	IsConnected bool   `json:"isConnected"`
}

func (s *Server) getWiFiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wifiStatusResponse{
		Mode:        s.wifi.CurrentMode().String(),
		LocalIP:     s.wifi.LocalIP(),
		APSSID:      s.wifi.APSSID(),
		IsConnected: s.wifi.IsConnected(),
	})
}

type wifiConfigureRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// postWiFiConfigure answers immediately and switches to STA in the
// background — WebServer.cpp's /api/wifi/configure responds before
// the interface actually flips, since the HTTP client is typically
// still attached to the AP it's about to lose.
func (s *Server) postWiFiConfigure(w http.ResponseWriter, r *http.Request) {
	var req wifiConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.SSID == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})

	s.detacher.SpawnDetached("wifi-configure", func() {
		if err := s.wifi.SetCredentials(req.SSID, req.Password); err != nil {
			s.logger.Warn("wifi configure failed", "ssid", req.SSID, "error", err)
			s.appendActivity("wifi configure failed: %v", err)
			return
		}
		s.appendActivity("wifi connected to %s", req.SSID)
	})
}

// postWiFiReset answers immediately and clears credentials plus
// switches back to AP mode in the background, mirroring
// /api/wifi/reset's respond-then-transition pattern.
func (s *Server) postWiFiReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	s.detacher.SpawnDetached("wifi-reset", func() {
		if err := s.wifi.ClearCredentials(); err != nil {
			s.logger.Warn("wifi reset failed", "error", err)
			return
		}
		s.appendActivity("wifi reset to AP mode")
	})
}
