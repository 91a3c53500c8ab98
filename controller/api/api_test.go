package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/squaredose/doser/controller"
	"github.com/squaredose/doser/controller/modules/doselog"
	"github.com/squaredose/doser/controller/modules/dosinghead"
	"github.com/squaredose/doser/controller/modules/motor"
	"github.com/squaredose/doser/controller/modules/reservoir"
	"github.com/squaredose/doser/controller/modules/schedule"
	"github.com/squaredose/doser/controller/modules/wifi"
)

// syncDetacher runs SpawnDetached's fn inline so handler tests don't
// need to coordinate with a real background goroutine.
type syncDetacher struct{}

func (syncDetacher) SpawnDetached(label string, fn func()) { fn() }

func newTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	store := controller.NewMemStore()
	clock := controller.NewFakeClock(1735689600)
	act := motor.NewSimActuator()

	var heads [HeadCount]*dosinghead.Head
	for i := range heads {
		h, err := dosinghead.New(i, store, clock, act)
		if err != nil {
			t.Fatalf("dosinghead.New(%d): %v", i, err)
		}
		heads[i] = h
	}

	schedStore, err := schedule.NewStore(store)
	if err != nil {
		t.Fatalf("schedule.NewStore: %v", err)
	}
	var dispensers [4]schedule.Dispenser
	for i, h := range heads {
		dispensers[i] = h
	}
	schedMgr, err := schedule.NewManager(schedStore, dispensers, clock, slog.Default())
	if err != nil {
		t.Fatalf("schedule.NewManager: %v", err)
	}

	logStore, err := doselog.NewStore(store)
	if err != nil {
		t.Fatalf("doselog.NewStore: %v", err)
	}
	logMgr := doselog.NewManager(logStore, clock)

	wifiSup, err := wifi.New(store, clock, wifi.NewSimRadio(), [6]byte{1, 2, 3, 4, 5, 6}, func(string, ...any) {})
	if err != nil {
		t.Fatalf("wifi.New: %v", err)
	}

	reservoirMgr, err := reservoir.NewManager(store)
	if err != nil {
		t.Fatalf("reservoir.NewManager: %v", err)
	}

	srv := NewServer(heads, act, schedMgr, logMgr, wifiSup, reservoirMgr, clock, slog.Default(), syncDetacher{})
	r := mux.NewRouter()
	srv.LoadAPI(r)
	return srv, r
}

func doRequest(r *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "GET", "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Heads) != HeadCount {
		t.Fatalf("expected %d heads, got %d", HeadCount, len(resp.Heads))
	}
	if !resp.WallSynced {
		t.Fatal("expected synced wall clock with fake clock seeded past 2020")
	}
}

func TestPostDoseLogsAdhocEntry(t *testing.T) {
	srv, r := newTestServer(t)
	rec := doRequest(r, "POST", "/api/dose", `{"head":0,"volumeMl":2.0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	count, err := srv.logs.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one hourly log entry after dose, got %d", count)
	}
}

func TestPostDoseRejectsOutOfRangeHead(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "POST", "/api/dose", `{"head":9,"volumeMl":2.0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostDoseRejectsOutOfRangeVolume(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "POST", "/api/dose", `{"head":0,"volumeMl":0.01}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostCalibrateRejectsMalformedInputWith400(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "POST", "/api/calibrate", `{"head":0,"actualVolumeMl":4.0,"runtimeMillis":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-positive runtime, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostCalibrateRejectsOutOfRangeRateWith500(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "POST", "/api/calibrate", `{"head":0,"actualVolumeMl":1000,"runtimeMillis":1000}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a rejected computed rate, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEmergencyStop(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "POST", "/api/emergency-stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScheduleCRUD(t *testing.T) {
	_, r := newTestServer(t)

	rec := doRequest(r, "POST", "/api/schedules/1", `{"enabled":true,"dosesPerDay":4,"dailyTargetVolumeMl":40}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on create, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(r, "GET", "/api/schedules/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec.Code)
	}
	var sched schedule.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &sched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sched.PerDoseVolumeML != 10 {
		t.Fatalf("expected derived per-dose volume 10, got %v", sched.PerDoseVolumeML)
	}

	rec = doRequest(r, "DELETE", "/api/schedules/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}

	rec = doRequest(r, "GET", "/api/schedules/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestWiFiStatus(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "GET", "/api/wifi/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp wifiStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "ap" {
		t.Fatalf("expected default AP mode, got %q", resp.Mode)
	}
}

func TestHealthz(t *testing.T) {
	_, r := newTestServer(t)
	rec := doRequest(r, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
