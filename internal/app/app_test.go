package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"carpool/internal/config"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"github.com/alicebob/miniredis/v2"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("JWT_SECRET", "app-secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("EVENTS_DRIVER", "memory")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a, err := New(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.Start(ctx, false); err != nil {
		t.Fatalf("start app: %v", err)
	}
	return a
}

func TestServesRidesWithMemoryStore(t *testing.T) {
	a := newApp(t, loadConfig(t))

	token, err := utils.GenerateToken("owner-1", "rider", "owner@example.com", "app-secret", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"origin":         "Oakland",
		"destination":    "Berkeley",
		"departure_time": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"total_seats":    3,
		"price_per_seat": 800,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rides", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rides?sort=price_low", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte("{}"))))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected unconfigured provider to be 404, got %d", w.Code)
	}
}

func TestHealthReportsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t)
	cfg.Redis.Enabled = true
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port

	a := newApp(t, cfg)

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d: %s", w.Code, w.Body.String())
	}
	var health struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Checks["redis"] != "ok" || health.Checks["store"] != "ok" {
		t.Fatalf("unexpected checks %v", health.Checks)
	}

	mr.SetError("LOADING server is starting")
	w = httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unhealthy after redis stopped, got %d", w.Code)
	}
}

func TestRedisEventsRequireRedis(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Events.Driver = config.EventsDriverRedis

	if _, err := New(context.Background(), cfg, logger.Discard()); err == nil {
		t.Fatal("expected error when redis events run without redis")
	}
}

func TestRoomAuthorizerRejectsBadID(t *testing.T) {
	a := newApp(t, loadConfig(t))
	authorize := rideRoomAuthorizer(a.Participations)
	if err := authorize(context.Background(), "u1", "nope"); err == nil {
		t.Fatal("expected malformed ride id to be rejected")
	}
	if err := authorize(context.Background(), "u1", "64b7f0c2a1b2c3d4e5f60718"); err == nil {
		t.Fatal("expected unknown ride to be rejected")
	}
}
