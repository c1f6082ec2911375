package receiver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/infra/redis"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/webhook"
	goredis "github.com/redis/go-redis/v9"
)

func newRedisGuard(t *testing.T) *redis.RedisGuard {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	guard, err := redis.NewRedisGuard(rdb, time.Hour)
	if err != nil {
		t.Fatalf("NewRedisGuard() error = %v", err)
	}
	return guard
}

func newTestServer(t *testing.T, effect SideEffect) *httptest.Server {
	t.Helper()

	rcv, err := NewReceiver(newRedisGuard(t), effect, nil)
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}
	metrics := observability.NewMetrics()
	rcv.SetMetrics(metrics)

	server := httptest.NewServer(NewRouter(rcv, metrics, nil))
	t.Cleanup(server.Close)
	return server
}

func postSink(t *testing.T, url string, key string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url+"/sink", strings.NewReader(`{"title":"t","body":"b","releaseAt":"2025-01-01T00:00:00.000Z"}`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Idempotency-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /sink error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestRouterSink(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)

	status, body := postSink(t, server.URL, "")
	if status != http.StatusBadRequest {
		t.Fatalf("missing key status = %d, want 400", status)
	}
	if body["error"] != "missing X-Idempotency-Key" {
		t.Fatalf("missing key body = %v", body)
	}

	status, body = postSink(t, server.URL, "k1")
	if status != http.StatusOK || body["ok"] != true || body["duplicate"] != nil {
		t.Fatalf("first delivery = %d %v", status, body)
	}

	status, body = postSink(t, server.URL, "k1")
	if status != http.StatusOK || body["ok"] != true || body["duplicate"] != true {
		t.Fatalf("duplicate delivery = %d %v", status, body)
	}
}

func TestRouterSinkForcedFailure(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, FailingSideEffect())

	status, body := postSink(t, server.URL, "k1")
	if status != http.StatusInternalServerError || body["ok"] != false || body["forced"] != true {
		t.Fatalf("forced failure = %d %v", status, body)
	}

	// The reservation survives the failure.
	status, body = postSink(t, server.URL, "k1")
	if status != http.StatusOK || body["duplicate"] != true {
		t.Fatalf("retry after failure = %d %v", status, body)
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}

	postSink(t, server.URL, "k-metrics")

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	raw := new(strings.Builder)
	if _, err := io.Copy(raw, resp.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(raw.String(), `notedrop_receiver_requests_total{outcome="processed"} 1`) {
		t.Fatal("receiver counter missing from /metrics output")
	}
}

func TestRouterWithWebhookClient(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	client := webhook.NewClient(time.Second)

	releaseAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	note := domain.Note{ID: "n1", Title: "t", Body: "b", ReleaseAt: releaseAt}
	req := webhook.Request{
		URL:            server.URL + "/sink",
		NoteID:         note.ID,
		IdempotencyKey: domain.IdempotencyKey(note.ID, note.ReleaseAt),
		Payload:        note.Payload(),
	}

	bodies := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := client.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("Send() #%d error = %v", i+1, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Send() #%d status = %d", i+1, resp.StatusCode)
		}
		bodies = append(bodies, resp.Body)
	}

	if strings.Contains(bodies[0], "duplicate") {
		t.Fatalf("first response = %s, want processed", bodies[0])
	}
	if !strings.Contains(bodies[1], `"duplicate":true`) {
		t.Fatalf("second response = %s, want duplicate", bodies[1])
	}
}
