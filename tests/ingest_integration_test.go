package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

// End-to-end smoke test against a running stack (api + worker + postgres +
// redis + rabbitmq). Skipped unless API_URL points at a live deployment.

// waitUntil retries fn until it returns nil or timeout occurs.
func waitUntil(timeout time.Duration, fn func() error) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := fn(); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fn() // return last error
		}
		time.Sleep(time.Second)
	}
}

func healthCheck(base string) error {
	resp, err := http.Get(base + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func TestIngestEndToEnd(t *testing.T) {
	base := os.Getenv("API_URL")
	if base == "" {
		t.Skip("API_URL not set; skipping end-to-end test")
	}

	if err := waitUntil(60*time.Second, func() error { return healthCheck(base) }); err != nil {
		t.Fatalf("API never became healthy: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"source":  "integration-test",
		"value":   42.0,
		"payload": map[string]any{"run": time.Now().UnixNano()},
	})
	resp, err := http.Post(base+"/api/data/ingest", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	var out struct {
		Success bool `json:"success"`
		Data    struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode ingest response: %v", err)
	}
	if !out.Success || out.Data.ID == "" {
		t.Fatalf("ingest response missing id: %+v", out)
	}

	// The worker picks the job off the queue asynchronously; poll history
	// until the record shows up as processed.
	err = waitUntil(30*time.Second, func() error {
		resp, err := http.Get(base + "/api/data/history?limit=100")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var hist struct {
			Data []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
			return err
		}
		for _, rec := range hist.Data {
			if rec.ID == out.Data.ID {
				if rec.Status != "processed" {
					return fmt.Errorf("record %s has status %q", rec.ID, rec.Status)
				}
				return nil
			}
		}
		return fmt.Errorf("record %s not yet in history", out.Data.ID)
	})
	if err != nil {
		t.Fatalf("record was never processed: %v", err)
	}

	// The counters must reflect at least this record.
	resp2, err := http.Get(base + "/api/data/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	defer resp2.Body.Close()
	var stats struct {
		Data struct {
			Count int64   `json:"count"`
			Sum   float64 `json:"sum"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Data.Count < 1 || stats.Data.Sum <= 0 {
		t.Fatalf("counters not updated: %+v", stats.Data)
	}
}
