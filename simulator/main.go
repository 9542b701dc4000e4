package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"
)

// The simulator drives the ingestion endpoint with synthetic load: mostly
// single records, occasionally a batch.
func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://api:8000/api/data/ingest"
	}

	ratePerSec := 1
	if v := os.Getenv("RATE_PER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ratePerSec = n
		}
	}

	concurrency := 1
	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}

	for i := 0; i < concurrency; i++ {
		go submitLoop(apiURL, ratePerSec/concurrency)
	}

	select {} // block forever
}

func submitLoop(apiURL string, rps int) {
	interval := time.Second
	if rps > 0 {
		interval = time.Second / time.Duration(rps)
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	for {
		<-ticker.C

		var body []byte
		kind := "single"
		if rand.Intn(10) == 0 {
			kind = "batch"
			items := make([]map[string]any, 2+rand.Intn(4))
			for i := range items {
				items[i] = randomItem()
			}
			body, _ = json.Marshal(map[string]any{"batch": items})
		} else {
			body, _ = json.Marshal(randomItem())
		}

		resp, err := http.Post(apiURL, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("failed to submit %s: %v", kind, err)
			continue
		}
		log.Printf("submitted %s, status: %d", kind, resp.StatusCode)
		resp.Body.Close()
	}
}

func randomItem() map[string]any {
	return map[string]any{
		"source": fmt.Sprintf("sensor-%d", rand.Intn(20)),
		"value":  rand.Float64() * 100,
		"payload": map[string]any{
			"region": []string{"us-east", "us-west", "eu-central"}[rand.Intn(3)],
			"seq":    rand.Intn(100000),
		},
	}
}
