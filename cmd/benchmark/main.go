package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/ledgerops/internal/models"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	seedFile    string
)

var (
	totalRequests uint64
	created       uint64
	replayed      uint64
	conflicts     uint64 // 409: key reused with another body
	rejected      uint64 // 422: insufficient wallet balance
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | retry")
	flag.StringVar(&seedFile, "seed", "seed.json", "Seeder output with user ids")
}

type seed struct {
	Users []string `json:"users"`
}

func main() {
	flag.Parse()

	raw, err := os.ReadFile(seedFile)
	if err != nil {
		log.Fatalf("Read seed: %v", err)
	}
	var s seed
	if err := json.Unmarshal(raw, &s); err != nil || len(s.Users) == 0 {
		log.Fatalf("Seed file has no users: %v", err)
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(start, s.Users)
		}()
	}
	wg.Wait()
	printResults(time.Since(start))
}

// worker creates transfers. Under the retry workload every request is sent
// twice with the same key, as a client would after a timeout.
func worker(start time.Time, users []string) {
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		req := models.CreateTransferRequest{
			UserID:      users[rand.IntN(len(users))],
			Amount:      100,
			BankCode:    "058",
			BankAccount: "0123456789",
			Narration:   "benchmark",
		}
		body, _ := json.Marshal(req)
		key := uuid.NewString()

		send(client, key, body)
		if workload == "retry" {
			send(client, key, body)
		}
	}
}

func send(client *http.Client, key string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, targetURL+"/api/v1/transfers", bytes.NewReader(body))
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	switch {
	case resp.StatusCode == http.StatusCreated && resp.Header.Get("Idempotent-Replayed") == "true":
		atomic.AddUint64(&replayed, 1)
	case resp.StatusCode == http.StatusCreated:
		atomic.AddUint64(&created, 1)
	case resp.StatusCode == http.StatusConflict:
		atomic.AddUint64(&conflicts, 1)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		atomic.AddUint64(&rejected, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]any{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   float64(total) / d.Seconds(),
		"success_created":  atomic.LoadUint64(&created),
		"success_replay":   atomic.LoadUint64(&replayed),
		"key_conflicts":    atomic.LoadUint64(&conflicts),
		"rejected_balance": atomic.LoadUint64(&rejected),
		"errors":           atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
