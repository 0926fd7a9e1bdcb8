package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/online-consultation-service/internal/config"
	"github.com/clinicdesk/online-consultation-service/internal/db"
)

// The simulator races lifecycle transitions against a running API server.
// Several workers target the same scheduled consultations, so concurrent
// start() calls on one session are the common case rather than the rare
// one: exactly one should succeed and the rest should see a 422.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	StartRatio  float64
	EndRatio    float64
	CancelRatio float64
	AppendRatio float64
	ReadRatio   float64
	SessionCap  int
	PostgresDSN string
}

type SessionRef struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

type DataPool struct {
	mu        sync.RWMutex
	Scheduled []SessionRef
	active    []SessionRef
}

func (dp *DataPool) RandomScheduled(rng *rand.Rand) (SessionRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.Scheduled) == 0 {
		return SessionRef{}, false
	}
	return dp.Scheduled[rng.Intn(len(dp.Scheduled))], true
}

func (dp *DataPool) AddActive(ref SessionRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.active = append(dp.active, ref)
}

func (dp *DataPool) RandomActive(rng *rand.Rand) (SessionRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.active) == 0 {
		return SessionRef{}, false
	}
	return dp.active[rng.Intn(len(dp.active))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Start    OperationMetrics
	End      OperationMetrics
	Cancel   OperationMetrics
	Vitals   OperationMetrics
	ReadByID OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d start=%.2f end=%.2f cancel=%.2f append=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.StartRatio, cfg.EndRatio, cfg.CancelRatio, cfg.AppendRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d scheduled consultations", len(dataPool.Scheduled))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		StartRatio:  getFloat("SIM_START_RATIO", 0.35),
		EndRatio:    getFloat("SIM_END_RATIO", 0.15),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		AppendRatio: getFloat("SIM_APPEND_RATIO", 0.15),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.25),
		SessionCap:  getInt("SIM_SESSION_CAP", 2000),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.StartRatio + cfg.EndRatio + cfg.CancelRatio + cfg.AppendRatio + cfg.ReadRatio
	if total > 0 {
		cfg.StartRatio /= total
		cfg.EndRatio /= total
		cfg.CancelRatio /= total
		cfg.AppendRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, clinic_id FROM online_consultations
		WHERE status = 'scheduled'
		LIMIT $1
	`, cfg.SessionCap)
	if err != nil {
		return nil, fmt.Errorf("load scheduled consultations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref SessionRef
		if err := rows.Scan(&ref.ID, &ref.ClinicID); err != nil {
			return nil, err
		}
		dataPool.Scheduled = append(dataPool.Scheduled, ref)
	}

	if len(dataPool.Scheduled) == 0 {
		return nil, fmt.Errorf("no scheduled consultations loaded (run cmd/seed first)")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.StartRatio:
				s.doStart(ctx, rng)
			case r < s.config.StartRatio+s.config.EndRatio:
				s.doEnd(ctx, rng)
			case r < s.config.StartRatio+s.config.EndRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.StartRatio+s.config.EndRatio+s.config.CancelRatio+s.config.AppendRatio:
				s.doVitals(ctx, rng)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) consultationURL(ref SessionRef, suffix string) string {
	return fmt.Sprintf("%s/api/v1/clinics/%s/consultations/%s%s",
		s.config.APIBaseURL, ref.ClinicID, ref.ID, suffix)
}

// doPost runs one POST and classifies the outcome: 2xx success, 422 is the
// expected wrong-state branch (counted as conflict), anything else an error.
func (s *Simulator) doPost(ctx context.Context, om *OperationMetrics, url string, body any) {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST", url, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			success = true
		} else if resp.StatusCode == http.StatusUnprocessableEntity {
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) doStart(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomScheduled(rng)
	if !ok {
		return
	}

	url := s.consultationURL(ref, "/start")

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "POST", url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
			s.pool.AddActive(ref)
		} else if resp.StatusCode == http.StatusUnprocessableEntity {
			conflict = true
		}
	}

	s.metrics.Start.Record(latency, success, conflict)
}

func (s *Simulator) doEnd(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomActive(rng)
	if !ok {
		return
	}
	s.doPost(ctx, &s.metrics.End, s.consultationURL(ref, "/end"), map[string]string{
		"notes": "simulated consultation notes",
	})
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomScheduled(rng)
	if !ok {
		return
	}
	s.doPost(ctx, &s.metrics.Cancel, s.consultationURL(ref, "/cancel"), map[string]string{
		"reason": "simulated cancellation",
	})
}

func (s *Simulator) doVitals(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomActive(rng)
	if !ok {
		return
	}
	s.doPost(ctx, &s.metrics.Vitals, s.consultationURL(ref, "/vital_signs"), map[string]any{
		"temperature": 36.0 + rng.Float64()*2,
		"heart_rate":  60 + rng.Intn(60),
	})
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomScheduled(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET", s.consultationURL(ref, ""), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Start", &s.metrics.Start)
	printOperationReport("End", &s.metrics.End)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Vital Signs", &s.metrics.Vitals)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Wrong-state rejections: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
