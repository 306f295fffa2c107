// simulate hammers the booking API with concurrent workers so slot
// contention can be observed under load: for any one slot at most one
// booking must succeed, the rest must come back as conflicts.
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
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/teleconsult/internal/config"
	"github.com/careloop/teleconsult/internal/db"
	"github.com/careloop/teleconsult/internal/identity"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	HoldRatio   float64
	PostgresDSN string
	JWTSecret   string
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
	Tokens   map[uuid.UUID]string
	Slots    []string
}

type OpMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *OpMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *OpMetrics) Stats() (avg, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[min(len(sorted)*95/100, len(sorted)-1)]
	return avg, p50, p95
}

type Simulator struct {
	cfg      SimConfig
	pool     *DataPool
	client   *http.Client
	bookings OpMetrics
	holds    OpMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

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
	log.Printf("loaded: %d doctors, %d patients", len(dataPool.Doctors), len(dataPool.Patients))

	sim := &Simulator{
		cfg:    cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:     getIntEnv("SIM_WORKERS", 10),
		HoldRatio:   getFloatEnv("SIM_HOLD_RATIO", 0.3),
		PostgresDSN: baseCfg.PostgresDSN,
		JWTSecret:   baseCfg.JWTSecret,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{
		Tokens: make(map[uuid.UUID]string),
		Slots:  []string{"09:00", "09:30", "10:00", "10:30", "11:00", "14:00", "14:30", "15:00"},
	}

	load := func(role string, dst *[]uuid.UUID, limit int) error {
		rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = $1 LIMIT $2`, role, limit)
		if err != nil {
			return fmt.Errorf("load %ss: %w", role, err)
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			*dst = append(*dst, id)

			exp := jwt.NewNumericDate(time.Now().Add(2 * time.Hour))
			token, err := identity.Issue(cfg.JWTSecret, id, role, *exp)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			dp.Tokens[id] = token
		}
		return rows.Err()
	}

	if err := load("doctor", &dp.Doctors, 50); err != nil {
		return nil, err
	}
	if err := load("patient", &dp.Patients, 2000); err != nil {
		return nil, err
	}
	if len(dp.Doctors) == 0 || len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no seeded users found, run cmd/seed first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	log.Printf("running: duration=%s workers=%d hold_ratio=%.2f", s.cfg.Duration, s.cfg.Workers, s.cfg.HoldRatio)

	deadline := time.Now().Add(s.cfg.Duration)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if rand.Float64() < s.cfg.HoldRatio {
					s.doHold()
				} else {
					s.doBooking()
				}
			}
		}()
	}
	wg.Wait()
}

// A narrow slot pool maximizes contention: many workers race for the same
// (doctor, day, time) tuples.
func (s *Simulator) pickSlot() (doctor uuid.UUID, patient uuid.UUID, date string, slot string) {
	doctor = s.pool.Doctors[rand.Intn(min(len(s.pool.Doctors), 5))]
	patient = s.pool.Patients[rand.Intn(len(s.pool.Patients))]
	date = time.Now().UTC().AddDate(0, 0, 1+rand.Intn(3)).Format("2006-01-02")
	slot = s.pool.Slots[rand.Intn(len(s.pool.Slots))]
	return
}

func (s *Simulator) doBooking() {
	doctor, patient, date, slot := s.pickSlot()

	body, _ := json.Marshal(map[string]any{
		"doctor_id":    doctor.String(),
		"date":         date,
		"time":         slot,
		"service_type": "video",
		"fee":          500,
		"patient_details": map[string]any{
			"name":    "Load Test",
			"problem": "simulated",
		},
	})
	s.post("/appointments", patient, body, &s.bookings)
}

func (s *Simulator) doHold() {
	doctor, patient, date, slot := s.pickSlot()

	body, _ := json.Marshal(map[string]any{
		"doctor_id": doctor.String(),
		"date":      date,
		"time":      slot,
	})
	s.post("/appointments/hold", patient, body, &s.holds)
}

func (s *Simulator) post(path string, patient uuid.UUID, body []byte, metrics *OpMetrics) {
	req, err := http.NewRequest(http.MethodPost, s.cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		metrics.Record(0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pool.Tokens[patient])

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		metrics.Record(latency, 0)
		return
	}
	defer resp.Body.Close()
	metrics.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	report := func(name string, m *OpMetrics) {
		avg, p50, p95 := m.Stats()
		log.Printf("%-10s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
			name, m.Total, m.Success, m.Conflict, m.Error, avg, p50, p95)
	}
	report("bookings", &s.bookings)
	report("holds", &s.holds)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
