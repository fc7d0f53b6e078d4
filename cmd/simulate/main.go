package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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

	"github.com/covermed/hospital-coverage-scheduling/internal/config"
	"github.com/covermed/hospital-coverage-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	ReserveRatio  float64
	AssignRatio   float64
	RespondRatio  float64
	ReadRatio     float64
	HospitalLimit int
	SlotLimit     int
	PatientLimit  int
	PostgresDSN   string
}

type ParentSlot struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type Reservation struct {
	SubSlotID  uuid.UUID
	DoctorID   uuid.UUID
	HospitalID uuid.UUID
}

type Assignment struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	HospitalID uuid.UUID
}

type DataPool struct {
	Hospitals []uuid.UUID
	Patients  []uuid.UUID
	Parents   []ParentSlot

	mu           sync.RWMutex
	reservations []Reservation
	assignments  []Assignment
}

func (dp *DataPool) AddReservation(r Reservation) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.reservations = append(dp.reservations, r)
}

func (dp *DataPool) RandomReservation(rng *rand.Rand) (Reservation, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.reservations) == 0 {
		return Reservation{}, false
	}
	return dp.reservations[rng.Intn(len(dp.reservations))], true
}

func (dp *DataPool) AddAssignment(a Assignment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.assignments = append(dp.assignments, a)
}

func (dp *DataPool) RandomAssignment(rng *rand.Rand) (Assignment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.assignments) == 0 {
		return Assignment{}, false
	}
	return dp.assignments[rng.Intn(len(dp.assignments))], true
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
	Reserve      OperationMetrics
	Assign       OperationMetrics
	Accept       OperationMetrics
	Decline      OperationMetrics
	ReadByID     OperationMetrics
	Availability OperationMetrics
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

	log.Printf("config: duration=%s workers=%d reserve=%.2f assign=%.2f respond=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.ReserveRatio, cfg.AssignRatio, cfg.RespondRatio, cfg.ReadRatio)

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

	log.Printf("loaded: %d hospitals, %d patients, %d parent slots",
		len(dataPool.Hospitals), len(dataPool.Patients), len(dataPool.Parents))

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
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		ReserveRatio:  getFloat("SIM_RESERVE_RATIO", 0.35),
		AssignRatio:   getFloat("SIM_ASSIGN_RATIO", 0.25),
		RespondRatio:  getFloat("SIM_RESPOND_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.2),
		HospitalLimit: getInt("SIM_HOSPITAL_LIMIT", 25),
		SlotLimit:     getInt("SIM_SLOT_LIMIT", 500),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.ReserveRatio + cfg.AssignRatio + cfg.RespondRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.AssignRatio /= total
		cfg.RespondRatio /= total
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

	rows, err := pool.Query(ctx, `SELECT id FROM hospitals LIMIT $1`, cfg.HospitalLimit)
	if err != nil {
		return nil, fmt.Errorf("load hospitals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Hospitals = append(dataPool.Hospitals, id)
	}

	rows, err = pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, doctor_id FROM availability_slots
		WHERE parent_slot_id IS NULL AND status = 'available' AND slot_date >= current_date
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load parent slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ParentSlot
		if err := rows.Scan(&p.ID, &p.DoctorID); err != nil {
			return nil, err
		}
		dataPool.Parents = append(dataPool.Parents, p)
	}

	if len(dataPool.Hospitals) == 0 {
		return nil, fmt.Errorf("no hospitals loaded")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Parents) == 0 {
		return nil, fmt.Errorf("no parent slots loaded")
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
			case r < s.config.ReserveRatio:
				s.doReserve(ctx, rng)
			case r < s.config.ReserveRatio+s.config.AssignRatio:
				s.doAssign(ctx, rng)
			case r < s.config.ReserveRatio+s.config.AssignRatio+s.config.RespondRatio:
				// Doctors mostly accept, occasionally decline.
				if rng.Float64() < 0.8 {
					s.doAccept(ctx, rng)
				} else {
					s.doDecline(ctx, rng)
				}
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doAvailability(ctx, rng)
				}
			}
		}
	}
}

// doReserve carves a random hour out of a random coverage window. Workers
// deliberately target the same few windows so overlapping reservations race.
func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	parent := s.pool.Parents[rng.Intn(len(s.pool.Parents))]
	hospitalID := s.pool.Hospitals[rng.Intn(len(s.pool.Hospitals))]

	// Hour-long sub-slot starting on a half hour between 09:00 and 16:00.
	startMin := 9*60 + 30*rng.Intn(15)
	startHH, startMM := startMin/60, startMin%60
	endMin := startMin + 60
	endHH, endMM := endMin/60, endMin%60

	reqBody := map[string]string{
		"start": fmt.Sprintf("%02d:%02d", startHH, startMM),
		"end":   fmt.Sprintf("%02d:%02d", endHH, endMM),
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/slots/%s/subslots", s.config.APIBaseURL, parent.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	setActor(req, hospitalID, "hospital")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var slotResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &slotResp) == nil && slotResp.ID != uuid.Nil {
				s.pool.AddReservation(Reservation{
					SubSlotID:  slotResp.ID,
					DoctorID:   parent.DoctorID,
					HospitalID: hospitalID,
				})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Reserve.Record(latency, success, conflict)
}

func (s *Simulator) doAssign(ctx context.Context, rng *rand.Rand) {
	res, ok := s.pool.RandomReservation(rng)
	if !ok {
		return
	}
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	priorities := []string{"routine", "routine", "urgent", "emergency"}
	reqBody := map[string]string{
		"doctor_id":        res.DoctorID.String(),
		"patient_id":       patientID.String(),
		"sub_slot_id":      res.SubSlotID.String(),
		"priority":         priorities[rng.Intn(len(priorities))],
		"consultation_fee": fmt.Sprintf("%d.00", 200+50*rng.Intn(20)),
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/assignments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	setActor(req, res.HospitalID, "hospital")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var assignResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &assignResp) == nil && assignResp.ID != uuid.Nil {
				s.pool.AddAssignment(Assignment{
					ID:         assignResp.ID,
					DoctorID:   res.DoctorID,
					HospitalID: res.HospitalID,
				})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Assign.Record(latency, success, conflict)
}

func (s *Simulator) doAccept(ctx context.Context, rng *rand.Rand) {
	s.respond(ctx, rng, "accept", &s.metrics.Accept)
}

func (s *Simulator) doDecline(ctx context.Context, rng *rand.Rand) {
	s.respond(ctx, rng, "decline", &s.metrics.Decline)
}

func (s *Simulator) respond(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	a, ok := s.pool.RandomAssignment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/assignments/%s/%s", s.config.APIBaseURL, a.ID, action), nil)
	setActor(req, a.DoctorID, "doctor")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	a, ok := s.pool.RandomAssignment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/assignments/%s", s.config.APIBaseURL, a.ID), nil)
	setActor(req, a.HospitalID, "hospital")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	parent := s.pool.Parents[rng.Intn(len(s.pool.Parents))]
	hospitalID := s.pool.Hospitals[rng.Intn(len(s.pool.Hospitals))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/slots/%s/availability", s.config.APIBaseURL, parent.ID), nil)
	setActor(req, hospitalID, "hospital")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Availability.Record(latency, success, false)
}

func setActor(req *http.Request, id uuid.UUID, role string) {
	req.Header.Set("X-Actor-Id", id.String())
	req.Header.Set("X-Actor-Role", role)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Reserve sub-slot", &s.metrics.Reserve)
	printOperationReport("Create assignment", &s.metrics.Assign)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Decline", &s.metrics.Decline)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Availability", &s.metrics.Availability)
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
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
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
