package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	skafka "github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	checkUp       = "up"
	checkDown     = "down"
	checkDisabled = "disabled"

	defaultServiceName = "Dance Portal API"
	defaultVersion     = "1.0.0"
	probeBudget        = 1500 * time.Millisecond
)

// HealthDeps are the collaborators probed by the readiness report. Nil or
// empty entries are reported as disabled.
type HealthDeps struct {
	DB               *gorm.DB
	DBDriver         string
	Redis            *redis.Client
	KafkaBrokers     []string
	Posting          string
	StoreDriver      string
	ProcessorEnabled bool
	ArchiveBucket    string
	// DialKafka overrides the broker probe in tests.
	DialKafka func(ctx context.Context, broker string) error
}

// HealthService builds liveness and readiness reports.
type HealthService struct {
	serviceName string
	version     string
	environment string
	startedAt   time.Time
	budget      time.Duration
	deps        HealthDeps
}

// HealthReport is the body of GET /health/ready.
type HealthReport struct {
	Status      string        `json:"status"`
	Service     string        `json:"service"`
	Version     string        `json:"version"`
	Environment string        `json:"environment"`
	Time        time.Time     `json:"time"`
	Uptime      string        `json:"uptime"`
	Checks      []CheckResult `json:"checks"`
	Billing     BillingInfo   `json:"billing"`
	Runtime     RuntimeInfo   `json:"runtime"`
}

// CheckResult is the outcome of one probe. Impact is the overall status a
// failing probe pushes the report to.
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	Impact    string                 `json:"impact,omitempty"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// BillingInfo shows the settings that change how money is booked.
type BillingInfo struct {
	LedgerPosting    string `json:"ledger_posting"`
	StoreDriver      string `json:"store_driver"`
	ProcessorEnabled bool   `json:"processor_enabled"`
	EventsToKafka    bool   `json:"events_to_kafka"`
	ArchivesEnabled  bool   `json:"archives_enabled"`
}

type RuntimeInfo struct {
	GoVersion      string `json:"go_version"`
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	DBOpenConns    int    `json:"db_open_connections,omitempty"`
	DBInUse        int    `json:"db_in_use,omitempty"`
}

func NewHealthService(serviceName, version, environment string, deps HealthDeps) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	if strings.TrimSpace(environment) == "" {
		environment = "unknown"
	}
	if deps.DialKafka == nil {
		deps.DialKafka = dialKafka
	}
	return &HealthService{
		serviceName: serviceName,
		version:     version,
		environment: environment,
		startedAt:   time.Now(),
		budget:      probeBudget,
		deps:        deps,
	}
}

// GetHealthReport runs every probe within one shared time budget.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	report := HealthReport{
		Status:      overallStatusOK,
		Service:     s.serviceName,
		Version:     s.version,
		Environment: s.environment,
		Time:        time.Now().UTC(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Billing: BillingInfo{
			LedgerPosting:    s.deps.Posting,
			StoreDriver:      s.deps.StoreDriver,
			ProcessorEnabled: s.deps.ProcessorEnabled,
			EventsToKafka:    len(s.deps.KafkaBrokers) > 0,
			ArchivesEnabled:  s.deps.ArchiveBucket != "",
		},
		Runtime: s.runtimeInfo(),
	}

	probes := []func(context.Context) CheckResult{s.probeDatabase, s.probeRedis, s.probeKafka}
	for _, probe := range probes {
		res := probe(ctx)
		if res.Status == checkDown {
			report.Status = worse(report.Status, res.Impact)
		}
		report.Checks = append(report.Checks, res)
	}
	return report
}

// HTTPStatusForOverall answers 503 only when the store is unusable.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return 503
	}
	return 200
}

func (s *HealthService) probeDatabase(ctx context.Context) CheckResult {
	name := s.deps.DBDriver
	if name == "" {
		name = "database"
	}
	res := CheckResult{Name: name, Impact: overallStatusCritical}

	if s.deps.DB == nil {
		if s.deps.StoreDriver == "memory" {
			res.Status = checkDisabled
			res.Impact = ""
			return res
		}
		res.Status = checkDown
		res.Error = "database connection not initialised"
		return res
	}

	sqlDB, err := s.deps.DB.DB()
	if err != nil {
		res.Status = checkDown
		res.Error = fmt.Sprintf("sql handle: %v", err)
		return res
	}
	start := time.Now()
	err = sqlDB.PingContext(ctx)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = checkDown
		res.Error = err.Error()
		return res
	}
	res.Status = checkUp
	res.Details = map[string]interface{}{"max_open_connections": sqlDB.Stats().MaxOpenConnections}
	return res
}

// probeRedis degrades only: locks and the log queue fall back to local paths.
func (s *HealthService) probeRedis(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Impact: overallStatusDegraded}
	if s.deps.Redis == nil {
		res.Status = checkDisabled
		res.Impact = ""
		return res
	}

	start := time.Now()
	err := s.deps.Redis.Ping(ctx).Err()
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = checkDown
		res.Error = err.Error()
		return res
	}
	res.Status = checkUp
	res.Details = map[string]interface{}{"address": s.deps.Redis.Options().Addr}
	return res
}

// probeKafka is up when any configured broker accepts a connection.
func (s *HealthService) probeKafka(ctx context.Context) CheckResult {
	res := CheckResult{Name: "kafka", Impact: overallStatusDegraded}
	if len(s.deps.KafkaBrokers) == 0 {
		res.Status = checkDisabled
		res.Impact = ""
		return res
	}

	start := time.Now()
	var err error
	for _, broker := range s.deps.KafkaBrokers {
		if err = s.deps.DialKafka(ctx, broker); err == nil {
			break
		}
	}
	res.LatencyMs = time.Since(start).Milliseconds()
	res.Details = map[string]interface{}{"brokers": s.deps.KafkaBrokers}
	if err != nil {
		res.Status = checkDown
		res.Error = err.Error()
		return res
	}
	res.Status = checkUp
	return res
}

func dialKafka(ctx context.Context, broker string) error {
	conn, err := skafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (s *HealthService) runtimeInfo() RuntimeInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	info := RuntimeInfo{
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
	}
	if s.deps.DB != nil {
		if sqlDB, err := s.deps.DB.DB(); err == nil {
			stats := sqlDB.Stats()
			info.DBOpenConns = stats.OpenConnections
			info.DBInUse = stats.InUse
		}
	}
	return info
}

var statusRank = map[string]int{
	overallStatusOK:       0,
	overallStatusDegraded: 1,
	overallStatusCritical: 2,
}

func worse(current, candidate string) string {
	if statusRank[candidate] > statusRank[current] {
		return candidate
	}
	return current
}
