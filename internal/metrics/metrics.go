package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	FeedsFetched          int64
	FeedsFailed           int64
	EntriesSeen           int64
	ArticlesInserted      int64
	DuplicatesSkipped     int64
	EntriesSkipped        int64
	EntriesFailed         int64
	ArticlesRecategorized int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration
	RunCount           int64

	// Status
	LastRunID     string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// RunResult is what one ingestion run reports.
type RunResult struct {
	RunID        string
	FeedsFetched int
	FeedsFailed  int
	EntriesSeen  int
	Inserted     int
	Duplicates   int
	Skipped      int
	Failed       int
	Duration     time.Duration
}

func (m *Metrics) RecordRun(r RunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FeedsFetched += int64(r.FeedsFetched)
	m.FeedsFailed += int64(r.FeedsFailed)
	m.EntriesSeen += int64(r.EntriesSeen)
	m.ArticlesInserted += int64(r.Inserted)
	m.DuplicatesSkipped += int64(r.Duplicates)
	m.EntriesSkipped += int64(r.Skipped)
	m.EntriesFailed += int64(r.Failed)

	m.LastRunDuration = r.Duration
	m.TotalRunDuration += r.Duration
	m.RunCount++
	m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunCount)

	m.LastRunID = r.RunID
	m.LastRunTime = time.Now()
	// A run where every source failed leaves the service unhealthy.
	m.IsHealthy = r.FeedsFetched > 0 || r.FeedsFailed == 0
}

func (m *Metrics) AddRecategorized(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesRecategorized += int64(n)
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"feeds_fetched":           m.FeedsFetched,
		"feeds_failed":            m.FeedsFailed,
		"entries_seen":            m.EntriesSeen,
		"articles_inserted":       m.ArticlesInserted,
		"duplicates_skipped":      m.DuplicatesSkipped,
		"entries_skipped":         m.EntriesSkipped,
		"entries_failed":          m.EntriesFailed,
		"articles_recategorized":  m.ArticlesRecategorized,
		"run_count":               m.RunCount,
		"last_run_id":             m.LastRunID,
		"last_run_duration_ms":    m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms": m.AverageRunDuration.Milliseconds(),
		"last_run_time":           formatTime(m.LastRunTime),
		"last_error_time":         formatTime(m.LastErrorTime),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
