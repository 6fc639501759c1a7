// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// maxWindow bounds the rolling timing windows.
const maxWindow = 100

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for chat completions)
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64 `json:"totalInputTokens,omitempty"`
	TotalOutputTokens *int64 `json:"totalOutputTokens,omitempty"`
}

// Snapshot is the session statistics at a point in time. Times are in
// milliseconds.
type Snapshot struct {
	ContextBuilds    int64                         `json:"contextBuilds"`
	AverageBuildTime float64                       `json:"averageBuildTime"`
	MemoryQueries    int64                         `json:"memoryQueries"`
	CrossPageLinks   int64                         `json:"crossPageLinks"`
	InitializeTimes  []float64                     `json:"initializeTimes"`
	MessageTimes     []float64                     `json:"messageTimes"`
	UptimeSeconds    float64                       `json:"uptimeSeconds"`
	Operations       map[string]*OperationSnapshot `json:"operations,omitempty"`
}

// Operation names for the collector.
const (
	OpInitializePage = "initialize_page"
	OpProcessMessage = "process_message"
	OpBuildContext   = "build_context"
	OpLLMChat        = "llm_chat"
	OpDBQuery        = "db_query"
	OpCapture        = "capture"
	OpToolCall       = "tool_call"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics

	contextBuilds    int64
	averageBuildTime float64
	memoryQueries    int64
	crossPageLinks   int64
	initializeTimes  []float64
	messageTimes     []float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(d time.Duration) {
	m.Count++
	m.TotalTime += d
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).observe(duration)
}

// RecordLLMUsage records timing and token usage for a chat completion.
func (c *Collector) RecordLLMUsage(duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(OpLLMChat)
	m.observe(duration)
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
}

// RecordInitialize records a page initialization.
func (c *Collector) RecordInitialize(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(OpInitializePage).observe(duration)
	c.initializeTimes = pushWindow(c.initializeTimes, ms(duration))
}

// RecordMessage records a processed message.
func (c *Collector) RecordMessage(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(OpProcessMessage).observe(duration)
	c.messageTimes = pushWindow(c.messageTimes, ms(duration))
}

// RecordBuild records a context build and folds it into the running
// average build time.
func (c *Collector) RecordBuild(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(OpBuildContext).observe(duration)
	c.contextBuilds++
	c.averageBuildTime += (ms(duration) - c.averageBuildTime) / float64(c.contextBuilds)
}

// IncMemoryQueries counts one memory query.
func (c *Collector) IncMemoryQueries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryQueries++
}

// AddCrossPageLinks counts n new page connections.
func (c *Collector) AddCrossPageLinks(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crossPageLinks += int64(n)
}

// Reset zeroes the session counters and windows. Operation timings and
// uptime are kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextBuilds = 0
	c.averageBuildTime = 0
	c.memoryQueries = 0
	c.crossPageLinks = 0
	c.initializeTimes = nil
	c.messageTimes = nil
}

// Restore replaces the session counters and windows with those of s.
func (c *Collector) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextBuilds = s.ContextBuilds
	c.averageBuildTime = s.AverageBuildTime
	c.memoryQueries = s.MemoryQueries
	c.crossPageLinks = s.CrossPageLinks
	c.initializeTimes = tail(slices.Clone(s.InitializeTimes))
	c.messageTimes = tail(slices.Clone(s.MessageTimes))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func pushWindow(w []float64, v float64) []float64 {
	return tail(append(w, v))
}

func tail(w []float64) []float64 {
	if over := len(w) - maxWindow; over > 0 {
		return slices.Clone(w[over:])
	}
	return w
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
	if m.TotalInputTokens > 0 || m.TotalOutputTokens > 0 {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
	}
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		ContextBuilds:    c.contextBuilds,
		AverageBuildTime: c.averageBuildTime,
		MemoryQueries:    c.memoryQueries,
		CrossPageLinks:   c.crossPageLinks,
		InitializeTimes:  slices.Clone(c.initializeTimes),
		MessageTimes:     slices.Clone(c.messageTimes),
		UptimeSeconds:    time.Since(c.startTime).Seconds(),
	}
	for op, m := range c.ops {
		if snap := snapshotOp(m); snap != nil {
			if s.Operations == nil {
				s.Operations = make(map[string]*OperationSnapshot)
			}
			s.Operations[op] = snap
		}
	}
	return s
}
