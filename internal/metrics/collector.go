// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors,omitempty"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptime_seconds"`
	IndexBuild    *OperationSnapshot            `json:"index_build,omitempty"`
	IndexLoad     *OperationSnapshot            `json:"index_load,omitempty"`
	IndexQuery    *OperationSnapshot            `json:"index_query,omitempty"`
	LLMComplete   *OperationSnapshot            `json:"llm_complete,omitempty"`
	LLMStream     *OperationSnapshot            `json:"llm_stream,omitempty"`
	StoreRead     *OperationSnapshot            `json:"store_read,omitempty"`
	StoreWrite    *OperationSnapshot            `json:"store_write,omitempty"`
	Turn          *OperationSnapshot            `json:"turn,omitempty"`
	Stages        map[string]*OperationSnapshot `json:"stages,omitempty"`
}

// Operation names for the collector.
const (
	OpIndexBuild  = "index_build"
	OpIndexLoad   = "index_load"
	OpIndexQuery  = "index_query"
	OpLLMComplete = "llm_complete"
	OpLLMStream   = "llm_stream"
	OpStoreRead   = "store_read"
	OpStoreWrite  = "store_write"
	OpTurn        = "turn"

	stagePrefix = "stage:"
)

// StageOp returns the operation name used for a workflow stage.
func StageOp(stage string) string {
	return stagePrefix + stage
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and a nil Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
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
		m = &OperationMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinInputTokens:  math.MaxInt64,
			MinOutputTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration) {
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).observe(duration)
}

// RecordError counts a failed operation. Failed calls are not timed.
func (c *Collector) RecordError(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).Errors++
}

// Observe records the outcome of an operation that started at start.
func (c *Collector) Observe(op string, start time.Time, err error) {
	if err != nil {
		c.RecordError(op)
		return
	}
	c.RecordTiming(op, time.Since(start))
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration)

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens

	if inputTokens < m.MinInputTokens {
		m.MinInputTokens = inputTokens
	}
	if inputTokens > m.MaxInputTokens {
		m.MaxInputTokens = inputTokens
	}
	if outputTokens < m.MinOutputTokens {
		m.MinOutputTokens = outputTokens
	}
	if outputTokens > m.MaxOutputTokens {
		m.MaxOutputTokens = outputTokens
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || (m.Count == 0 && m.Errors == 0) {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
	}
	if m.Count > 0 {
		snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		snap.MinTimeMs = m.MinTime.Milliseconds()
		snap.MaxTimeMs = m.MaxTime.Milliseconds()
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		avgIn := float64(m.TotalInputTokens) / float64(m.Count)
		avgOut := float64(m.TotalOutputTokens) / float64(m.Count)
		minIn := m.MinInputTokens
		maxIn := m.MaxInputTokens
		minOut := m.MinOutputTokens
		maxOut := m.MaxOutputTokens

		// Reset sentinel values for display
		if minIn == math.MaxInt64 {
			minIn = 0
		}
		if minOut == math.MaxInt64 {
			minOut = 0
		}

		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
		snap.MinInputTokens = &minIn
		snap.MaxInputTokens = &maxIn
		snap.MinOutputTokens = &minOut
		snap.MaxOutputTokens = &maxOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		IndexBuild:    snapshotOp(c.ops[OpIndexBuild], false),
		IndexLoad:     snapshotOp(c.ops[OpIndexLoad], false),
		IndexQuery:    snapshotOp(c.ops[OpIndexQuery], false),
		LLMComplete:   snapshotOp(c.ops[OpLLMComplete], true),
		LLMStream:     snapshotOp(c.ops[OpLLMStream], true),
		StoreRead:     snapshotOp(c.ops[OpStoreRead], false),
		StoreWrite:    snapshotOp(c.ops[OpStoreWrite], false),
		Turn:          snapshotOp(c.ops[OpTurn], false),
	}

	names := make([]string, 0)
	for op := range c.ops {
		if strings.HasPrefix(op, stagePrefix) {
			names = append(names, op)
		}
	}
	sort.Strings(names)
	for _, op := range names {
		if snap.Stages == nil {
			snap.Stages = make(map[string]*OperationSnapshot, len(names))
		}
		snap.Stages[strings.TrimPrefix(op, stagePrefix)] = snapshotOp(c.ops[op], false)
	}

	return snap
}
