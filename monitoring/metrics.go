package monitoring

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeTiming  MetricType = "timing"
)

// Metric is one named value with optional labels.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricsCollector accumulates service metrics in process. Counters sum,
// gauges keep the latest value, timings keep a bounded sample history.
type MetricsCollector struct {
	counters map[string]*Metric
	gauges   map[string]*Metric
	timings  map[string][]float64
	lock     sync.RWMutex

	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

const timingHistoryLimit = 1000

// NewMetricsCollector creates a collector and starts the background system
// metrics loop. Call Stop when done.
func NewMetricsCollector() *MetricsCollector {
	collector := &MetricsCollector{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		timings:   make(map[string][]float64),
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}

	go collector.collectSystemMetrics()

	return collector
}

// Stop ends the background collection loop.
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stop) })
}

// IncrCounter adds value to the named counter.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.lock.Lock()
	defer mc.lock.Unlock()

	key := metricKey(name, labels)
	metric, ok := mc.counters[key]
	if !ok {
		metric = &Metric{Name: name, Type: MetricTypeCounter, Labels: labels}
		mc.counters[key] = metric
	}
	metric.Value += value
	metric.Timestamp = time.Now()
}

// SetGauge sets the named gauge to value.
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.lock.Lock()
	defer mc.lock.Unlock()

	key := metricKey(name, labels)
	metric, ok := mc.gauges[key]
	if !ok {
		metric = &Metric{Name: name, Type: MetricTypeGauge, Labels: labels}
		mc.gauges[key] = metric
	}
	metric.Value = value
	metric.Timestamp = time.Now()
}

// RecordTiming appends one duration sample in milliseconds.
func (mc *MetricsCollector) RecordTiming(name string, elapsed time.Duration) {
	mc.lock.Lock()
	defer mc.lock.Unlock()

	samples := append(mc.timings[name], float64(elapsed.Microseconds())/1000)
	if len(samples) > timingHistoryLimit {
		samples = samples[len(samples)-timingHistoryLimit:]
	}
	mc.timings[name] = samples
}

// CounterValue returns the accumulated value for a counter, 0 when unknown.
func (mc *MetricsCollector) CounterValue(name string, labels map[string]string) float64 {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	if metric, ok := mc.counters[metricKey(name, labels)]; ok {
		return metric.Value
	}
	return 0
}

// GaugeValue returns the latest value for a gauge, 0 when unknown.
func (mc *MetricsCollector) GaugeValue(name string, labels map[string]string) float64 {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	if metric, ok := mc.gauges[metricKey(name, labels)]; ok {
		return metric.Value
	}
	return 0
}

// TimingSummary aggregates the recorded samples for one timing series.
func (mc *MetricsCollector) TimingSummary(name string) map[string]interface{} {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	samples := mc.timings[name]
	if len(samples) == 0 {
		return map[string]interface{}{"count": 0}
	}

	minMS, maxMS := samples[0], samples[0]
	sum := 0.0
	for _, s := range samples {
		sum += s
		if s < minMS {
			minMS = s
		}
		if s > maxMS {
			maxMS = s
		}
	}
	return map[string]interface{}{
		"count":  len(samples),
		"avg_ms": sum / float64(len(samples)),
		"min_ms": minMS,
		"max_ms": maxMS,
	}
}

func (mc *MetricsCollector) collectSystemMetrics() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			mc.SetGauge("memory_heap_alloc", float64(m.HeapAlloc), nil)
			mc.SetGauge("memory_heap_sys", float64(m.HeapSys), nil)
			mc.SetGauge("system_goroutines", float64(runtime.NumGoroutine()), nil)
		case <-mc.stop:
			return
		}
	}
}

// ExportPrometheus renders counters, gauges and timing averages in the
// Prometheus text exposition format, sorted for stable output.
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	var b strings.Builder
	seen := make(map[string]bool)

	for _, key := range sortedKeys(mc.counters) {
		metric := mc.counters[key]
		writeHeader(&b, metric.Name, "counter", seen)
		fmt.Fprintf(&b, "%s%s %v\n", metric.Name, renderLabels(metric.Labels), metric.Value)
	}
	for _, key := range sortedKeys(mc.gauges) {
		metric := mc.gauges[key]
		writeHeader(&b, metric.Name, "gauge", seen)
		fmt.Fprintf(&b, "%s%s %v\n", metric.Name, renderLabels(metric.Labels), metric.Value)
	}

	timingNames := make([]string, 0, len(mc.timings))
	for name := range mc.timings {
		timingNames = append(timingNames, name)
	}
	sort.Strings(timingNames)
	for _, name := range timingNames {
		samples := mc.timings[name]
		if len(samples) == 0 {
			continue
		}
		sum := 0.0
		for _, s := range samples {
			sum += s
		}
		writeHeader(&b, name+"_avg_ms", "gauge", seen)
		fmt.Fprintf(&b, "%s_avg_ms %v\n", name, sum/float64(len(samples)))
		writeHeader(&b, name+"_samples", "gauge", seen)
		fmt.Fprintf(&b, "%s_samples %d\n", name, len(samples))
	}

	return b.String()
}

// ExportJSON renders all metrics as indented JSON.
func (mc *MetricsCollector) ExportJSON() (string, error) {
	mc.lock.RLock()
	metrics := make([]*Metric, 0, len(mc.counters)+len(mc.gauges))
	for _, key := range sortedKeys(mc.counters) {
		m := *mc.counters[key]
		metrics = append(metrics, &m)
	}
	for _, key := range sortedKeys(mc.gauges) {
		m := *mc.gauges[key]
		metrics = append(metrics, &m)
	}
	mc.lock.RUnlock()

	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetUptime returns time since the collector was created.
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats snapshots process-level runtime figures.
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":        m.Alloc,
			"total_alloc":  m.TotalAlloc,
			"sys":          m.Sys,
			"heap_alloc":   m.HeapAlloc,
			"heap_objects": m.HeapObjects,
			"gc_count":     m.NumGC,
			"gc_pause_ns":  m.PauseTotalNs,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	return name + renderLabels(labels)
}

func renderLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func sortedKeys(metrics map[string]*Metric) []string {
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func writeHeader(b *strings.Builder, name, metricType string, seen map[string]bool) {
	if seen[name] {
		return
	}
	seen[name] = true
	fmt.Fprintf(b, "# TYPE %s %s\n", name, metricType)
}
