package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RouteStats aggregates the requests sent to one method+route pair.
type RouteStats struct {
	Method        string
	Route         string
	Count         int64
	Failures      int64
	Conflicts     int64
	TotalDuration time.Duration
	LastStatus    int
	LastAt        time.Time
}

// AvgDuration is the mean round trip time of the route.
func (r RouteStats) AvgDuration() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.TotalDuration / time.Duration(r.Count)
}

type Stats struct {
	TotalRequests  int64
	FailedRequests int64
	Routes         []RouteStats
	Uptime         time.Duration
	LastUpdated    time.Time
}

// StatsCollector records outgoing API requests made by this client.
type StatsCollector struct {
	mu        sync.Mutex
	routes    map[string]*RouteStats
	startTime time.Time
}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		routes:    make(map[string]*RouteStats),
		startTime: time.Now(),
	}
}

// TrackAPIRequest records one request. status is 0 when no response arrived.
func (sc *StatsCollector) TrackAPIRequest(method, route string, duration time.Duration, status int) error {
	if method == "" || route == "" {
		return fmt.Errorf("method and route are required")
	}
	if duration < 0 {
		return fmt.Errorf("negative duration %v", duration)
	}

	key := method + " " + route

	sc.mu.Lock()
	defer sc.mu.Unlock()

	rs, ok := sc.routes[key]
	if !ok {
		rs = &RouteStats{Method: method, Route: route}
		sc.routes[key] = rs
	}
	rs.Count++
	rs.TotalDuration += duration
	rs.LastStatus = status
	rs.LastAt = time.Now()
	if status == 0 || status >= 400 {
		rs.Failures++
	}
	if status == 409 {
		rs.Conflicts++
	}
	return nil
}

// CollectStats returns a snapshot with routes sorted by method and route.
func (sc *StatsCollector) CollectStats() Stats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	stats := Stats{
		Uptime:      time.Since(sc.startTime),
		LastUpdated: time.Now(),
		Routes:      make([]RouteStats, 0, len(sc.routes)),
	}
	for _, rs := range sc.routes {
		stats.TotalRequests += rs.Count
		stats.FailedRequests += rs.Failures
		stats.Routes = append(stats.Routes, *rs)
	}
	sort.Slice(stats.Routes, func(i, j int) bool {
		if stats.Routes[i].Route != stats.Routes[j].Route {
			return stats.Routes[i].Route < stats.Routes[j].Route
		}
		return stats.Routes[i].Method < stats.Routes[j].Method
	})
	return stats
}

// Reset drops all recorded requests.
func (sc *StatsCollector) Reset() {
	sc.mu.Lock()
	sc.routes = make(map[string]*RouteStats)
	sc.mu.Unlock()
}
