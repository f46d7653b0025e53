package cache

import "time"

// Manager composes the four sub-caches the memory facade consults:
// patterns, solutions, decisions, and queries, with proportional
// quotas of the total budget per spec §4.2 (40/30/15/15).
type Manager struct {
	Patterns  *Cache
	Solutions *Cache
	Decisions *Cache
	Queries   *Cache
}

// ManagerOptions is the total budget handed to NewManager; quotas are
// derived proportionally.
type ManagerOptions struct {
	TotalSize int
	TTL       time.Duration
	Policy    Policy
}

func NewManager(opts ManagerOptions) *Manager {
	quota := func(fraction float64) int {
		n := int(float64(opts.TotalSize) * fraction)
		if n < 1 {
			n = 1
		}
		return n
	}
	sub := func(fraction float64) *Cache {
		return New(Options{MaxSize: quota(fraction), TTL: opts.TTL, Policy: opts.Policy})
	}
	return &Manager{
		Patterns:  sub(0.40),
		Solutions: sub(0.30),
		Decisions: sub(0.15),
		Queries:   sub(0.15),
	}
}

// WarmCache seeds each sub-cache from the supplied preload map.
func (m *Manager) WarmCache(preload map[string]map[string]interface{}) {
	if p, ok := preload["patterns"]; ok {
		for k, v := range p {
			m.Patterns.Set(k, v)
		}
	}
	if s, ok := preload["solutions"]; ok {
		for k, v := range s {
			m.Solutions.Set(k, v)
		}
	}
	if d, ok := preload["decisions"]; ok {
		for k, v := range d {
			m.Decisions.Set(k, v)
		}
	}
	if q, ok := preload["queries"]; ok {
		for k, v := range q {
			m.Queries.Set(k, v)
		}
	}
}

// CombinedStats sums hits/misses/evictions across all four sub-caches
// and computes an overall hit rate.
func (m *Manager) CombinedStats() Stats {
	var combined Stats
	for _, c := range []*Cache{m.Patterns, m.Solutions, m.Decisions, m.Queries} {
		s := c.GetStats()
		combined.Hits += s.Hits
		combined.Misses += s.Misses
		combined.Evictions += s.Evictions
		combined.CurrentSize += s.CurrentSize
		combined.MaxSize += s.MaxSize
	}
	return combined
}

// EvictExpiredAll sweeps every sub-cache and returns the total removed.
func (m *Manager) EvictExpiredAll() int {
	n := 0
	for _, c := range []*Cache{m.Patterns, m.Solutions, m.Decisions, m.Queries} {
		n += c.EvictExpired()
	}
	return n
}
