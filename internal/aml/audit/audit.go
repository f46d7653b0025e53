// Package audit implements the append-only audit trail from spec §4.4:
// every access-controlled operation is recorded, buffered in memory,
// and flushed to durable storage on an interval or on demand.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aml-core/agentmemory/internal/aml/storage"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Options configures the Logger.
type Options struct {
	// FlushInterval is how often the buffer is drained to storage.
	// Zero disables automatic flushing; callers must call Flush.
	FlushInterval time.Duration

	// MaxBuffered is the buffer length at which Log calls Flush; that
	// flush is rate-limited like any other.
	MaxBuffered int

	// FlushBurst caps how many flushes may run back-to-back, guarding
	// against a flush storm if events arrive faster than the interval.
	FlushBurst int
}

func (o Options) withDefaults() Options {
	if o.MaxBuffered <= 0 {
		o.MaxBuffered = 1000
	}
	if o.FlushBurst <= 0 {
		o.FlushBurst = 1
	}
	return o
}

// Logger buffers audit events and periodically flushes them as
// append-only JSON batches under the engine's "audit/" namespace.
type Logger struct {
	engine *storage.Engine
	opts   Options
	limit  *rate.Limiter

	mu        sync.Mutex
	buffer    []types.AuditEvent
	all       []types.AuditEvent // full in-process index for query(); bounded by EvictOlderThan
	stopCh    chan struct{}
	stopped   bool
	wg        sync.WaitGroup

	subMu       sync.RWMutex
	subscribers map[int]func(types.AuditEvent)
	nextSubID   int
}

// New builds a Logger writing through engine. If opts.FlushInterval is
// non-zero, a background goroutine flushes on that cadence until Close
// is called.
func New(engine *storage.Engine, opts Options) *Logger {
	opts = opts.withDefaults()
	l := &Logger{
		engine: engine,
		opts:   opts,
		limit:  rate.NewLimiter(rate.Every(time.Second), opts.FlushBurst),
		stopCh: make(chan struct{}),
	}
	if opts.FlushInterval > 0 {
		l.wg.Add(1)
		go l.flushLoop()
	}
	return l
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = l.Flush()
		case <-l.stopCh:
			return
		}
	}
}

// Log appends an event to the buffer and calls Flush once the buffer
// reaches MaxBuffered. That flush is subject to the rate limiter; when
// it is skipped the events stay buffered for a later flush.
func (l *Logger) Log(event types.AuditEvent) {
	l.mu.Lock()
	l.buffer = append(l.buffer, event)
	l.all = append(l.all, event)
	full := len(l.buffer) >= l.opts.MaxBuffered
	l.mu.Unlock()

	l.notifySubscribers(event)

	if full {
		_ = l.Flush()
	}
}

// Subscribe registers fn to be called with every subsequently logged
// event, used by the operator API's /ws/audit live tail. It returns an
// unsubscribe function. Subscriber callbacks must not block: they run
// synchronously on the Log() caller's goroutine.
func (l *Logger) Subscribe(fn func(types.AuditEvent)) (unsubscribe func()) {
	l.subMu.Lock()
	if l.subscribers == nil {
		l.subscribers = make(map[int]func(types.AuditEvent))
	}
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = fn
	l.subMu.Unlock()

	return func() {
		l.subMu.Lock()
		delete(l.subscribers, id)
		l.subMu.Unlock()
	}
}

func (l *Logger) notifySubscribers(event types.AuditEvent) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for _, fn := range l.subscribers {
		fn(event)
	}
}

// Flush writes any buffered events to storage as one batch file named
// by the flush time, rate-limited so a burst of small flushes can't
// starve storage I/O.
func (l *Logger) Flush() error {
	return l.flush(false)
}

// flush drains the buffer to storage. When force is false it is
// subject to the rate limiter, same as any periodic or Log-triggered
// flush; Close calls it with force=true so a shutdown landing within
// the limiter's window doesn't drop the final batch.
func (l *Logger) flush(force bool) error {
	if !force && !l.limit.Allow() {
		return nil
	}

	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.buffer
	l.buffer = nil
	l.mu.Unlock()

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal audit batch: %w", err)
	}

	key := fmt.Sprintf("audit/batch-%d.json", time.Now().UnixNano())
	if aerr := l.engine.Put(key, data, ""); aerr != nil {
		return aerr
	}
	return nil
}

// Query filters the in-process event index per spec §4.4's query(filter).
// It does not re-read flushed batches from storage. GenerateReport
// aggregates the same in-process index, so events logged before the
// process started are visible to neither.
func (l *Logger) Query(filter types.AuditFilter) []types.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.AuditEvent, 0, len(l.all))
	for _, e := range l.all {
		if filter.Agent != "" && e.Agent != filter.Agent {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Success != nil && e.Success != *filter.Success {
			continue
		}
		if filter.SensitiveData != nil && e.SensitiveData != *filter.SensitiveData {
			continue
		}
		if filter.Since != nil {
			ts := e.Timestamp.UnixNano()
			if ts < filter.Since.Start || (filter.Since.End > 0 && ts >= filter.Since.End) {
				continue
			}
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Report summarizes the audit trail over a window, per spec §4.4's
// generateReport().
type Report struct {
	TotalEvents      int
	SuccessCount     int
	FailureCount     int
	SensitiveCount   int
	ByAgent          map[string]int
	ByType           map[string]int
	AccessDeniedRate float64
}

// GenerateReport aggregates the current in-process index.
func (l *Logger) GenerateReport(filter types.AuditFilter) Report {
	events := l.Query(filter)
	r := Report{
		ByAgent: make(map[string]int),
		ByType:  make(map[string]int),
	}
	denied := 0
	for _, e := range events {
		r.TotalEvents++
		if e.Success {
			r.SuccessCount++
		} else {
			r.FailureCount++
			if e.Type == "access_denied" {
				denied++
			}
		}
		if e.SensitiveData {
			r.SensitiveCount++
		}
		r.ByAgent[e.Agent]++
		r.ByType[e.Type]++
	}
	if r.TotalEvents > 0 {
		r.AccessDeniedRate = float64(denied) / float64(r.TotalEvents)
	}
	return r
}

// EvictOlderThan drops events older than cutoff (unix nanos) from the
// in-process index to bound memory growth, per spec §4.4's
// deleteOldLogs retention policy. Flushed batches on disk are left to
// the backup/retention manager.
func (l *Logger) EvictOlderThan(cutoff int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.all[:0]
	removed := 0
	for _, e := range l.all {
		if e.Timestamp.UnixNano() < cutoff {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.all = kept
	return removed
}

// Close stops the background flush loop and performs a final flush,
// per spec §4.4's shutdown guarantee that no buffered event is lost.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stopCh)
	l.wg.Wait()
	return l.flush(true)
}
