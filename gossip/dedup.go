package gossip

import (
	"container/list"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultDedupWindow is the sliding window a message-id is remembered
	// for (spec §4.7: "DEDUP_WINDOW ≈ 60 s").
	DefaultDedupWindow = 60 * time.Second
	dedupJanitorInterval = 15 * time.Second
)

// Dedup is a sliding-window set of recently-seen gossip message ids.
// Grounded on p2p's handshake nonceGuard: a map plus an LRU list ordered by
// last-seen, swept by a background janitor, backed by a package-level
// prometheus gauge.
type Dedup struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	janitorStop chan struct{}
	stopOnce    sync.Once
	janitorWG   sync.WaitGroup
}

type dedupRecord struct {
	id     string
	expiry time.Time
}

// NewDedup constructs a Dedup with the given sliding window. A
// non-positive window falls back to DefaultDedupWindow.
func NewDedup(window time.Duration) *Dedup {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	d := &Dedup{
		window:      window,
		now:         time.Now,
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		janitorStop: make(chan struct{}),
	}
	dedupMetrics().size.Set(0)
	d.janitorWG.Add(1)
	go d.runJanitor()
	runtime.SetFinalizer(d, func(g *Dedup) { g.Close() })
	return d
}

// Seen reports whether id has already been remembered within the current
// window. If not, it is recorded and false is returned — the message
// should be applied and considered for forwarding. If already remembered,
// true is returned and the message must be dropped silently (spec
// invariant 8: delivered exactly once).
func (d *Dedup) Seen(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeExpiredLocked(now)

	if elem := d.entries[id]; elem != nil {
		d.order.MoveToFront(elem)
		return true
	}

	record := &dedupRecord{id: id, expiry: now.Add(d.window)}
	elem := d.order.PushFront(record)
	d.entries[id] = elem
	dedupMetrics().size.Set(float64(len(d.entries)))
	return false
}

func (d *Dedup) removeExpiredLocked(now time.Time) {
	for {
		elem := d.order.Back()
		if elem == nil {
			return
		}
		record, _ := elem.Value.(*dedupRecord)
		if record == nil || now.Before(record.expiry) {
			return
		}
		d.order.Remove(elem)
		delete(d.entries, record.id)
		dedupMetrics().evicted.Inc()
	}
}

func (d *Dedup) runJanitor() {
	defer d.janitorWG.Done()
	ticker := time.NewTicker(dedupJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			d.removeExpiredLocked(d.now())
			dedupMetrics().size.Set(float64(len(d.entries)))
			d.mu.Unlock()
		case <-d.janitorStop:
			return
		}
	}
}

// Close stops the background janitor. Safe to call multiple times.
func (d *Dedup) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.janitorStop) })
	d.janitorWG.Wait()
}

// Size returns the number of message ids currently remembered.
func (d *Dedup) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

type metrics struct {
	size    prometheus.Gauge
	evicted prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *metrics
)

func dedupMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInst = &metrics{
			size: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "srishti_gossip_dedup_size",
				Help: "Number of message ids currently tracked by the gossip dedup window.",
			}),
			evicted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "srishti_gossip_dedup_evicted_total",
				Help: "Number of gossip dedup entries evicted after their window expired.",
			}),
		}
		prometheus.MustRegister(metricsInst.size, metricsInst.evicted)
	})
	return metricsInst
}
