// Package prom counts relstate.Hooks events in Prometheus.
//
// Every series is labelled with the cache namespace ("follow", "block",
// "banner", ...), taken from the storage key prefix. Ids never become labels.
package prom

import (
	"errors"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/relstate"
)

const namespace = "relstate"

type Hooks struct {
	selfHeal       *prometheus.CounterVec
	setRejected    *prometheus.CounterVec
	fetchFailed    *prometheus.CounterVec
	fetchShared    *prometheus.CounterVec
	mutationFailed *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
}

var _ relstate.Hooks = (*Hooks)(nil)

// New creates the counters and registers them with reg. Counters already
// registered by an earlier New (a previous session in the same process) are
// reused, so totals keep accumulating across sessions.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "self_heal_total",
			Help:      "Entries deleted on read because they were corrupt or stale by generation",
		}, []string{"ns", "reason"}),
		setRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "provider_set_rejected_total",
			Help:      "Writes refused by the storage provider",
		}, []string{"ns"}),
		fetchFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "failed_total",
			Help:      "Producer calls that failed; nothing was cached",
		}, []string{"ns", "timeout"}),
		fetchShared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "shared_total",
			Help:      "Callers served by an in-flight fetch",
		}, []string{"ns"}),
		mutationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "failed_total",
			Help:      "Remote mutations that failed or were refused",
		}, []string{"ns", "timeout"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "rollbacks_total",
			Help:      "Rollbacks of optimistic writes by outcome",
		}, []string{"ns", "outcome"}), // 'applied' or 'skipped'
	}
	for _, c := range []**prometheus.CounterVec{&h.selfHeal, &h.setRejected, &h.fetchFailed, &h.fetchShared, &h.mutationFailed, &h.rollbacks} {
		if err := reg.Register(*c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, err
			}
			*c = existing
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	h.selfHeal.With(prometheus.Labels{"ns": ns(storageKey), "reason": reason}).Inc()
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	h.setRejected.WithLabelValues(ns(storageKey)).Inc()
}

func (h *Hooks) FetchFailed(key string, err error) {
	h.fetchFailed.WithLabelValues(ns(key), timeout(err)).Inc()
}

func (h *Hooks) FetchShared(key string) { h.fetchShared.WithLabelValues(ns(key)).Inc() }

func (h *Hooks) MutationFailed(key string, err error) {
	h.mutationFailed.WithLabelValues(ns(key), timeout(err)).Inc()
}

func (h *Hooks) RollbackApplied(key string) { h.rollbacks.WithLabelValues(ns(key), "applied").Inc() }
func (h *Hooks) RollbackSkipped(key string) { h.rollbacks.WithLabelValues(ns(key), "skipped").Inc() }

// RegisterRistretto exports hit ratio and live cost of a ristretto provider.
// The provider must be built with Metrics enabled. Gauges left by an earlier
// provider for the same ns are replaced so they follow the live one.
func RegisterRistretto(reg prometheus.Registerer, cacheNS string, m *ristretto.Metrics) error {
	if m == nil {
		return errors.New("prom: ristretto metrics are disabled")
	}
	labels := prometheus.Labels{"ns": cacheNS}
	ratio := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "ristretto",
		Name:        "ratio",
		Help:        "Hit ratio of the ristretto provider",
		ConstLabels: labels,
	}, func() float64 {
		return m.Ratio()
	})
	cost := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "ristretto",
		Name:        "cost",
		Help:        "Live cost held by the ristretto provider",
		ConstLabels: labels,
	}, func() float64 {
		return float64(m.CostAdded() - m.CostEvicted())
	})
	for _, g := range []prometheus.Collector{ratio, cost} {
		if err := replace(reg, g); err != nil {
			return err
		}
	}
	return nil
}

func replace(reg prometheus.Registerer, c prometheus.Collector) error {
	err := reg.Register(c)
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return err
	}
	reg.Unregister(are.ExistingCollector)
	return reg.Register(c)
}

func ns(storageKey string) string {
	if i := strings.IndexByte(storageKey, ':'); i > 0 {
		return storageKey[:i]
	}
	return "unknown"
}

func timeout(err error) string {
	if errors.Is(err, relstate.ErrTimeout) {
		return "true"
	}
	return "false"
}
