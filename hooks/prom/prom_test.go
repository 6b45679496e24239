package prom

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/relstate"
	"github.com/unkn0wn-root/relstate/provider/ristretto"
)

func TestCountsByNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	require.NoError(t, err)

	h.SelfHeal("follow:a:b", "corrupt")
	h.SelfHeal("follow:a:c", "corrupt")
	h.SelfHeal("block:a:b", "gen_mismatch")
	h.MutationFailed("block:a:b", fmt.Errorf("wrapped: %w", relstate.ErrTimeout))
	h.FetchFailed("banner:u", errors.New("down"))
	h.RollbackApplied("block:a:b")
	h.RollbackSkipped("block:a:b")
	h.FetchShared("nokey")

	assert.Equal(t, 2.0, testutil.ToFloat64(h.selfHeal.WithLabelValues("follow", "corrupt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.selfHeal.WithLabelValues("block", "gen_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.mutationFailed.WithLabelValues("block", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fetchFailed.WithLabelValues("banner", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rollbacks.WithLabelValues("block", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rollbacks.WithLabelValues("block", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fetchShared.WithLabelValues("unknown")))
}

func TestNewReusesRegisteredCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	first.RollbackApplied("follow:a:b")

	second, err := New(reg)
	require.NoError(t, err)
	second.RollbackApplied("follow:a:b")

	assert.Equal(t, 2.0, testutil.ToFloat64(second.rollbacks.WithLabelValues("follow", "applied")))
}

func TestNewRejectsConflictingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	// same name, different label set
	require.NoError(t, reg.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relstate", Subsystem: "cache", Name: "self_heal_total", Help: "other",
	}, []string{"ns"})))
	_, err := New(reg)
	assert.Error(t, err)
}

func TestRegisterRistretto(t *testing.T) {
	p, err := ristretto.New(ristretto.Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64, Metrics: true})
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterRistretto(reg, "follow", p.Metrics()))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Error(t, RegisterRistretto(prometheus.NewRegistry(), "x", nil))

	// a later provider for the same ns takes over the gauges
	p2, err := ristretto.New(ristretto.Config{MaxCost: 1 << 20, Metrics: true})
	require.NoError(t, err)
	require.NoError(t, RegisterRistretto(reg, "follow", p2.Metrics()))
	n, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
