package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommand("new", "ok", 20*time.Millisecond)
	m.ObserveCommand("new", "ok", 30*time.Millisecond)
	m.ObserveCommand("check", "no_mailbox", time.Millisecond)
	m.ObserveProviderCall("list_domains", 200, time.Millisecond, nil)
	m.ObserveProviderCall("create_account", 0, time.Millisecond, errors.New("dial"))
	m.ObserveBroadcastSend(nil)
	m.ObserveBroadcastSend(errors.New("blocked"))
	m.ObserveBroadcastSend(nil)
	m.ObserveTelegramSend("send", nil)
	m.ObserveUpdate("callback", 5*time.Millisecond, nil)
	m.ObserveUpdate("message", 5*time.Millisecond, errors.New("handler"))
	m.IncRateLimited()
	m.SetKnownUsers(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("new", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("check", "no_mailbox")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("create_account", "0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastSends.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastSends.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TelegramSends.WithLabelValues("send", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Updates.WithLabelValues("message", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.KnownUsers))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ProviderDuration))
}

func TestBuildInfoExported(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	assert.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "tempmailbot_build_info" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommand("start", "ok", time.Second)
		m.ObserveProviderCall("list_domains", 200, time.Second, nil)
		m.ObserveBroadcastSend(nil)
		m.ObserveTelegramSend("send", nil)
		m.ObserveUpdate("message", time.Second, nil)
		m.IncRateLimited()
		m.SetKnownUsers(1)
	})
}
