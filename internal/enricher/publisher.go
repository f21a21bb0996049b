package enricher

import (
	"maps"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Publisher exposes the latest Snapshot as the active_streams_by_channel and
// streams_by_user gauge families. It implements prometheus.Collector: each
// collection reads exactly one published snapshot, so a scrape never sees a
// mix of two cycles or a half-cleared set.
type Publisher struct {
	channelDesc *prometheus.Desc
	userDesc    *prometheus.Desc

	current atomic.Pointer[Snapshot]
}

// NewPublisher returns a Publisher with an empty snapshot.
func NewPublisher() *Publisher {
	p := &Publisher{
		channelDesc: prometheus.NewDesc(
			"active_streams_by_channel",
			"Number of active streams per channel",
			[]string{"channel_name"}, nil,
		),
		userDesc: prometheus.NewDesc(
			"streams_by_user",
			"Active streams per user and channel",
			[]string{"user", "channel_name"}, nil,
		),
	}
	empty := NewSnapshot()
	p.current.Store(&empty)
	return p
}

// Publish replaces the exposed gauge set with s. Labels absent from s
// disappear; publishing the same snapshot twice is a no-op for readers.
func (p *Publisher) Publish(s Snapshot) {
	cp := Snapshot{
		Channels:     maps.Clone(s.Channels),
		UserChannels: maps.Clone(s.UserChannels),
	}
	if cp.Channels == nil {
		cp.Channels = map[string]int{}
	}
	if cp.UserChannels == nil {
		cp.UserChannels = map[UserChannel]int{}
	}
	p.current.Store(&cp)
}

// Published returns the currently exposed snapshot. Callers must not modify it.
func (p *Publisher) Published() Snapshot {
	return *p.current.Load()
}

// Describe implements prometheus.Collector.
func (p *Publisher) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.channelDesc
	ch <- p.userDesc
}

// Collect implements prometheus.Collector.
func (p *Publisher) Collect(ch chan<- prometheus.Metric) {
	s := p.current.Load()
	for name, n := range s.Channels {
		ch <- constGauge(p.channelDesc, n, name)
	}
	for k, n := range s.UserChannels {
		ch <- constGauge(p.userDesc, n, k.User, k.Channel)
	}
}

func constGauge(desc *prometheus.Desc, v int, labels ...string) prometheus.Metric {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, float64(v), labels...)
	if err != nil {
		return prometheus.NewInvalidMetric(desc, err)
	}
	return m
}
