package console

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/store"
)

// BrokerOptions configure the broker monitor
type BrokerOptions struct {
	Interval   time.Duration
	Statistics bool // also fetch statistics and append them to the history
	Health     bool // also fetch health
}

// BrokerMonitor polls broker info and, optionally, statistics and health
type BrokerMonitor struct {
	feature
	remote  Remote
	stores  *store.Registry
	history Recorder
	opts    BrokerOptions
}

func newBrokerMonitor(p Params) *BrokerMonitor {
	m := &BrokerMonitor{feature: feature{name: FeatureBroker}, remote: p.Remote, stores: p.Stores, history: p.History, opts: p.Broker}
	m.subscribe(p.Scheduler, p.Orchestrator, p.Broker.Interval, p.AutoRefresh, m.ops)
	return m
}

// Snapshot returns the broker stores
func (m *BrokerMonitor) Snapshot() BrokerSnapshot {
	return BrokerSnapshot{
		Info:       m.stores.BrokerInfo.Read(),
		Statistics: m.stores.BrokerStatistics.Read(),
		Health:     m.stores.BrokerHealth.Read(),
	}
}

// BrokerSnapshot is a read of all broker stores
type BrokerSnapshot struct {
	Info       store.Entry[domain.BrokerInfo]       `json:"info"`
	Statistics store.Entry[domain.BrokerStatistics] `json:"statistics"`
	Health     store.Entry[domain.BrokerHealth]     `json:"health"`
}

func (m *BrokerMonitor) ops() []refresh.Op {
	res := []refresh.Op{refresh.Bind(store.DomainBrokerInfo, m.stores.BrokerInfo, m.remote.BrokerInfo)}
	if m.opts.Statistics {
		res = append(res, refresh.Bind(store.DomainBrokerStatistics, m.stores.BrokerStatistics, m.statistics))
	}
	if m.opts.Health {
		res = append(res, refresh.Bind(store.DomainBrokerHealth, m.stores.BrokerHealth, m.remote.BrokerHealth))
	}
	return res
}

// statistics fetches a sample and appends it to the history; a history failure doesn't fail the fetch
func (m *BrokerMonitor) statistics(ctx context.Context) (domain.BrokerStatistics, error) {
	s, err := m.remote.BrokerStatistics(ctx)
	if err != nil {
		return s, err
	}
	if s.SampledAt.IsZero() {
		s.SampledAt = time.Now()
	}
	if m.history != nil {
		if herr := m.history.Add(ctx, s); herr != nil {
			lgr.Printf("[WARN] failed to record statistics sample: %v", herr)
		}
	}
	return s, nil
}
