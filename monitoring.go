package fowl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andreyvit/fowl/tuple"
)

var commitDurationBuckets = prometheus.ExponentialBuckets(0.0001, 2, 18) // ~0.1ms to 13s

type metrics struct {
	commits        *prometheus.CounterVec
	retries        prometheus.Counter
	ops            *prometheus.CounterVec
	indexScans     *prometheus.CounterVec
	commitDuration prometheus.Histogram

	reg        prometheus.Registerer
	collectors []prometheus.Collector
}

// newMetrics creates the collectors and registers them on reg if it is not
// nil. Collectors already registered by another DB are shared.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{reg: reg}
	var err error
	m.commits, err = register(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fowl",
		Name:      "commits_total",
		Help:      "Number of committed transactions by result",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	m.retries, err = register(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fowl",
		Name:      "commit_retries_total",
		Help:      "Number of times the engine re-ran a transaction after a conflict",
	}))
	if err != nil {
		return nil, err
	}
	m.ops, err = register(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fowl",
		Name:      "operations_total",
		Help:      "Number of executed transaction operations by kind",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	m.indexScans, err = register(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fowl",
		Name:      "index_scans_total",
		Help:      "Number of index range reads by operator",
	}, []string{"operator"}))
	if err != nil {
		return nil, err
	}
	m.commitDuration, err = register(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fowl",
		Name:      "commit_duration_seconds",
		Help:      "Duration of Commit, including retries",
		Buckets:   commitDurationBuckets,
	}))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](m *metrics, c C) (C, error) {
	if m.reg == nil {
		return c, nil
	}
	if err := m.reg.Register(c); err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			if existing, ok := e.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("fowl: metric already registered with a different type: %w", err)
		}
		var zero C
		return zero, err
	}
	m.collectors = append(m.collectors, c)
	return c, nil
}

func (m *metrics) unregister() error {
	for _, c := range m.collectors {
		if !m.reg.Unregister(c) {
			return fmt.Errorf("fowl: failed to unregister metrics collector")
		}
	}
	m.collectors = nil
	return nil
}

// CollectionStats describes the keys of a collection and its indexes.
type CollectionStats struct {
	Documents    int
	Keys         int
	IndexEntries int

	DataSize  int
	IndexSize int
}

func (cs *CollectionStats) TotalSize() int {
	return cs.DataSize + cs.IndexSize
}

// Stats counts the documents, keys and index entries of a collection.
func (db *DB) Stats(ctx context.Context, collection KeyPath) (CollectionStats, error) {
	var result CollectionStats
	err := db.engine.View(ctx, func(etx EngineTx) error {
		var lastID []byte
		c := prefixRange(etx, collection, db.logger)
		for c.Next() {
			result.Keys++
			result.DataSize += len(c.Key()) + len(c.Value())
			t, err := tuple.Unpack(c.Key())
			if err != nil {
				c.Close()
				return storeErr(ErrStoreOperationFailed, collection, c.Key(), err)
			}
			id := tuple.Pack(t[len(collection)])
			if string(id) != string(lastID) {
				result.Documents++
				lastID = id
			}
		}
		if err := c.Close(); err != nil {
			return err
		}

		c = prefixRange(etx, KeyPath{indexPrefix}.Concat(collection), db.logger)
		for c.Next() {
			result.IndexEntries++
			result.IndexSize += len(c.Key()) + len(c.Value())
		}
		return c.Close()
	})
	return result, err
}

func loggableVal(v any) string {
	if v == nil {
		return "<none>"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
