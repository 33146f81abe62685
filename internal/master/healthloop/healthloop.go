// Copyright 2024 The LizardFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package healthloop periodically classifies every chunk the registry
// tracks and issues replicate directives for undergoal chunks (§4.3 "Chunk
// classification loop"). Overgoal chunks are counted but no delete
// directive is issued for them. It mirrors the original's
// chunk_housekeeping 50ms scan, here run on a configurable interval instead
// of a fixed tick.
package healthloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/lizardfs/lizardfs-sub001/internal/master/registry"
)

// Class is the bucket a chunk falls into after one classification pass,
// matching the original chunk_housekeeping's state names.
type Class int

const (
	ClassStable Class = iota
	ClassInvalid
	ClassUnused
	ClassDiskClean
	ClassOvergoal
	ClassUndergoal
	ClassMissing
)

func (c Class) String() string {
	switch c {
	case ClassStable:
		return "stable"
	case ClassInvalid:
		return "invalid"
	case ClassUnused:
		return "unused"
	case ClassDiskClean:
		return "diskclean"
	case ClassOvergoal:
		return "overgoal"
	case ClassUndergoal:
		return "undergoal"
	case ClassMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Classify buckets one chunk record by comparing its valid copy count
// against its goal (§4.3). A chunk with zero valid copies and a nonzero
// goal is "missing" (data loss, surfaced to operators); one with more
// copies than goal is "overgoal" (candidate for deletion); fewer is
// "undergoal" (candidate for replication); otherwise "stable".
func Classify(rec *registry.Record) Class {
	valid := len(rec.ValidCopies())
	switch {
	case valid == 0 && rec.Goal > 0:
		return ClassMissing
	case valid > rec.Goal:
		return ClassOvergoal
	case valid < rec.Goal:
		return ClassUndergoal
	default:
		return ClassStable
	}
}

// Metrics is the CHUNKSTEST_INFO-style counter set the original exposes via
// its charts/stats page; here rendered as Prometheus gauges/counters so a
// scrape target can be wired to the same registry the master's HTTP
// endpoint uses (gcsfuse's internal/monitor idiom, generalized to a daemon
// that isn't itself a FUSE mount).
type Metrics struct {
	ChunksByClass   *prometheus.GaugeVec
	ReplicateIssued prometheus.Counter
	DeleteIssued    prometheus.Counter
	ScanDuration    prometheus.Histogram
}

// NewMetrics registers the health loop's counters against reg (a fresh
// *prometheus.Registry per daemon, not the global DefaultRegisterer, so
// multiple masters in one test binary don't collide).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChunksByClass: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lizardfs",
			Subsystem: "master",
			Name:      "chunks_by_class",
			Help:      "Number of chunks currently in each health classification.",
		}, []string{"class"}),
		ReplicateIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lizardfs",
			Subsystem: "master",
			Name:      "replicate_directives_total",
			Help:      "Total REPLICATE directives issued by the health loop.",
		}),
		DeleteIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lizardfs",
			Subsystem: "master",
			Name:      "delete_directives_total",
			Help:      "Total DELETE directives issued for overgoal chunks.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lizardfs",
			Subsystem: "master",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one full chunk classification pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ChunksByClass, m.ReplicateIssued, m.DeleteIssued, m.ScanDuration)
	return m
}

// Loop runs the classification scan on Interval, issuing replicate
// directives for undergoal chunks (rate-limited) and logging missing
// chunks at warning severity. Overgoal chunks are only classified and
// counted: the loop issues no DELETE for their surplus copies, and
// Metrics.DeleteIssued is never incremented.
type Loop struct {
	Registry  *registry.Registry
	Client    registry.ChunkServerClient
	Metrics   *Metrics
	Logger    *slog.Logger
	Interval  time.Duration
	// Limiter bounds replication directive issuance, ported from
	// replication_bandwidth_limiter.cc's token-bucket throttle (there
	// measured in bytes/s of chunk data in flight; here approximated as
	// directives/s since chunk size is fixed at wire.ChunkSize).
	Limiter *rate.Limiter
}

// NewLoop builds a Loop with a default 1000-chunk/s replication limiter,
// matching the original's conservative default bandwidth cap scaled by a
// nominal 64 MiB chunk size.
func NewLoop(reg *registry.Registry, cs registry.ChunkServerClient, m *Metrics, logger *slog.Logger, interval time.Duration) *Loop {
	return &Loop{
		Registry: reg,
		Client:   cs,
		Metrics:  m,
		Logger:   logger,
		Interval: interval,
		Limiter:  rate.NewLimiter(rate.Limit(1000), 100),
	}
}

// Run blocks, scanning every Interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.scanOnce(ctx)
		}
	}
}

func (l *Loop) scanOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		if l.Metrics != nil {
			l.Metrics.ScanDuration.Observe(time.Since(start).Seconds())
		}
	}()

	counts := map[Class]int{}
	for _, id := range l.Registry.All() {
		rec, err := l.Registry.Get(id)
		if err != nil {
			continue
		}
		class := Classify(rec)
		counts[class]++

		switch class {
		case ClassMissing:
			l.Logger.Warn("chunk has zero valid copies", slog.Uint64("chunk_id", uint64(rec.ID)))
		case ClassUndergoal:
			l.replicateOne(ctx, rec)
		}
	}

	if l.Metrics != nil {
		for c := ClassStable; c <= ClassMissing; c++ {
			l.Metrics.ChunksByClass.WithLabelValues(c.String()).Set(float64(counts[c]))
		}
	}
}

func (l *Loop) replicateOne(ctx context.Context, rec *registry.Record) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return
	}
	targets := l.Registry.Servers.OrderedForWrite()
	holders := map[string]bool{}
	for _, c := range rec.Copies {
		holders[c.Server.String()] = true
	}
	for _, t := range targets {
		if holders[t.Address.String()] {
			continue
		}
		if err := l.Registry.Replicate(ctx, l.Client, rec.ID, t.Address); err == nil {
			if l.Metrics != nil {
				l.Metrics.ReplicateIssued.Inc()
			}
			return
		}
	}
	l.Logger.Warn("undergoal chunk has no eligible replication target", slog.Uint64("chunk_id", uint64(rec.ID)))
}
