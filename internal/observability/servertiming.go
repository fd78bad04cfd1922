package observability

import (
	"context"
	"sync/atomic"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps the server-timing library's Metric type.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *ServerTimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartServerTiming starts a server-timing metric with the given name.
// Returns a metric that should be stopped when the timed operation completes.
// If server timing is not enabled or the context doesn't contain timing info, returns a no-op metric.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}

	return &ServerTimingMetric{
		metric: timing.NewMetric(name).Start(),
	}
}

// StartServerTimingWithDesc starts a server-timing metric with the given name and description.
// Returns a metric that should be stopped when the timed operation completes.
// If server timing is not enabled or the context doesn't contain timing info, returns a no-op metric.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}

	return &ServerTimingMetric{
		metric: timing.NewMetric(name).WithDesc(description).Start(),
	}
}

type dbTimeContextKey struct{}

// WithDBTimeAccumulator attaches a database-time accumulator to the context.
// The GORM timing callbacks add each statement's duration to it so the
// request layer can report an aggregate "db" metric in Server-Timing headers.
func WithDBTimeAccumulator(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbTimeContextKey{}, new(atomic.Int64))
}

// AddDBTime adds a statement duration to the context's accumulator, if any.
func AddDBTime(ctx context.Context, d time.Duration) {
	acc, ok := ctx.Value(dbTimeContextKey{}).(*atomic.Int64)
	if !ok {
		return
	}
	acc.Add(int64(d))
}

// DBTime returns the accumulated database time for the request context.
func DBTime(ctx context.Context) time.Duration {
	acc, ok := ctx.Value(dbTimeContextKey{}).(*atomic.Int64)
	if !ok {
		return 0
	}
	return time.Duration(acc.Load())
}
