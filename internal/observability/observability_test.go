package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithServiceName("test-service"),
		WithDetailedDBTracing(),
		WithServerTiming(),
	)

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected service name 'test-service', got '%s'", cfg.ServiceName)
	}
	if !cfg.EnableDetailedDBTracing {
		t.Error("expected detailed DB tracing to be enabled")
	}
	if !cfg.ServerTimingEnabled() {
		t.Error("expected server timing to be enabled")
	}
}

func TestConfigInitialize(t *testing.T) {
	tp := tracenoop.NewTracerProvider()
	mp := noop.NewMeterProvider()

	cfg := NewConfig(
		WithTracerProvider(tp),
		WithMeterProvider(mp),
		WithServiceName("test-service"),
	)

	if err := cfg.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tracer() == nil {
		t.Error("expected tracer to be initialized")
	}
	if cfg.Metrics() == nil {
		t.Error("expected metrics to be initialized")
	}
	if !cfg.IsEnabled() {
		t.Error("expected observability to report enabled")
	}
}

func TestConfigInitializeNoProviders(t *testing.T) {
	cfg := NewConfig(WithServiceName("test-service"))

	if err := cfg.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should get noop implementations
	if cfg.Tracer() == nil {
		t.Error("expected noop tracer to be returned")
	}
	if cfg.Metrics() == nil {
		t.Error("expected noop metrics to be returned")
	}
	if cfg.IsEnabled() {
		t.Error("expected observability to report disabled")
	}
}

func TestNoopTracerSpans(t *testing.T) {
	tracer := NewNoopTracer()
	ctx := context.Background()

	// Span creation methods must not panic without a real provider.
	ctx, span := tracer.StartSpan(ctx, "test")
	span.End()

	ctx, span = tracer.StartFindOrCreate(ctx, "Patient")
	span.End()

	ctx, span = tracer.StartClaim(ctx, "search-1")
	span.End()

	ctx, span = tracer.StartAppend(ctx, "search-1", 50)
	span.End()

	ctx, span = tracer.StartFetchPage(ctx, "search-1", 0, 25)
	span.End()

	_, span = tracer.StartEvictionPass(ctx)
	span.End()
}

func TestNoopMetricsRecording(t *testing.T) {
	metrics := NewNoopMetrics()
	ctx := context.Background()

	// Recording methods must not panic without a real provider.
	metrics.RecordSearchCreated(ctx, "Patient")
	metrics.RecordCacheLookup(ctx, "Patient", true)
	metrics.RecordClaim(ctx, false)
	metrics.RecordAppend(ctx, 100)
	metrics.RecordPage(ctx, 25, true, 12*time.Millisecond)
	metrics.RecordSweep(ctx, 3, 2, 1, 1500)
	metrics.RecordDBQuery(ctx, "SELECT", time.Millisecond)
	metrics.RecordError(ctx, OpFetchPage, "not_found")
}

func TestRegisterGORMCallbacksDisabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// Without a tracer provider or detailed tracing, registration is a no-op.
	if err := RegisterGORMCallbacks(db, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := NewConfig()
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterGORMCallbacksEnabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cfg := NewConfig(
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithDetailedDBTracing(),
	)
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("RegisterGORMCallbacks error: %v", err)
	}

	type probe struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	if err := db.AutoMigrate(&probe{}); err != nil {
		t.Fatalf("AutoMigrate error: %v", err)
	}
	if err := db.Create(&probe{Name: "a"}).Error; err != nil {
		t.Fatalf("Create error: %v", err)
	}
	var out probe
	if err := db.First(&out).Error; err != nil {
		t.Fatalf("First error: %v", err)
	}
}

func TestDBTimeAccumulator(t *testing.T) {
	ctx := WithDBTimeAccumulator(context.Background())

	AddDBTime(ctx, 5*time.Millisecond)
	AddDBTime(ctx, 7*time.Millisecond)

	if got := DBTime(ctx); got != 12*time.Millisecond {
		t.Fatalf("expected 12ms accumulated, got %v", got)
	}

	// A context without an accumulator is a no-op.
	AddDBTime(context.Background(), time.Second)
	if got := DBTime(context.Background()); got != 0 {
		t.Fatalf("expected zero without accumulator, got %v", got)
	}
}

func TestServerTimingCallbacks(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := RegisterServerTimingCallbacks(db); err != nil {
		t.Fatalf("RegisterServerTimingCallbacks error: %v", err)
	}

	type probe struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	if err := db.AutoMigrate(&probe{}); err != nil {
		t.Fatalf("AutoMigrate error: %v", err)
	}

	ctx := WithDBTimeAccumulator(context.Background())
	if err := db.WithContext(ctx).Create(&probe{Name: "a"}).Error; err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if DBTime(ctx) <= 0 {
		t.Fatal("expected accumulated database time after a statement")
	}
}
