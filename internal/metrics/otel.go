/*
Portions adapted from NVIDIA OSMO (src/utils/metrics-go/metrics.go).
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// MetricCreator records metrics through an OTLP exporter. A nil
// *MetricCreator is valid and records nothing.
type MetricCreator struct {
	meterProvider  *sdkmetric.MeterProvider
	meter          metric.Meter
	counterCache   sync.Map // map[string]metric.Int64Counter
	histogramCache sync.Map // map[string]metric.Float64Histogram
	globalTags     map[string]string
}

// NewMetricCreator builds a MetricCreator exporting to cfg.OTLPEndpoint. It
// returns nil without error when OTLP export is disabled.
func NewMetricCreator(serviceName string, cfg config.MetricsConfig, globalTags map[string]string) (*MetricCreator, error) {
	if !cfg.OTelEnabled {
		return nil, nil
	}
	ctx := context.Background()

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	interval := config.Duration(cfg.ExportInterval)
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	return newMetricCreator(serviceName, cfg.ServiceVersion, reader, res, globalTags), nil
}

func newMetricCreator(serviceName, version string, reader sdkmetric.Reader, res *resource.Resource, globalTags map[string]string) *MetricCreator {
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	provider := sdkmetric.NewMeterProvider(opts...)

	tags := make(map[string]string, len(globalTags))
	for k, v := range globalTags {
		tags[k] = v
	}

	meterName := serviceName
	if version != "" {
		meterName = serviceName + "@" + version
	}
	return &MetricCreator{
		meterProvider: provider,
		meter:         provider.Meter(meterName),
		globalTags:    tags,
	}
}

// RecordSession adds the session's chunk counts and duration.
func (mc *MetricCreator) RecordSession(ctx context.Context, r *model.Report) error {
	if mc == nil {
		return nil
	}
	tags := map[string]string{"role": string(r.Role), "outcome": outcome(r)}
	if err := mc.RecordCounter(ctx, ChunksSentTotal, int64(r.TotalSent), "{chunk}", "Chunks written by sessions", tags); err != nil {
		return err
	}
	if err := mc.RecordCounter(ctx, ChunksReceivedTotal, int64(r.TotalReceived), "{chunk}", "Chunks read by sessions", tags); err != nil {
		return err
	}
	if err := mc.RecordCounter(ctx, SessionsTotal, 1, "{session}", "Finished sessions", tags); err != nil {
		return err
	}
	return mc.RecordHistogram(ctx, SessionDuration, durationSeconds(r), "s", "Session duration", tags)
}

// RecordCounter records an integer counter metric.
func (mc *MetricCreator) RecordCounter(ctx context.Context, name string, value int64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}
	counter, err := mc.getOrCreateCounter(name, unit, description)
	if err != nil {
		return err
	}
	counter.Add(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

// RecordHistogram records a floating-point histogram metric.
func (mc *MetricCreator) RecordHistogram(ctx context.Context, name string, value float64, unit, description string, tags map[string]string) error {
	if mc == nil {
		return nil
	}
	histogram, err := mc.getOrCreateHistogram(name, unit, description)
	if err != nil {
		return err
	}
	histogram.Record(ctx, value, metric.WithAttributes(mc.buildAttributes(tags)...))
	return nil
}

func (mc *MetricCreator) getOrCreateCounter(name, unit, description string) (metric.Int64Counter, error) {
	if cached, ok := mc.counterCache.Load(name); ok {
		return cached.(metric.Int64Counter), nil
	}
	counter, err := mc.meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	actual, _ := mc.counterCache.LoadOrStore(name, counter)
	return actual.(metric.Int64Counter), nil
}

func (mc *MetricCreator) getOrCreateHistogram(name, unit, description string) (metric.Float64Histogram, error) {
	if cached, ok := mc.histogramCache.Load(name); ok {
		return cached.(metric.Float64Histogram), nil
	}
	histogram, err := mc.meter.Float64Histogram(name, metric.WithUnit(unit), metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	actual, _ := mc.histogramCache.LoadOrStore(name, histogram)
	return actual.(metric.Float64Histogram), nil
}

func (mc *MetricCreator) buildAttributes(callTags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(mc.globalTags)+len(callTags))
	for k, v := range mc.globalTags {
		attrs = append(attrs, attribute.String(k, v))
	}
	// Call tags may override globals.
	for k, v := range callTags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// Shutdown flushes pending metrics and stops the exporter.
func (mc *MetricCreator) Shutdown(ctx context.Context) error {
	if mc == nil || mc.meterProvider == nil {
		return nil
	}
	return mc.meterProvider.Shutdown(ctx)
}
