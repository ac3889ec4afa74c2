//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package metric exposes the engine's OpenTelemetry instruments. Until
// InitMeterProvider is called every instrument is backed by a no-op
// provider, so instrumented code never has to nil-check.
package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Meter names.
const (
	MeterNameEngine = "artifactstream.engine"
	MeterNameChat   = "artifactstream.chat"
)

// Metric names.
const (
	MetricArtifactsCompleted = "artifactstream.engine.artifacts.completed"
	MetricParseFallbacks     = "artifactstream.engine.parse.fallbacks"
	MetricStreamFailures     = "artifactstream.engine.stream.failures"
	MetricMessagesStored     = "artifactstream.chat.commit.messages.stored"
	MetricDedupSkips         = "artifactstream.chat.commit.dedup.skips"
	MetricCommitDuration     = "artifactstream.chat.commit.duration"
)

// Package-level instruments. They are replaced by InitMeterProvider.
var (
	meterProvider metric.MeterProvider

	// ArtifactsCompleted counts artifacts that reached the completed status.
	ArtifactsCompleted metric.Int64Counter
	// ParseFallbacks counts typed blocks whose payload could not be parsed
	// and fell back to synthesized data.
	ParseFallbacks metric.Int64Counter
	// StreamFailures counts sessions poisoned by sequence violations.
	StreamFailures metric.Int64Counter
	// MessagesStored counts messages durably written at commit time.
	MessagesStored metric.Int64Counter
	// DedupSkips counts messages skipped at commit time because their ID
	// was already stored.
	DedupSkips metric.Int64Counter
	// CommitDuration records the wall time of one persistence commit.
	CommitDuration metric.Float64Histogram
)

func init() {
	// Instruments from the no-op provider never fail.
	_ = InitMeterProvider(noop.NewMeterProvider())
}

// InitMeterProvider initializes the package instruments against the given
// provider.
func InitMeterProvider(mp metric.MeterProvider) error {
	meterProvider = mp

	engineMeter := mp.Meter(MeterNameEngine)
	var err error
	if ArtifactsCompleted, err = engineMeter.Int64Counter(
		MetricArtifactsCompleted,
		metric.WithDescription("Total number of artifacts that reached the completed status"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create engine metric ArtifactsCompleted: %w", err)
	}
	if ParseFallbacks, err = engineMeter.Int64Counter(
		MetricParseFallbacks,
		metric.WithDescription("Total number of typed blocks that fell back to synthesized data"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create engine metric ParseFallbacks: %w", err)
	}
	if StreamFailures, err = engineMeter.Int64Counter(
		MetricStreamFailures,
		metric.WithDescription("Total number of sessions poisoned by sequence violations"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create engine metric StreamFailures: %w", err)
	}

	chatMeter := mp.Meter(MeterNameChat)
	if MessagesStored, err = chatMeter.Int64Counter(
		MetricMessagesStored,
		metric.WithDescription("Total number of messages durably written at commit time"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create chat metric MessagesStored: %w", err)
	}
	if DedupSkips, err = chatMeter.Int64Counter(
		MetricDedupSkips,
		metric.WithDescription("Total number of messages skipped at commit time as already stored"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create chat metric DedupSkips: %w", err)
	}
	if CommitDuration, err = chatMeter.Float64Histogram(
		MetricCommitDuration,
		metric.WithDescription("Duration of one persistence commit"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create chat metric CommitDuration: %w", err)
	}
	return nil
}

// GetMeterProvider returns the meter provider.
func GetMeterProvider() metric.MeterProvider {
	return meterProvider
}

// NewMeterProvider creates an SDK meter provider carrying the service
// resource, initializes the package instruments against it, and returns
// it for shutdown by the caller.
func NewMeterProvider(ctx context.Context, serviceName string, opts ...sdkmetric.Option) (*sdkmetric.MeterProvider, error) {
	if serviceName == "" {
		serviceName = "artifactstream"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource failed: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(append([]sdkmetric.Option{sdkmetric.WithResource(res)}, opts...)...)
	if err := InitMeterProvider(mp); err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	return mp, nil
}
