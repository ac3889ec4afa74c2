//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInstrumentsUsableWithoutInit(t *testing.T) {
	// The package default is a no-op provider, so recording must be safe
	// before any explicit initialization.
	require.NotNil(t, ArtifactsCompleted)
	require.NotNil(t, CommitDuration)
	ArtifactsCompleted.Add(context.Background(), 1)
	CommitDuration.Record(context.Background(), 0.5)
}

func TestInitMeterProviderRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		_ = mp.Shutdown(context.Background())
		_ = InitMeterProvider(noop.NewMeterProvider())
	}()

	require.NoError(t, InitMeterProvider(mp))
	assert.Same(t, GetMeterProvider(), mp)

	ctx := context.Background()
	ArtifactsCompleted.Add(ctx, 2)
	DedupSkips.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			sums[m.Name] = total
		}
	}
	assert.Equal(t, int64(2), sums[MetricArtifactsCompleted])
	assert.Equal(t, int64(3), sums[MetricDedupSkips])
}
