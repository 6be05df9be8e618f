// Package obs installs the OpenTelemetry meter provider that stream metrics
// are recorded with.
package obs

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterSetup holds the installed meter provider.
type MeterSetup struct {
	meterProvider *sdkmetric.MeterProvider
}

// NewMeterSetup creates a meter provider that periodically writes metrics as
// JSON to w and installs it as the global provider.
func NewMeterSetup(w io.Writer, interval time.Duration) (*MeterSetup, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)

	return &MeterSetup{meterProvider: meterProvider}, nil
}

// MeterProvider returns the installed provider.
func (ms *MeterSetup) MeterProvider() *sdkmetric.MeterProvider {
	return ms.meterProvider
}

// Shutdown flushes pending metrics and shuts down the meter provider.
func (ms *MeterSetup) Shutdown(ctx context.Context) error {
	if ms == nil || ms.meterProvider == nil {
		return nil
	}
	return ms.meterProvider.Shutdown(ctx)
}
