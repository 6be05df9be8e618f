package obs

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterSetupExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	ms, err := NewMeterSetup(&buf, time.Hour)
	require.NoError(t, err)

	counter, err := ms.MeterProvider().Meter("test").Int64Counter("uistream.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, ms.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "uistream.test.count")
}

func TestNilShutdown(t *testing.T) {
	var ms *MeterSetup
	assert.NoError(t, ms.Shutdown(context.Background()))
}
