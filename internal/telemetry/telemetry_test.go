// internal/telemetry/telemetry_test.go
package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Options{Enabled: true, ServiceName: "github-integration", Version: "test", Writer: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init(ctx, Options{}) })

	_, span := otel.Tracer("test").Start(ctx, "resync")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := otel.Meter("test").Int64Counter("github_sync.runs")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), `"Name":"resync"`)
	assert.Contains(t, buf.String(), "github_sync.runs")
}
