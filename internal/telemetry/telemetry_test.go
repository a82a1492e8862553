package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestSetup_ZeroConfigIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "lorrigen-test", Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewResource_MergesWithSDKDefault(t *testing.T) {
	res, err := newResource("lorrigen-test")
	require.NoError(t, err)
	assert.Equal(t, resource.Default().SchemaURL(), res.SchemaURL())

	name, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "lorrigen-test", name.AsString())
}

func TestSetup_EveryProviderCombinationStarts(t *testing.T) {
	cases := map[string]Config{
		"stdout":   {StdOut: true, StdOutWriter: &bytes.Buffer{}},
		"textfile": {Textfile: filepath.Join(t.TempDir(), "m.prom")},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), "lorrigen-test", cfg)
			require.NoError(t, err)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestSetup_WritesTextfileOnShutdown(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lorrigen.prom")

	shutdown, err := Setup(ctx, "lorrigen-test", Config{Textfile: path})
	require.NoError(t, err)

	counter, err := otel.Meter("telemetry-test").Int64Counter("test.runs")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	assert.NoFileExists(t, path)
	require.NoError(t, shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_runs")
}

func TestSetup_StdOutGoesToWriter(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	shutdown, err := Setup(ctx, "lorrigen-test", Config{StdOut: true, StdOutWriter: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(ctx, "stage")
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), `"Name": "stage"`)
}

func TestSetup_ShutdownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Setup(ctx, "lorrigen-test", Config{Textfile: filepath.Join(t.TempDir(), "m.prom")})
	require.NoError(t, err)

	require.NoError(t, shutdown(ctx))
	assert.NoError(t, shutdown(ctx))
}
