package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanWithoutTracer(t *testing.T) {
	SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Nil(t, GetActiveSpan(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTraceParent(ctx))
}

func TestSetupWithoutExport(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "fern-test"})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, shutdown(context.Background()))
		SetTracer(nil)
	}()

	ctx, span := StartSpan(context.Background(), "window")
	defer span.End()

	assert.Len(t, GetTraceID(ctx), 32)
	assert.Contains(t, GetTraceParent(ctx), GetTraceID(ctx))
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.OTLP.Protocol = "carrier-pigeon"

	_, err := Setup(context.Background(), cfg)
	assert.Error(t, err)
}

func TestStartSpanAttributesAndFail(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("fern-test"))
	defer SetTracer(nil)

	_, span := StartSpan(context.Background(), "Loader.LoadTable", attribute.String("table", "tenders"))
	Fail(span, errors.New("check constraint"), "insert failed")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Loader.LoadTable", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("table", "tenders"))
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "insert failed", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}
