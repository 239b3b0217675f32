// ABOUTME: Tests for content generators and the badger cache
// ABOUTME: Covers disabled mode, static mode, cache hits, and failure pass-through
package content

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/demogen/config"
)

type countingGenerator struct {
	inner Generator
	calls atomic.Int64
}

func (c *countingGenerator) Generate(ctx context.Context, kind Kind, cc Context) (string, error) {
	c.calls.Add(1)
	return c.inner.Generate(ctx, kind, cc)
}

func TestDisabledAlwaysUnavailable(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), KindMeetingNotes, Context{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStaticPerKind(t *testing.T) {
	gen := Static{KindEmailBody: "Thanks for the call."}

	text, err := gen.Generate(context.Background(), KindEmailBody, Context{})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for the call.", text)

	_, err = gen.Generate(context.Background(), KindMeetingNotes, Context{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheHitSkipsInner(t *testing.T) {
	counting := &countingGenerator{inner: Static{KindMeetingNotes: "Agenda: walk through the demo."}}
	cache, err := OpenCache(t.TempDir(), counting)
	require.NoError(t, err)
	defer cache.Close()

	cc := Context{Subject: "Product Demo", RecordName: "Acme", Timeframe: "future"}

	first, err := cache.Generate(context.Background(), KindMeetingNotes, cc)
	require.NoError(t, err)
	second, err := cache.Generate(context.Background(), KindMeetingNotes, cc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.calls.Load())

	// A different context misses the cache.
	_, err = cache.Generate(context.Background(), KindMeetingNotes, Context{Subject: "Pricing Discussion"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counting.calls.Load())
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	counting := &countingGenerator{inner: Disabled{}}
	cache, err := OpenCache(t.TempDir(), counting)
	require.NoError(t, err)
	defer cache.Close()

	for i := 0; i < 3; i++ {
		_, err := cache.Generate(context.Background(), KindEmailBody, Context{Subject: "x"})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int64(3), counting.calls.Load())
}

func TestNewClientValidation(t *testing.T) {
	cfg := config.Default().LLM

	_, err := NewClient(cfg, "")
	assert.Error(t, err)

	cfg.Model = ""
	_, err = NewClient(cfg, "sk-test")
	assert.Error(t, err)

	cfg = config.Default().LLM
	client, err := NewClient(cfg, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", client.baseURL)
}
