package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasniff/internal/domain"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// forEachBackend runs fn against a fresh registry of every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, reg Registry)) {
	t.Helper()
	for _, backend := range []string{BackendMemory, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			reg, err := New(backend, testLogger())
			require.NoError(t, err, "Failed to create %s registry", backend)
			t.Cleanup(func() {
				assert.NoError(t, reg.Close())
			})
			fn(t, reg)
		})
	}
}

func TestRegistry_RecordDeduplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		ctx := context.Background()
		u1 := "https://cdn.example.com/a.mp4"
		u2 := "https://cdn.example.com/b.m3u8"

		require.NoError(t, reg.Record(ctx, 3, u1))
		require.NoError(t, reg.Record(ctx, 3, u1))
		require.NoError(t, reg.Record(ctx, 3, u2))

		links, err := reg.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{u1, u2}, links, "duplicate insert must be a no-op and order kept")
	})
}

func TestRegistry_RejectsInvalidInput(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		ctx := context.Background()

		require.NoError(t, reg.Record(ctx, -1, "https://cdn.example.com/a.mp4"))
		require.NoError(t, reg.Record(ctx, domain.NoTab, "https://cdn.example.com/b.mp4"))
		require.NoError(t, reg.Record(ctx, 4, ""))

		links, err := reg.Get(ctx, domain.NoTab)
		require.NoError(t, err)
		assert.Empty(t, links)

		links, err = reg.Get(ctx, 4)
		require.NoError(t, err)
		assert.Empty(t, links)

		ok, err := reg.Clear(ctx, 4)
		require.NoError(t, err)
		assert.False(t, ok, "an empty URL must not create an entry")
	})
}

func TestRegistry_GetUnknownTab(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		links, err := reg.Get(context.Background(), 42)
		require.NoError(t, err)
		assert.NotNil(t, links)
		assert.Empty(t, links)
	})
}

func TestRegistry_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		ctx := context.Background()

		ok, err := reg.Clear(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok, "clearing an absent entry reports failure")

		require.NoError(t, reg.Record(ctx, 7, "https://cdn.example.com/a.webm"))
		ok, err = reg.Clear(ctx, 7)
		require.NoError(t, err)
		assert.True(t, ok)

		links, err := reg.Get(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, links)

		ok, err = reg.Clear(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRegistry_EvictIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		ctx := context.Background()

		require.NoError(t, reg.Record(ctx, 1, "https://cdn.example.com/a.mp4"))
		require.NoError(t, reg.Record(ctx, 12, "https://cdn.example.com/b.mp4"))

		require.NoError(t, reg.Evict(ctx, 1))
		require.NoError(t, reg.Evict(ctx, 1))
		require.NoError(t, reg.Evict(ctx, 99))

		links, err := reg.Get(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, links)

		// Tab 12 shares a digit prefix with tab 1 and must survive.
		links, err = reg.Get(ctx, 12)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://cdn.example.com/b.mp4"}, links)
	})
}

func TestRegistry_TabsAreIndependent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		ctx := context.Background()

		require.NoError(t, reg.Record(ctx, 0, "https://a.example.com/x.mp4"))
		require.NoError(t, reg.Record(ctx, 2, "https://b.example.com/y.mp4"))

		links, err := reg.Get(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example.com/x.mp4"}, links, "tab 0 is a valid tab")

		ok, err := reg.Clear(ctx, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		links, err = reg.Get(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, links, 1)
	})
}

func TestRegistry_ConcurrentRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, reg Registry) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					_ = reg.Record(ctx, 5, fmt.Sprintf("https://cdn.example.com/%d.mp4", j))
				}
			}(i)
		}
		wg.Wait()

		links, err := reg.Get(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, links, 25)
	})
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New("redis", testLogger())
	assert.Error(t, err)
}
