package services

import (
	"context"
	"errors"
	"testing"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
	apperrors "weallmesh/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDispatcher(t *testing.T, pool ports.PoolManager, factory ports.ClientFactory) *Dispatcher {
	t.Helper()
	refresh := NewRefreshService(pool, factory, nil, zaptest.NewLogger(t).Sugar(), nil)
	return NewDispatcher(pool, refresh, factory, zaptest.NewLogger(t).Sugar(), nil)
}

func TestDispatcher_SucceedsFirstAttempt(t *testing.T) {
	pool, _, _ := newTestPool(t, []string{"https://a.example"}, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	calls := 0
	err := d.Call(context.Background(), 2, func(ctx context.Context, client ports.MeshClient) error {
		calls++
		assert.Equal(t, "https://a.example", client.Base())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	snap := pool.Snapshot()
	require.Len(t, snap.Pool, 1)
	assert.Equal(t, domain.ScoreSuccessDelta, snap.Pool[0].Score)
	assert.False(t, snap.Pool[0].LastSuccessAt.IsZero())
}

func TestDispatcher_RotatesPeersAcrossRetries(t *testing.T) {
	seeds := []string{"https://a.example", "https://b.example", "https://c.example"}
	pool, _, _ := newTestPool(t, seeds, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	var tried []string
	err := d.Call(context.Background(), 2, func(ctx context.Context, client ports.MeshClient) error {
		tried = append(tried, client.Base())
		if len(tried) < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)

	// Failed peers enter cooldown, so each attempt lands on a fresh one.
	require.Len(t, tried, 3)
	assert.NotEqual(t, tried[0], tried[1])
	assert.NotEqual(t, tried[1], tried[2])
	assert.NotEqual(t, tried[0], tried[2])

	scores := make(map[string]float64)
	for _, rec := range pool.Snapshot().Pool {
		scores[rec.Base] = rec.Score
	}
	assert.Equal(t, -domain.ScoreFailureDelta, scores[tried[0]])
	assert.Equal(t, -domain.ScoreFailureDelta, scores[tried[1]])
	assert.Equal(t, domain.ScoreSuccessDelta, scores[tried[2]])
}

func TestDispatcher_ExhaustedRetriesWrapTransient(t *testing.T) {
	pool, _, _ := newTestPool(t, []string{"https://a.example"}, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	calls := 0
	err := d.Call(context.Background(), 1, func(ctx context.Context, client ports.MeshClient) error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, apperrors.ErrCodeTransientNetwork, apperrors.CodeOf(err))
}

func TestDispatcher_EmptyPoolFailsImmediately(t *testing.T) {
	pool, _, _ := newTestPool(t, nil, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	calls := 0
	err := d.Call(context.Background(), 5, func(ctx context.Context, client ports.MeshClient) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsNoPeers(err))
	assert.Equal(t, 0, calls, "no attempts burned on an empty pool")
}

func TestDispatcher_RemoteRejectionPassesThrough(t *testing.T) {
	pool, _, _ := newTestPool(t, []string{"https://a.example"}, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	err := d.Call(context.Background(), 1, func(ctx context.Context, client ports.MeshClient) error {
		return apperrors.NewRemoteRejectedError(403, "forbidden")
	})

	require.Error(t, err)
	status, rejected := apperrors.IsRemoteRejected(err)
	assert.True(t, rejected)
	assert.Equal(t, 403, status)

	// Rejections still penalize the peer that produced them.
	snap := pool.Snapshot()
	require.Len(t, snap.Pool, 1)
	assert.Equal(t, -2*domain.ScoreFailureDelta, snap.Pool[0].Score)
}

func TestDispatcher_CancelledContextStopsAttempts(t *testing.T) {
	pool, _, _ := newTestPool(t, []string{"https://a.example"}, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := d.Call(ctx, 3, func(ctx context.Context, client ports.MeshClient) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDispatch_ReturnsTypedResult(t *testing.T) {
	pool, _, _ := newTestPool(t, []string{"https://a.example"}, domain.DefaultRules())
	factory := newFakeFactory()
	d := newTestDispatcher(t, pool, factory.factory())

	type feedPage struct {
		Items []string
	}

	page, err := Dispatch(context.Background(), d, 0, func(ctx context.Context, client ports.MeshClient) (feedPage, error) {
		return feedPage{Items: []string{"post-1", "post-2"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"post-1", "post-2"}, page.Items)

	_, err = Dispatch(context.Background(), d, 0, func(ctx context.Context, client ports.MeshClient) (feedPage, error) {
		return feedPage{}, errors.New("boom")
	})
	assert.Error(t, err)
}
