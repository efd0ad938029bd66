package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/config"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/storage"
)

var errDown = errors.New("connection refused")

// brokenRemote отказывает на каждой операции.
type brokenRemote struct {
	calls int
}

func (b *brokenRemote) Get(context.Context, string) ([]byte, error) {
	b.calls++
	return nil, errDown
}

func (b *brokenRemote) Set(context.Context, string, []byte, ...SetOption) error {
	b.calls++
	return errDown
}

func (b *brokenRemote) Del(context.Context, string) error {
	b.calls++
	return errDown
}

func (b *brokenRemote) Keys(context.Context, string) ([]string, error) {
	b.calls++
	return nil, errDown
}

func (b *brokenRemote) MGet(context.Context, []string) ([][]byte, error) {
	b.calls++
	return nil, errDown
}

func (b *brokenRemote) Exists(context.Context, string) (bool, error) {
	b.calls++
	return false, errDown
}

func (b *brokenRemote) Name() Backend { return BackendRedis }

func (b *brokenRemote) Ping(context.Context) error { return errDown }

func (b *brokenRemote) Close() error { return nil }

func newTestAdapter(t *testing.T, remote Remote) (*Adapter, *LocalStore) {
	t.Helper()
	local := OpenLocal(filepath.Join(t.TempDir(), "store.json"), sl.Discard())
	return NewAdapter(local, remote, sl.Discard()), local
}

func TestAdapter_LocalOnly(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t, nil)

	assert.Equal(t, BackendLocal, a.Backend())
	require.NoError(t, a.Probe(ctx))
	require.NoError(t, a.Set(ctx, "k", []byte(`1`)))

	res, err := a.GetFrom(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, res.Backend)
	assert.False(t, a.Degraded())
}

func TestAdapter_FallsBackOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := &brokenRemote{}
	a, local := newTestAdapter(t, remote)

	require.NoError(t, a.Set(ctx, "user:1", []byte(`{"balance":1}`)))
	assert.True(t, a.Degraded())

	res, err := a.GetFrom(ctx, "user:1")
	require.NoError(t, err, "remote error must not reach the caller")
	assert.Equal(t, BackendLocal, res.Backend)
	assert.JSONEq(t, `{"balance":1}`, string(res.Value))

	ok, err := local.Exists(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := a.Keys(ctx, "user:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1"}, keys)

	values, err := a.MGet(ctx, []string{"user:1", "user:2"})
	require.NoError(t, err)
	assert.Nil(t, values[1])

	exists, err := a.Exists(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, a.Del(ctx, "user:1"))
	_, err = a.Get(ctx, "user:1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, 7, remote.calls)
}

func TestAdapter_ProbeFailureIsReported(t *testing.T) {
	a, _ := newTestAdapter(t, &brokenRemote{})

	err := a.Probe(context.Background())
	assert.ErrorIs(t, err, errDown)
	assert.True(t, a.Degraded())
}

func TestAdapter_ServesFromRedis(t *testing.T) {
	ctx := context.Background()
	remote, mr := setupTestRedis(t)
	a, local := newTestAdapter(t, remote)

	require.NoError(t, a.Probe(ctx))
	require.NoError(t, a.Set(ctx, "package:1", []byte(`{"name":"aim"}`)))

	res, err := a.GetFrom(ctx, "package:1")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, res.Backend)
	assert.False(t, a.Degraded())

	ok, err := local.Exists(ctx, "package:1")
	require.NoError(t, err)
	assert.False(t, ok, "healthy remote writes must not touch the local file")

	_, err = a.GetFrom(ctx, "package:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, a.Degraded(), "a missing key is not a remote failure")

	mr.Close()
	require.NoError(t, a.Set(ctx, "package:2", []byte(`{"name":"esp"}`)))
	assert.True(t, a.Degraded())

	res, err = a.GetFrom(ctx, "package:2")
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, res.Backend)
}

func TestOpen_SelectsBackendByScheme(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Backend
		wantErr bool
	}{
		{name: "empty is local", url: "", want: BackendLocal},
		{name: "redis", url: "redis://localhost:6379/0", want: BackendRedis},
		{name: "rediss", url: "rediss://localhost:6380/0", want: BackendRedis},
		{name: "postgres", url: "postgres://u:p@localhost:5432/db", want: BackendPostgres},
		{name: "postgresql", url: "postgresql://u:p@localhost:5432/db", want: BackendPostgres},
		{name: "unknown scheme", url: "mongodb://localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Storage{
				RemoteURL:      tt.url,
				LocalPath:      filepath.Join(t.TempDir(), "store.json"),
				ConnectRetries: 1,
			}
			a, err := Open(cfg, config.RedisConnection{}, sl.Discard())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })
			assert.Equal(t, tt.want, a.Backend())
		})
	}
}

func TestAdapter_RedisUnreachableAtStartup(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	a, err := Open(config.Storage{
		RemoteURL:      "redis://" + addr + "/0",
		LocalPath:      filepath.Join(t.TempDir(), "store.json"),
		ConnectRetries: 2,
	}, config.RedisConnection{}, sl.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Error(t, a.Probe(ctx))

	require.NoError(t, a.Set(ctx, "settings:main", []byte(`{}`)))
	res, err := a.GetFrom(ctx, "settings:main")
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, res.Backend)
}
