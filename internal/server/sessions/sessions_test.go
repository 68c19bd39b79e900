package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *models.Session {
	exp := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Session{UserID: "u1", Email: "a@b.c", AccessToken: "acc", RefreshToken: "ref", ExpiresAt: &exp}
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)

	s := sample()
	require.NoError(t, m.Save(ctx, "id1", s, time.Hour))
	s.AccessToken = "mutated"

	got, err := m.Get(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "acc", got.AccessToken, "stored copy must not alias the caller's session")

	now = now.Add(2 * time.Hour)
	_, err = m.Get(ctx, "id1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, m.Save(ctx, "id2", sample(), 0))
	require.NoError(t, m.Delete(ctx, "id2"))
	_, err = m.Get(ctx, "id2")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

type fakeRedis struct {
	data   map[string]string
	ttl    map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedis(t *testing.T) {
	f := newFakeRedis()
	r := &Redis{client: f}
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "id1", sample(), 24*time.Hour))
	assert.Equal(t, 24*time.Hour, f.ttl["qf:session:id1"])

	var stored models.Session
	require.NoError(t, json.Unmarshal([]byte(f.data["qf:session:id1"]), &stored))
	assert.Equal(t, "ref", stored.RefreshToken)

	got, err := r.Get(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, sample(), got)

	require.NoError(t, r.Delete(ctx, "id1"))
	_, err = r.Get(ctx, "id1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRedis_Failures(t *testing.T) {
	f := newFakeRedis()
	r := &Redis{client: f}
	ctx := context.Background()

	f.getErr = errors.New("dial tcp: refused")
	_, err := r.Get(ctx, "id")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)

	f.setErr = errors.New("READONLY")
	require.ErrorIs(t, r.Save(ctx, "id", sample(), time.Hour), common.ErrStoreUnavailable)

	f.getErr = nil
	f.data["qf:session:bad"] = "{not json"
	_, err = r.Get(ctx, "bad")
	require.ErrorContains(t, err, "decode session")
}
