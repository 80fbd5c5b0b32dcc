package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/config"
	"igfetch/pkg/errors"
)

func TestCanonicalKey(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example/a.jpg?x=1&sig=abc&exp=2": "https://cdn.example/a.jpg?x=1",
		"https://cdn.example/a.jpg":                   "https://cdn.example/a.jpg",
		"https://cdn.example/a.jpg?only=1":            "https://cdn.example/a.jpg?only=1",
		"&leading":                                    "",
		"":                                            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalKey(in), in)
	}
}

func TestFileLedgerCreatesAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "downloaded_links.txt")

	l, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.FileExists(t, path)

	require.NoError(t, l.Record(ctx, "https://cdn/a.jpg?x=1"))
	require.NoError(t, l.Record(ctx, "https://cdn/a.jpg?x=1"))
	require.NoError(t, l.Record(ctx, "https://cdn/b.mp4?x=2"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.jpg?x=1\nhttps://cdn/b.mp4?x=2\n", string(data))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	defer reopened.Close()

	has, err := reopened.Has(ctx, "https://cdn/b.mp4?x=2")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 2, reopened.Len())
}

func TestFileLedgerCanonicalisesLegacyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded_links.txt")
	legacy := "https://cdn/a.jpg?x=1&sig=old\n\n  https://cdn/b.jpg  \n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	l, err := OpenFile(path)
	require.NoError(t, err)
	defer l.Close()

	has, _ := l.Has(context.Background(), CanonicalKey("https://cdn/a.jpg?x=1&sig=new"))
	assert.True(t, has)
	has, _ = l.Has(context.Background(), "https://cdn/b.jpg")
	assert.True(t, has)
	assert.Equal(t, 2, l.Len())
}

func TestFileLedgerRecordAfterCloseLeavesMemoryUntouched(t *testing.T) {
	l, err := OpenFile(filepath.Join(t.TempDir(), "ledger.txt"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	err = l.Record(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLedgerIO))

	has, _ := l.Has(context.Background(), "k")
	assert.False(t, has)
	assert.NoError(t, l.Close())
}

func TestFileLedgerOpenFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenFile(dir)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLedgerIO))
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	l, err := OpenRedis(ctx, RedisOptions{Addr: mr.Addr(), SetKey: "test:ledger"})
	require.NoError(t, err)
	defer l.Close()

	has, err := l.Has(ctx, "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, l.Record(ctx, "https://cdn/a.jpg"))
	require.NoError(t, l.Record(ctx, "https://cdn/a.jpg"))

	has, err = l.Has(ctx, "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.True(t, has)

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	members, err := mr.SMembers("test:ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.jpg"}, members)
}

func TestRedisLedgerSharedBetweenClients(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	b := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Record(ctx, "shared"))
	has, err := b.Has(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRedisLedgerUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := OpenRedis(ctx, RedisOptions{Addr: addr})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLedgerIO))
}

func TestKeyLocksSerialiseSameKey(t *testing.T) {
	locks := NewKeyLocks()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("same")
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.Size())
}

func TestKeyLocksDistinctKeysDoNotBlock(t *testing.T) {
	locks := NewKeyLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestDedupUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFile(filepath.Join(t.TempDir(), "ledger.txt"))
	require.NoError(t, err)
	defer l.Close()

	locks := NewKeyLocks()
	var saved int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := CanonicalKey("https://cdn/a.jpg?x=1&sig=random")
			unlock := locks.Lock(key)
			defer unlock()
			if has, _ := l.Has(ctx, key); has {
				return
			}
			atomic.AddInt32(&saved, 1)
			require.NoError(t, l.Record(ctx, key))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), saved)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	fl, err := Open(ctx, config.LedgerConfig{Backend: config.LedgerFile, Path: filepath.Join(t.TempDir(), "l.txt")})
	require.NoError(t, err)
	defer fl.Close()
	assert.IsType(t, &FileLedger{}, fl)

	mr := miniredis.RunT(t)
	rl, err := Open(ctx, config.LedgerConfig{Backend: config.LedgerRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer rl.Close()
	assert.IsType(t, &RedisLedger{}, rl)

	_, err = Open(ctx, config.LedgerConfig{Backend: "sqlite"})
	assert.Error(t, err)
}
