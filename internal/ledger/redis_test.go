package ledger

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// openTestRedis connects to the server named by SENTINEL_TEST_REDIS_ADDR,
// using a fresh key that is removed after the test.
func openTestRedis(t *testing.T) *RedisLedger {
	t.Helper()
	addr := os.Getenv("SENTINEL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SENTINEL_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.Key = "cybersentinel:test:" + uuid.NewString()

	r, err := OpenRedis(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenRedis() error = %v", err)
	}
	t.Cleanup(func() {
		r.client.Del(context.Background(), r.key)
		r.Close()
	})
	return r
}

func TestRedisLedger_EnsureStartup(t *testing.T) {
	r := openTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := r.EnsureStartup(ctx); err != nil {
			t.Fatalf("EnsureStartup() error = %v", err)
		}
	}

	records, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 1 || records[0].Detection != "system startup" {
		t.Errorf("records = %+v, want one startup record", records)
	}
}

func TestRedisLedger_ConcurrentAppend(t *testing.T) {
	r := openTestRedis(t)
	ctx := context.Background()

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := r.Append(ctx, newTestRecord(w*perWriter+i)); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	records, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != writers*perWriter {
		t.Fatalf("len(records) = %d, want %d", len(records), writers*perWriter)
	}
	if err := Verify(records); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestRedisLedger_SkipsMalformedEntries(t *testing.T) {
	r := openTestRedis(t)
	ctx := context.Background()

	if _, err := r.Append(ctx, newTestRecord(1)); err != nil {
		t.Fatal(err)
	}
	r.client.RPush(ctx, r.key, "{not json")
	rec, err := r.Append(ctx, newTestRecord(3))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", rec.Sequence)
	}

	records, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if err := Verify(records); err == nil {
		t.Errorf("Verify() = nil, want gap at skipped entry; records = %+v", records)
	}
}
