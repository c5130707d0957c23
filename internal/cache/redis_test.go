package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// getTestRedisClient connects to TEST_REDIS_URL or skips.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStandingsRoundTripAndInvalidate(t *testing.T) {
	client := getTestRedisClient(t)
	ctx := context.Background()
	c := NewStandings(client, time.Minute)
	season := 1900 + int(time.Now().UnixNano()%1000)

	type row struct {
		Name   string
		Points int
	}
	if err := c.Set(ctx, season, "all:10", []row{{"ana", 40}}); err != nil {
		t.Fatal(err)
	}
	var got []row
	ok, err := c.Get(ctx, season, "all:10", &got)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].Points != 40 {
		t.Errorf("Unexpected value %+v", got)
	}

	if err := c.Invalidate(ctx, season); err != nil {
		t.Fatal(err)
	}
	ok, _ = c.Get(ctx, season, "all:10", &got)
	if ok {
		t.Error("Expected miss after invalidate")
	}
}

func TestLockerExclusive(t *testing.T) {
	client := getTestRedisClient(t)
	ctx := context.Background()
	l := NewLocker(client, "test:lock:")
	name := time.Now().Format(time.RFC3339Nano)

	release, ok, err := l.TryLock(ctx, name, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first lock, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, name, time.Minute); ok {
		t.Error("Expected second lock to be refused")
	}
	release()
	release2, ok, _ := l.TryLock(ctx, name, time.Minute)
	if !ok {
		t.Error("Expected lock to be free after release")
	}
	release2()
}
