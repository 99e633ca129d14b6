//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
)

// RedisAddr returns the archive address for integration tests, skipping
// the test when NETSHIFT_TEST_REDIS is unset.
func RedisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("NETSHIFT_TEST_REDIS")
	if addr == "" {
		t.Skip("NETSHIFT_TEST_REDIS not set - skipping redis integration test")
	}
	return addr
}

// FlushRedis clears the test database before a test run.
func FlushRedis(t *testing.T, addr string, db int) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing redis db %d: %v", db, err)
	}
}
