//go:build integration

// Package integration provides integration tests that run the rate limiter and the HTTP
// surface against a real Redis instance using testcontainers-go.
package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisContainer testcontainers.Container
	redisClient    *redis.Client
	redisURL       string

	// Test context
	testCtx    context.Context
	cancelFunc context.CancelFunc
)

// TestMain sets up and tears down the Redis container.
func TestMain(m *testing.M) {
	testCtx, cancelFunc = context.WithTimeout(context.Background(), 10*time.Minute)

	if err := setupRedis(testCtx); err != nil {
		log.Printf("Container setup failed: %v", err)
		cleanup()
		cancelFunc()
		os.Exit(1)
	}

	log.Println("Redis container started successfully")

	code := m.Run()

	cleanup()
	cancelFunc()
	os.Exit(code)
}

// setupRedis starts a Redis container and connects a client to it.
func setupRedis(ctx context.Context) error {
	var err error

	log.Println("Starting Redis container...")
	redisContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start Redis container: %w", err)
	}

	redisURL, err = redisContainer.Endpoint(ctx, "redis")
	if err != nil {
		return fmt.Errorf("failed to get Redis endpoint: %w", err)
	}
	log.Printf("Redis URL: %s", redisURL)

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient = redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Println("Redis container ready")
	return nil
}

// cleanup closes the client and terminates the container.
func cleanup() {
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if redisContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate Redis container: %v", err)
		}
	}
}

// flushRedis clears all keys so tests do not share windows.
func flushRedis(t *testing.T) {
	t.Helper()
	if err := redisClient.FlushDB(testCtx).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
