// Package integration provides integration tests that run the rate limiter and the HTTP
// surface against a real Redis instance started with testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
