package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetClientID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientID(ctx, "203.0.113.7")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "203.0.113.7", GetClientID(ctx))
}
