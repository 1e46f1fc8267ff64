package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser(t *testing.T) {
	_, ok := User(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), "reviewer")
	u, ok := User(ctx)
	assert.True(t, ok)
	assert.Equal(t, "reviewer", u)

	// 空值视为未设置
	_, ok = User(WithUser(context.Background(), ""))
	assert.False(t, ok)
}

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	id, ok := RequestID(WithRequestID(context.Background(), "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestKeysDoNotCollide(t *testing.T) {
	ctx := WithRequestID(WithUser(context.Background(), "alice"), "req-9")
	u, _ := User(ctx)
	id, _ := RequestID(ctx)
	assert.Equal(t, "alice", u)
	assert.Equal(t, "req-9", id)
}
