package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAll(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("database", CheckFunc(func(ctx context.Context) error { return nil }))
	r.Register("redis", CheckFunc(func(ctx context.Context) error { return errors.New("connection refused") }))

	assert.Equal(t, []string{"database", "redis"}, r.List())

	results := r.CheckAll(context.Background())
	assert.NoError(t, results["database"])
	assert.EqualError(t, results["redis"], "connection refused")
	assert.False(t, Healthy(results))

	r.Unregister("redis")
	assert.True(t, Healthy(r.CheckAll(context.Background())))
}

func TestCheckAllBoundsSlowChecks(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results := r.CheckAll(context.Background())
	assert.ErrorIs(t, results["slow"], context.DeadlineExceeded)
}
