package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("dial tcp: connection refused"), true},
		{"server error", errors.New("GET /invoices: server error (HTTP 502): bad gateway"), true},
		{"rate limited", errors.New("GET /invoices: rate limited (HTTP 429)"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"fatal", connector.Fatal(errors.New("anything")), false},
		{"wrapped fatal", fmt.Errorf("fetch: %w", connector.Fatal(errors.New("x"))), false},
		{"cancelled", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"auth mixed case", errors.New("Authentication Failed for tenant"), false},
		{"credentials", errors.New("invalid credentials"), false},
		{"permission", errors.New("GET /x: permission denied (HTTP 403)"), false},
		{"not found", errors.New("company not found"), false},
		{"unsupported", errors.New("connector does not support push"), false},
		{"config", errors.New("invalid configuration: baseUrl is required"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(500))
	assert.Equal(t, time.Second, b.Delay(-1))

	prev := time.Duration(0)
	for i := 0; i < 100; i++ {
		d := b.Delay(i)
		assert.GreaterOrEqual(t, d, prev, "delay shrank at retry %d", i)
		prev = d
	}
}

func TestBackoff_DelayWithoutMaxSaturates(t *testing.T) {
	b := Backoff{Base: time.Second}

	assert.Equal(t, 4*time.Second, b.Delay(2))

	prev := time.Duration(0)
	for i := 0; i < 128; i++ {
		d := b.Delay(i)
		assert.Positive(t, d, "delay overflowed at retry %d", i)
		assert.GreaterOrEqual(t, d, prev, "delay shrank at retry %d", i)
		prev = d
	}
	assert.Equal(t, time.Duration(math.MaxInt64), b.Delay(64))
}
