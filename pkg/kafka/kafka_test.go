package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitter(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	// first attempt stays within [min/2, min]
	d := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, d, min/2)
	assert.LessOrEqual(t, d, min)
}

func TestHookChain_ThreadsDataAndStopsOnError(t *testing.T) {
	var order []string
	upper := HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, b []byte) (context.Context, kafka.Message, []byte, error) {
		order = append(order, "a")
		return ctx, km, append(b, '!'), nil
	}}
	check := HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, b []byte) (context.Context, kafka.Message, []byte, error) {
		order = append(order, "b")
		if string(b) != "x!" {
			return ctx, km, b, errors.New("not threaded")
		}
		return ctx, km, b, nil
	}}

	chain := NewHookChain(upper, nil, check)
	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x!", string(data))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestHookChain_RecoversPanics(t *testing.T) {
	var errSeen error
	boom := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { errSeen = err },
	}
	_, _, _, err := NewHookChain(boom).BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, err, errSeen)
}

func TestLoggingHook_RejectsEmptyPayload(t *testing.T) {
	_, _, _, err := LoggingHook{}.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_VALIDATION", he.Code)
}
