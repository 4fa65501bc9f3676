package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/infrastructure/resilience"
)

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "canceled", err: context.Canceled},
		{name: "no servers", err: fmt.Errorf("publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "timeout", err: nats.ErrTimeout, retryable: true, record: true},
		{name: "bad subject", err: nats.ErrBadSubject, record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyPublishError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("classifyPublishError(%v) = %+v", tc.err, class)
			}
		})
	}
}

func TestWrapPublishError(t *testing.T) {
	if err := wrapPublishError(nats.ErrConnectionClosed); !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	permanent := errors.New("bad payload")
	if err := wrapPublishError(permanent); errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("permanent errors must not be temporary: %v", err)
	}
}

func TestHandlerContextHonoursTimeout(t *testing.T) {
	q := &Queue{handlerTimeout: 5 * time.Millisecond, executor: resilience.NewExecutor(resilience.DefaultConfig())}
	ctx, cancel := q.handlerContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected a deadline on the handler context")
	}

	q.handlerTimeout = 0
	ctx, cancel = q.handlerContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline without a handler timeout")
	}
}
