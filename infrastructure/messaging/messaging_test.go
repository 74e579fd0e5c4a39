package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stackture/domain/events"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, domainEvents ...events.DomainEvent) error {
	return m.Called(ctx, len(domainEvents)).Error(0)
}

func TestBreakerPublisher_OpensAfterFailures(t *testing.T) {
	next := new(mockPublisher)
	next.On("Publish", mock.Anything, 1).Return(errors.New("bus unavailable"))

	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	cfg.Timeout = time.Hour
	p := NewBreakerPublisher(next, cfg, zap.NewNop())
	event := events.NewRootCreated(1, 1, "Root", time.Now())

	assert.Error(t, p.Publish(context.Background(), event))
	assert.Error(t, p.Publish(context.Background(), event))
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(context.Background(), event)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	next.AssertNumberOfCalls(t, "Publish", 2)
}

func TestBreakerPublisher_PassesThroughSuccess(t *testing.T) {
	next := new(mockPublisher)
	next.On("Publish", mock.Anything, 2).Return(nil)
	p := NewBreakerPublisher(next, DefaultBreakerConfig(), zap.NewNop())

	err := p.Publish(context.Background(),
		events.NewRootCreated(1, 1, "Root", time.Now()),
		events.NewNodeAdded(1, 2, 1, "Child", time.Now()),
	)

	assert.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, p.State())
	next.AssertExpectations(t)
}

func TestLogPublisher_LogsEachEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	err := p.Publish(context.Background(),
		events.NewRootCreated(7, 1, "Root", time.Now()),
		events.NewNodesDeleted(7, 1, nil, time.Now()),
	)

	assert.NoError(t, err)
	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "7", entries[0].ContextMap()["workspaceID"])
		assert.Equal(t, events.TypeNodesDeleted, entries[1].ContextMap()["eventType"])
	}
}
