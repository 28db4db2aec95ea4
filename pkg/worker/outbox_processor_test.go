package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/pkg/logger"
	"github.com/careteam/mdt-api/pkg/metrics"
)

// Registered once; promauto panics on duplicate collector registration.
var testMetrics = metrics.NewMetrics("worker_test")

type fakeOutboxRepo struct {
	events []*model.OutboxEvent

	// statuses records the outcome written for each event id, in the
	// order the claiming transaction handled them.
	statuses map[string]string
}

func (f *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) ProcessPending(_ context.Context, limit int, handle func(*model.OutboxEvent) error) error {
	if f.statuses == nil {
		f.statuses = make(map[string]string)
	}
	claimed := f.events
	if len(claimed) > limit {
		claimed = claimed[:limit]
	}
	for _, event := range claimed {
		if err := handle(event); err != nil {
			f.statuses[event.ID.String()] = string(model.OutboxStatusFailed)
			continue
		}
		f.statuses[event.ID.String()] = string(model.OutboxStatusProcessed)
	}
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	published   []string
	failingType string
}

func (f *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	if channel == f.failingType {
		return fmt.Errorf("broker unavailable")
	}
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBroker) Close() error { return nil }

func newTestProcessor(repo *fakeOutboxRepo, broker *fakeBroker) *OutboxProcessor {
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, &logger.Logger{ZL: zerolog.Nop()}, testMetrics)
}

func addEvent(t *testing.T, repo *fakeOutboxRepo, eventType string) *model.OutboxEvent {
	t.Helper()
	event, err := model.NewOutboxEvent(eventType, map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), event))
	return event
}

func TestProcessEventsMarksOutcomesInClaim(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{failingType: model.EventInvitationDeclined}

	ok := addEvent(t, repo, model.EventMDTCreated)
	bad := addEvent(t, repo, model.EventInvitationDeclined)

	p := newTestProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	// A publish failure marks its event failed without stopping the batch.
	assert.Equal(t, string(model.OutboxStatusProcessed), repo.statuses[ok.ID.String()])
	assert.Equal(t, string(model.OutboxStatusFailed), repo.statuses[bad.ID.String()])
	assert.Equal(t, []string{model.EventMDTCreated}, broker.published)
}

func TestProcessEventsRetriesBeforeFailing(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{failingType: model.EventMessagePosted}
	event := addEvent(t, repo, model.EventMessagePosted)

	p := newTestProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, string(model.OutboxStatusFailed), repo.statuses[event.ID.String()])
	assert.Empty(t, broker.published)
}

func TestProcessEventsHonorsBatchSize(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{}
	for i := 0; i < 15; i++ {
		addEvent(t, repo, model.EventMDTCreated)
	}

	p := newTestProcessor(repo, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Len(t, broker.published, 10)
	assert.Len(t, repo.statuses, 10)
}
