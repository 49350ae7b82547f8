package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/empirica/kernel/internal/models"
)

type recordingObserver struct {
	events []*models.EpistemicEvent
}

func (r *recordingObserver) HandleEvent(ctx context.Context, event *models.EpistemicEvent) {
	r.events = append(r.events, event)
}

type panickingObserver struct{}

func (panickingObserver) HandleEvent(ctx context.Context, event *models.EpistemicEvent) {
	panic("boom")
}

func TestPublish_DeliversToAllObservers(t *testing.T) {
	b := New()
	obs1 := &recordingObserver{}
	obs2 := &recordingObserver{}
	b.Subscribe(obs1)
	b.Subscribe(obs2)

	event := models.NewEpistemicEvent(models.EventSessionStarted, "s1", nil)
	b.Publish(context.Background(), event)

	assert.Len(t, obs1.events, 1)
	assert.Len(t, obs2.events, 1)
	assert.Equal(t, 2, b.GetObserverCount())
	assert.Equal(t, int64(1), b.GetEventCount())
}

func TestPublish_ObserverPanicNeverPropagates(t *testing.T) {
	b := New()
	b.Subscribe(panickingObserver{})
	obs := &recordingObserver{}
	b.Subscribe(obs)

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), models.NewEpistemicEvent(models.EventSessionStarted, "s1", nil))
	})
	assert.Len(t, obs.events, 1, "observers after the panicking one must still be dispatched")
}

func TestGetEventCount_IncrementsAcrossPublishes(t *testing.T) {
	b := New()
	for i := 0; i < 3; i++ {
		b.Publish(context.Background(), models.NewEpistemicEvent(models.EventSessionStarted, "s1", nil))
	}
	assert.Equal(t, int64(3), b.GetEventCount())
}
