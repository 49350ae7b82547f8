package cbm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/models"
)

func testThresholds() models.BudgetThresholds {
	return models.BudgetThresholds{
		TotalCapacity:          10000,
		AnchorReserve:          1000,
		WorkingSetTarget:       8000,
		CacheLimit:             2000,
		EvictionAggressiveness: 0.5,
		DecayRate:              0.1,
		MinPriorityThreshold:   0.05,
		PressureThreshold:      0.85,
	}
}

func newTestManager(t *testing.T) (*Manager, *bus.Bus) {
	t.Helper()
	eventBus := bus.New()
	mgr, err := New("s1", testThresholds(), nil, eventBus)
	require.NoError(t, err)
	return mgr, eventBus
}

func TestRegisterItem_RejectsWhenZoneFullAndNothingEvictable(t *testing.T) {
	mgr, _ := newTestManager(t)

	item := models.NewContextItem("anchor-1", models.ZoneAnchor, models.ContentSystemPrompt, "boot", models.ChannelDirect, "boot", 1000)
	item.Evictable = false
	ok, err := mgr.RegisterItem(item)
	require.NoError(t, err)
	assert.True(t, ok)

	overflow := models.NewContextItem("anchor-2", models.ZoneAnchor, models.ContentSystemPrompt, "more", models.ChannelDirect, "more", 500)
	overflow.Evictable = false
	ok, err = mgr.RegisterItem(overflow)
	require.NoError(t, err)
	assert.False(t, ok, "anchor zone full with nothing evictable must reject without mutating state")

	report := mgr.GetBudgetReport()
	assert.Equal(t, 1000, report.AnchorUsed)
}

func TestRegisterItem_EvictsLowestPriorityToMakeRoom(t *testing.T) {
	mgr, _ := newTestManager(t)

	low := models.NewContextItem("low", models.ZoneWorking, models.ContentConversation, "s", models.ChannelDirect, "low", 4000)
	low.EpistemicValue = 0.1
	ok, err := mgr.RegisterItem(low)
	require.NoError(t, err)
	require.True(t, ok)

	high := models.NewContextItem("high", models.ZoneWorking, models.ContentFinding, "s", models.ChannelDirect, "high", 5000)
	high.EpistemicValue = 0.9
	ok, err = mgr.RegisterItem(high)
	require.NoError(t, err)
	assert.True(t, ok)

	items := mgr.FindItems(nil, nil)
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.NotContains(t, ids, "low")
	assert.Contains(t, ids, "high")
}

func TestRegisterItem_NeverExceedsZoneCapacity(t *testing.T) {
	mgr, _ := newTestManager(t)
	for i := 0; i < 20; i++ {
		item := models.NewContextItem(uuidFor(i), models.ZoneWorking, models.ContentConversation, "s", models.ChannelDirect, "x", 1000)
		mgr.RegisterItem(item)
	}
	report := mgr.GetBudgetReport()
	assert.LessOrEqual(t, report.WorkingUsed, report.WorkingTarget)
}

func TestAnchorItemsAreNeverEvicted(t *testing.T) {
	mgr, _ := newTestManager(t)
	anchor := models.NewContextItem("anchor", models.ZoneAnchor, models.ContentSystemPrompt, "s", models.ChannelDirect, "anchor", 500)
	ok, err := mgr.RegisterItem(anchor)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, anchor.Evictable)

	result, err := mgr.EvictLowestPriority(10000, "force", "test")
	require.NoError(t, err)
	for _, ev := range result.EvictedItems {
		assert.NotEqual(t, "anchor", ev.ID)
	}
	items := mgr.FindItems(nil, nil)
	found := false
	for _, it := range items {
		if it.ID == "anchor" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUnregisterThenRegisterRoundTripsToEmpty(t *testing.T) {
	mgr, _ := newTestManager(t)
	item := models.NewContextItem("x", models.ZoneWorking, models.ContentFinding, "s", models.ChannelDirect, "x", 100)
	_, err := mgr.RegisterItem(item)
	require.NoError(t, err)

	removed, err := mgr.UnregisterItem("x")
	require.NoError(t, err)
	require.NotNil(t, removed)

	items := mgr.FindItems(nil, nil)
	assert.Empty(t, items)
}

// Scenario E from spec.md §8: a confidence_dropped event on "know" triggers
// a bootstrap injection of ~5000 tokens / value 0.8, increments page_faults,
// and emits context_injected.
func TestHandleEvent_ConfidenceDroppedOnKnowInjectsBootstrap(t *testing.T) {
	mgr, eventBus := newTestManager(t)

	var injected []*models.EpistemicEvent
	eventBus.Subscribe(observerFunc(func(_ context.Context, e *models.EpistemicEvent) {
		if e.Type == models.EventContextInjected {
			injected = append(injected, e)
		}
	}))

	eventBus.Publish(context.Background(), models.NewEpistemicEvent(models.EventConfidenceDropped, "s1", map[string]any{
		"vector": "know",
		"value":  0.25,
	}))

	require.Len(t, injected, 1)
	assert.Equal(t, 5000, injected[0].Data["tokens"])

	summary := mgr.GetInventorySummary()
	assert.Equal(t, 1, summary["page_faults"])
}

func TestHandleEvent_IgnoresEventsForOtherSessions(t *testing.T) {
	mgr, eventBus := newTestManager(t)
	eventBus.Publish(context.Background(), models.NewEpistemicEvent(models.EventConfidenceDropped, "other-session", map[string]any{
		"vector": "know",
		"value":  0.1,
	}))
	summary := mgr.GetInventorySummary()
	assert.Equal(t, 0, summary["page_faults"])
	assert.Equal(t, 0, summary["total_items"])
}

func TestRequestInjection_CriticalEvictsThenRegisters(t *testing.T) {
	mgr, _ := newTestManager(t)
	// Fill the working zone (8000 of 10000 total tokens) with non-critical,
	// evictable items; the critical request below only fits after an eviction.
	for i := 0; i < 10; i++ {
		mgr.RegisterItem(models.NewContextItem(uuidFor(i), models.ZoneWorking, models.ContentConversation, "s", models.ChannelDirect, "x", 800))
	}

	req := &models.InjectionRequest{
		ContentID:        "critical-item",
		ContentType:       models.ContentProtocol,
		PreferredChannel:  models.ChannelImplicit,
		EstimatedTokens:   2500,
		EpistemicValue:    0.95,
		Priority:          "critical",
	}
	ok, err := mgr.RequestInjection(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequestInjection_NonCriticalRejectsWhenFull(t *testing.T) {
	mgr, _ := newTestManager(t)
	for i := 0; i < 20; i++ {
		item := models.NewContextItem(uuidFor(i), models.ZoneWorking, models.ContentConversation, "s", models.ChannelDirect, "x", 1000)
		item.Evictable = false
		mgr.RegisterItem(item)
	}
	req := &models.InjectionRequest{
		ContentID:        "extra",
		ContentType:       models.ContentFinding,
		PreferredChannel:  models.ChannelDirect,
		EstimatedTokens:   2500,
		Priority:          "normal",
	}
	ok, err := mgr.RequestInjection(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func uuidFor(i int) string {
	return "item-" + string(rune('a'+i))
}

type observerFunc func(ctx context.Context, e *models.EpistemicEvent)

func (f observerFunc) HandleEvent(ctx context.Context, e *models.EpistemicEvent) { f(ctx, e) }

func TestPersistence_StateSurvivesReload(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	defer database.Close()

	repo := db.NewCBMStateRepository(database)
	mgr, err := New("s1", testThresholds(), repo, nil)
	require.NoError(t, err)

	item := models.NewContextItem("x", models.ZoneWorking, models.ContentFinding, "s", models.ChannelDirect, "x", 100)
	_, err = mgr.RegisterItem(item)
	require.NoError(t, err)

	reloaded, err := New("s1", testThresholds(), repo, nil)
	require.NoError(t, err)
	items := reloaded.FindItems(nil, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "x", items[0].ID)
}
