// Package cbm implements the Context Budget Manager: the virtual-memory
// layer governing what stays resident in an agent's context window across
// the ANCHOR, WORKING and CACHE zones (spec.md §4.2, grounded on
// context_budget.py's ContextBudgetManager — register/unregister/touch,
// priority-ranked eviction, pressure-triggered response, and injection
// request handling).
package cbm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/models"
)

// InjectionHandler delivers an approved injection request through a
// particular channel (hook, skill, mcp, direct). Returning an error fails
// the injection without mutating CBM state.
type InjectionHandler func(ctx context.Context, req *models.InjectionRequest) error

// Manager owns one session's context inventory. It is single-mutex-guarded,
// matching context_budget.py's non-concurrent design — there is one manager
// per active session, not one shared across sessions.
type Manager struct {
	mu sync.Mutex

	sessionID  string
	thresholds models.BudgetThresholds
	items      map[string]*models.ContextItem
	pageFaults int
	evictions  int

	repo *db.CBMStateRepository
	bus  *bus.Bus

	handlers map[models.InjectionChannel]InjectionHandler
}

// New creates a Manager for sessionID, loading any persisted inventory from
// repo if present (spec.md §4.2's restart-durability requirement).
func New(sessionID string, thresholds models.BudgetThresholds, repo *db.CBMStateRepository, eventBus *bus.Bus) (*Manager, error) {
	m := &Manager{
		sessionID:  sessionID,
		thresholds: thresholds,
		items:      make(map[string]*models.ContextItem),
		repo:       repo,
		bus:        eventBus,
		handlers:   make(map[models.InjectionChannel]InjectionHandler),
	}

	if repo != nil {
		state, err := repo.Load(sessionID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			for _, item := range state.Inventory {
				m.items[item.ID] = item
			}
			m.thresholds = state.Thresholds
			m.pageFaults = state.PageFaults
			m.evictions = state.Evictions
		}
	}

	if eventBus != nil {
		eventBus.Subscribe(m)
	}

	return m, nil
}

// RegisterInjectionHandler wires the delivery mechanism for a channel
// (spec.md §4.2's register_injection_handler).
func (m *Manager) RegisterInjectionHandler(channel models.InjectionChannel, handler InjectionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[channel] = handler
}

// zoneLimitLocked returns the capacity of a zone.
func (m *Manager) zoneLimitLocked(zone models.MemoryZone) int {
	switch zone {
	case models.ZoneAnchor:
		return m.thresholds.AnchorReserve
	case models.ZoneWorking:
		return m.thresholds.WorkingSetTarget
	case models.ZoneCache:
		return m.thresholds.CacheLimit
	default:
		return 0
	}
}

func (m *Manager) zoneUsedLocked(zone models.MemoryZone) int {
	used := 0
	for _, item := range m.items {
		if item.Zone == zone {
			used += item.EstimatedTokens
		}
	}
	return used
}

// RegisterItem adds item to the inventory, enforcing spec.md §4.2's
// zone-capacity invariant: if the zone is full, evicts lowest-priority
// evictable items from that same zone until space frees; if still
// insufficient, rejects without mutating state. Anchor-zone items are
// always registered non-evictable, per spec.md §8 invariant 4.
func (m *Manager) RegisterItem(item *models.ContextItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.Zone == models.ZoneAnchor {
		item.Evictable = false
	}

	limit := m.zoneLimitLocked(item.Zone)
	used := m.zoneUsedLocked(item.Zone)
	if limit > 0 && used+item.EstimatedTokens > limit {
		needed := used + item.EstimatedTokens - limit
		var candidates []*models.ContextItem
		evictable := 0
		for _, it := range m.items {
			if it.Zone == item.Zone && it.Evictable {
				candidates = append(candidates, it)
				evictable += it.EstimatedTokens
			}
		}
		if evictable < needed {
			// Not enough evictable space even after a full sweep: reject
			// without mutating any existing state (spec.md §4.2).
			return false, nil
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].ComputePriority(m.thresholds.DecayRate) < candidates[j].ComputePriority(m.thresholds.DecayRate)
		})
		freed := 0
		for _, it := range candidates {
			if freed >= needed {
				break
			}
			delete(m.items, it.ID)
			freed += it.EstimatedTokens
			m.evictions++
		}
	}

	m.items[item.ID] = item
	if err := m.persistLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// UnregisterItem removes an item, returning it (or nil if absent).
func (m *Manager) UnregisterItem(id string) (*models.ContextItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	delete(m.items, id)
	return item, m.persistLocked()
}

// TouchItem bumps an item's reference count and recency (LRU bookkeeping).
// A miss counts as a page fault, matching context_budget.py's semantics for
// referencing content no longer resident.
func (m *Manager) TouchItem(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		m.pageFaults++
		return m.persistLocked()
	}
	item.Touch()
	return m.persistLocked()
}

// FindItems filters the inventory by zone and/or content type (nil means
// "any"). Results are not ordered.
func (m *Manager) FindItems(zone *models.MemoryZone, contentType *models.ContentType) []*models.ContextItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ContextItem
	for _, item := range m.items {
		if zone != nil && item.Zone != *zone {
			continue
		}
		if contentType != nil && item.ContentType != *contentType {
			continue
		}
		out = append(out, item)
	}
	return out
}

// EvictLowestPriority evicts up to n evictable items ranked by ascending
// ComputePriority, freeing at least the requested token budget when
// targetTokens > 0 (spec.md §4.2's evict_lowest_priority / _evict_from_zone).
func (m *Manager) EvictLowestPriority(targetTokens int, reason, triggeredBy string) (*models.EvictionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.evictLowestPriorityLocked(targetTokens, reason, triggeredBy)
	if err := m.persistLocked(); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) evictLowestPriorityLocked(targetTokens int, reason, triggeredBy string) *models.EvictionResult {
	var candidates []*models.ContextItem
	for _, item := range m.items {
		if item.Evictable {
			candidates = append(candidates, item)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ComputePriority(m.thresholds.DecayRate) < candidates[j].ComputePriority(m.thresholds.DecayRate)
	})

	result := &models.EvictionResult{Reason: reason, TriggeredBy: triggeredBy}
	freed := 0
	for _, item := range candidates {
		if targetTokens > 0 && freed >= targetTokens {
			break
		}
		delete(m.items, item.ID)
		result.EvictedItems = append(result.EvictedItems, item)
		freed += item.EstimatedTokens
		m.evictions++
	}
	result.TokensFreed = freed
	return result
}

// evictFromZoneLocked evicts the lowest-priority evictable items within a single
// zone until usage drops at or below limit (spec.md §4.2 zone-pressure
// response).
func (m *Manager) evictFromZoneLocked(zone models.MemoryZone, limit int) *models.EvictionResult {
	var zoneItems []*models.ContextItem
	used := 0
	for _, item := range m.items {
		if item.Zone == zone {
			zoneItems = append(zoneItems, item)
			used += item.EstimatedTokens
		}
	}
	if used <= limit {
		return nil
	}
	sort.Slice(zoneItems, func(i, j int) bool {
		return zoneItems[i].ComputePriority(m.thresholds.DecayRate) < zoneItems[j].ComputePriority(m.thresholds.DecayRate)
	})

	result := &models.EvictionResult{Reason: "zone_pressure", TriggeredBy: string(zone)}
	for _, item := range zoneItems {
		if used <= limit {
			break
		}
		if !item.Evictable {
			continue
		}
		delete(m.items, item.ID)
		result.EvictedItems = append(result.EvictedItems, item)
		result.TokensFreed += item.EstimatedTokens
		used -= item.EstimatedTokens
		m.evictions++
	}
	return result
}

// checkPressureLocked evicts from whichever zone is over its limit,
// returning the eviction results produced (spec.md §4.2's _check_pressure).
func (m *Manager) checkPressureLocked() []*models.EvictionResult {
	var results []*models.EvictionResult
	if r := m.evictFromZoneLocked(models.ZoneAnchor, m.thresholds.AnchorReserve); r != nil {
		results = append(results, r)
	}
	if r := m.evictFromZoneLocked(models.ZoneWorking, m.thresholds.WorkingSetTarget); r != nil {
		results = append(results, r)
	}
	if r := m.evictFromZoneLocked(models.ZoneCache, m.thresholds.CacheLimit); r != nil {
		results = append(results, r)
	}
	return results
}

// RequestInjection admits new content into the CBM (spec.md §4.2): if
// budget permits, registers the item; if not and priority != critical,
// rejects without mutating state; if critical, evicts first then
// registers. Routes to a registered InjectionHandler keyed by channel.
func (m *Manager) RequestInjection(ctx context.Context, req *models.InjectionRequest) (bool, error) {
	m.mu.Lock()

	zone := models.ZoneWorking
	critical := req.Priority == "critical"
	if critical {
		zone = models.ZoneAnchor
	}

	totalUsed := m.totalUsedLocked()
	fits := totalUsed+req.EstimatedTokens <= m.thresholds.TotalCapacity
	if !fits {
		if !critical {
			m.mu.Unlock()
			return false, nil
		}
		needed := totalUsed + req.EstimatedTokens - m.thresholds.TotalCapacity
		m.evictLowestPriorityLocked(needed, "make_room_for_injection", req.Reason)
	}
	pressureResult := m.checkMemoryPressureLocked()

	item := models.NewContextItem(req.ContentID, zone, req.ContentType, req.Reason, req.PreferredChannel, req.Reason, req.EstimatedTokens)
	item.EpistemicValue = req.EpistemicValue
	item.Metadata = req.Metadata
	if zone == models.ZoneAnchor {
		item.Evictable = false
	}
	m.items[item.ID] = item

	handler, ok := m.handlers[req.PreferredChannel]
	if err := m.persistLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.mu.Unlock()

	m.publishInjected(ctx, item, "request_injection")
	if pressureResult != nil {
		m.publishEvictions(ctx, []*models.EvictionResult{pressureResult})
	}

	if ok && handler != nil {
		if err := handler(ctx, req); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (m *Manager) totalUsedLocked() int {
	total := 0
	for _, item := range m.items {
		total += item.EstimatedTokens
	}
	return total
}

// GetBudgetReport produces a point-in-time usage snapshot (spec.md §4.2's
// get_budget_report).
func (m *Manager) GetBudgetReport() *models.BudgetReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &models.BudgetReport{
		Timestamp:     time.Now(),
		SessionID:     m.sessionID,
		TotalCapacity: m.thresholds.TotalCapacity,
		AnchorLimit:   m.thresholds.AnchorReserve,
		WorkingTarget: m.thresholds.WorkingSetTarget,
		CacheLimit:    m.thresholds.CacheLimit,
	}

	var all []*models.ContextItem
	for _, item := range m.items {
		all = append(all, item)
		report.TotalItems++
		report.TotalUsed += item.EstimatedTokens
		switch item.Zone {
		case models.ZoneAnchor:
			report.AnchorUsed += item.EstimatedTokens
			report.AnchorItems++
		case models.ZoneWorking:
			report.WorkingUsed += item.EstimatedTokens
			report.WorkingItems++
		case models.ZoneCache:
			report.CacheUsed += item.EstimatedTokens
			report.CacheItems++
		}
		if item.Evictable && item.ComputePriority(m.thresholds.DecayRate) < m.thresholds.MinPriorityThreshold {
			report.EvictionCandidates++
		}
	}
	report.TotalAvailable = report.TotalCapacity - report.TotalUsed
	if report.TotalCapacity > 0 {
		report.Utilization = float64(report.TotalUsed) / float64(report.TotalCapacity)
	}
	report.UnderPressure = report.Utilization > m.thresholds.PressureThreshold

	sort.Slice(all, func(i, j int) bool {
		return all[i].ComputePriority(m.thresholds.DecayRate) > all[j].ComputePriority(m.thresholds.DecayRate)
	})
	report.TopItems = topN(all, 5)
	report.BottomItems = bottomN(all, 5)

	return report
}

func topN(items []*models.ContextItem, n int) []*models.ContextItem {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func bottomN(items []*models.ContextItem, n int) []*models.ContextItem {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// GetInventorySummary groups item counts and token usage by zone and
// content type (spec.md §4.2's get_inventory_summary).
func (m *Manager) GetInventorySummary() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	byZone := map[string]int{}
	byType := map[string]int{}
	for _, item := range m.items {
		byZone[string(item.Zone)] += item.EstimatedTokens
		byType[string(item.ContentType)]++
	}
	return map[string]any{
		"tokens_by_zone":  byZone,
		"counts_by_type":  byType,
		"total_items":     len(m.items),
		"page_faults":     m.pageFaults,
		"evictions":       m.evictions,
	}
}

// bootstrapInjectionTokens / bootstrapInjectionValue size the automatic
// page-fault injection for a know/context confidence drop (spec.md §4.2).
const (
	bootstrapInjectionTokens = 5000
	bootstrapInjectionValue  = 0.8
	askBeforeInjectTokens    = 1500
	askBeforeInjectValue     = 0.7
	epistemicConductTokens   = 3000
	epistemicConductValue    = 0.6
	goalCompletedValueScale  = 0.3
	pressureTargetUtilization = 0.70
)

// HandleEvent reacts to bus events affecting context pressure or item value,
// implementing bus.Observer (spec.md §4.2's event handler registrations).
func (m *Manager) HandleEvent(ctx context.Context, event *models.EpistemicEvent) {
	if event.SessionID != m.sessionID {
		return
	}
	switch event.Type {
	case models.EventSessionStarted:
		m.mu.Lock()
		_ = m.persistLocked()
		m.mu.Unlock()

	case models.EventConfidenceDropped:
		m.onConfidenceDropped(ctx, event)

	case models.EventCalibrationDriftDetected:
		m.mu.Lock()
		m.pageFaults++
		item := models.NewContextItem(uuid.New().String(), models.ZoneWorking, models.ContentProtocol, "calibration_drift_detected", models.ChannelImplicit, "epistemic_conduct", epistemicConductTokens)
		item.EpistemicValue = epistemicConductValue
		item.Evictable = true
		m.items[item.ID] = item
		_ = m.persistLocked()
		m.mu.Unlock()
		m.publishInjected(ctx, item, "calibration_drift_detected")

	case models.EventGoalCreated:
		goalID, _ := event.Data["goal_id"].(string)
		if goalID == "" {
			return
		}
		m.mu.Lock()
		item := models.NewContextItem("goal:"+goalID, models.ZoneWorking, models.ContentGoal, goalID, models.ChannelImplicit, "goal", 500)
		item.EpistemicValue = 0.9
		item.Evictable = false
		m.items[item.ID] = item
		_ = m.persistLocked()
		m.mu.Unlock()

	case models.EventGoalCompleted:
		goalID, _ := event.Data["goal_id"].(string)
		m.mu.Lock()
		if item, ok := m.items["goal:"+goalID]; ok {
			item.Zone = models.ZoneCache
			item.Evictable = true
			item.EpistemicValue *= goalCompletedValueScale
		}
		_ = m.persistLocked()
		m.mu.Unlock()

	case models.EventPostflightComplete:
		m.mu.Lock()
		m.decayPassLocked()
		results := m.checkPressureLocked()
		pressure := m.checkMemoryPressureLocked()
		_ = m.persistLocked()
		m.mu.Unlock()
		m.publishEvictions(ctx, results)
		m.publishMemoryPressure(ctx, pressure)

	case models.EventPhaseTransition:
		m.mu.Lock()
		results := m.checkPressureLocked()
		pressure := m.checkMemoryPressureLocked()
		_ = m.persistLocked()
		m.mu.Unlock()
		m.publishEvictions(ctx, results)
		m.publishMemoryPressure(ctx, pressure)
	}
}

// publishMemoryPressure emits memory_pressure even when zero candidates were
// evictable, per spec.md §8's boundary behavior ("publish memory_pressure
// with eviction_candidates = 0, do not fail").
func (m *Manager) publishMemoryPressure(ctx context.Context, result *models.EvictionResult) {
	if m.bus == nil || result == nil {
		return
	}
	m.bus.Publish(ctx, models.NewEpistemicEvent(models.EventMemoryPressure, m.sessionID, map[string]any{
		"tokens_freed":        result.TokensFreed,
		"eviction_candidates": len(result.EvictedItems),
	}))
}

// onConfidenceDropped implements the §4.2 page-fault reaction: a confidence
// drop on know/context requests a bootstrap injection; a drop on
// uncertainty requests the ask_before_investigate protocol (Scenario E).
func (m *Manager) onConfidenceDropped(ctx context.Context, event *models.EpistemicEvent) {
	vector, _ := event.Data["vector"].(string)

	m.mu.Lock()
	m.pageFaults++

	var item *models.ContextItem
	switch vector {
	case "know", "context":
		item = models.NewContextItem(uuid.New().String(), models.ZoneWorking, models.ContentBootstrap, "confidence_dropped:"+vector, models.ChannelImplicit, "bootstrap", bootstrapInjectionTokens)
		item.EpistemicValue = bootstrapInjectionValue
	case "uncertainty":
		item = models.NewContextItem(uuid.New().String(), models.ZoneWorking, models.ContentProtocol, "confidence_dropped:uncertainty", models.ChannelImplicit, "ask_before_investigate", askBeforeInjectTokens)
		item.EpistemicValue = askBeforeInjectValue
	}
	if item != nil {
		item.Evictable = true
		m.items[item.ID] = item
	}
	_ = m.persistLocked()
	m.mu.Unlock()

	if item != nil {
		m.publishInjected(ctx, item, "confidence_dropped")
	}

	if m.bus != nil {
		m.bus.Publish(ctx, models.NewEpistemicEvent(models.EventPageFault, m.sessionID, map[string]any{
			"vector": vector,
		}))
	}
}

// decayPassLocked recomputes nothing explicitly (priority is computed
// on demand) but evicts any evictable item whose priority has fallen below
// min_priority_threshold, per spec.md §4.2's postflight_complete reaction.
func (m *Manager) decayPassLocked() {
	var stale []*models.ContextItem
	for _, item := range m.items {
		if item.Evictable && item.ComputePriority(m.thresholds.DecayRate) < m.thresholds.MinPriorityThreshold {
			stale = append(stale, item)
		}
	}
	for _, item := range stale {
		delete(m.items, item.ID)
		m.evictions++
	}
}

// checkMemoryPressureLocked implements spec.md §4.2's pressure response:
// once utilization crosses pressure_threshold with eviction_aggressiveness
// above 0.5, evict down to 70% utilization.
func (m *Manager) checkMemoryPressureLocked() *models.EvictionResult {
	total := m.thresholds.TotalCapacity
	if total <= 0 {
		return nil
	}
	used := m.totalUsedLocked()
	utilization := float64(used) / float64(total)
	if utilization < m.thresholds.PressureThreshold || m.thresholds.EvictionAggressiveness <= 0.5 {
		return nil
	}
	targetUsed := int(pressureTargetUtilization * float64(total))
	needed := used - targetUsed
	if needed <= 0 {
		return nil
	}
	return m.evictLowestPriorityLocked(needed, "memory_pressure", "pressure_check")
}

func (m *Manager) publishInjected(ctx context.Context, item *models.ContextItem, cause string) {
	if m.bus == nil || item == nil {
		return
	}
	m.bus.Publish(ctx, models.NewEpistemicEvent(models.EventContextInjected, m.sessionID, map[string]any{
		"content_id": item.ID,
		"label":      item.Label,
		"zone":       item.Zone,
		"tokens":     item.EstimatedTokens,
		"cause":      cause,
	}))
}

func (m *Manager) publishEvictions(ctx context.Context, results []*models.EvictionResult) {
	if m.bus == nil {
		return
	}
	for _, r := range results {
		if r == nil || len(r.EvictedItems) == 0 {
			continue
		}
		m.bus.Publish(ctx, models.NewEpistemicEvent(models.EventContextEvicted, m.sessionID, map[string]any{
			"reason":       r.Reason,
			"tokens_freed": r.TokensFreed,
			"count":        len(r.EvictedItems),
		}))
	}
}

func (m *Manager) persistLocked() error {
	if m.repo == nil {
		return nil
	}
	inventory := make([]*models.ContextItem, 0, len(m.items))
	for _, item := range m.items {
		inventory = append(inventory, item)
	}
	return m.repo.Save(&db.CBMState{
		SessionID:  m.sessionID,
		Inventory:  inventory,
		Thresholds: m.thresholds,
		PageFaults: m.pageFaults,
		Evictions:  m.evictions,
	})
}
