package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/whatsapp-campaigns/internal/errors"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// MemoryStore is an in-memory implementation of the campaign, queue and lead stores,
// used by tests that exercise processors and handlers without Postgres.
// All operations hold one mutex, which makes ConditionalClaim atomic.
type MemoryStore struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	items     map[int]*model.QueueItem
	leads     map[int]model.Lead
	nextID    int
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[int]*model.Campaign),
		items:     make(map[int]*model.QueueItem),
		leads:     make(map[int]model.Lead),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for created and claimed timestamps.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryStore) id() int {
	m.nextID++
	return m.nextID
}

func cloneData(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneItem(item *model.QueueItem) *model.QueueItem {
	cp := *item
	cp.RecipientData = cloneData(item.RecipientData)
	return &cp
}

// ====================== Campaigns ======================

func (m *MemoryStore) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	c.CreatedAt = m.now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Channel == "" {
		c.Channel = model.ChannelWhatsApp
	}
	if c.DelaySeconds <= 0 {
		c.DelaySeconds = model.DefaultDelaySeconds
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCampaigns(_ context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if channel != "" && c.Channel != channel {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		filtered = append(filtered, &cp)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID > filtered[j].ID })

	total := len(filtered)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, campaignID int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	now := m.now()
	c.Status = status
	c.UpdatedAt = &now
	return nil
}

func (m *MemoryStore) UpdateStats(_ context.Context, campaignID int, stats model.CampaignStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil
	}
	c.Stats.Sent = stats.Sent
	c.Stats.Failed = stats.Failed
	c.Stats.Total = stats.Total
	return nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, campaignID int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok || c.Status == model.CampaignCompleted {
		return false, nil
	}
	c.Status = model.CampaignCompleted
	c.CompletedAt = &at
	c.UpdatedAt = &at
	return true, nil
}

// ====================== Queue ======================

func (m *MemoryStore) Enqueue(_ context.Context, campaignID int, recipients []model.Recipient) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queued := map[string]bool{}
	for _, item := range m.items {
		if item.CampaignID == campaignID {
			queued[item.RecipientPhone] = true
		}
	}
	inserted := 0
	for _, rcp := range recipients {
		if queued[rcp.Phone] {
			continue
		}
		queued[rcp.Phone] = true
		id := m.id()
		m.items[id] = &model.QueueItem{
			ID:             id,
			CampaignID:     campaignID,
			RecipientName:  rcp.Name,
			RecipientPhone: rcp.Phone,
			RecipientEmail: rcp.Email,
			RecipientData:  cloneData(rcp.Data),
			Status:         model.ItemPending,
			CreatedAt:      m.now(),
		}
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context, campaignID int, status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.CampaignID == campaignID && item.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) StatusCounts(_ context.Context, campaignID int) (model.CampaignStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats model.CampaignStats
	for _, item := range m.items {
		if item.CampaignID != campaignID {
			continue
		}
		switch item.Status {
		case model.ItemPending:
			stats.Pending++
		case model.ItemSending:
			stats.Sending++
		case model.ItemSent:
			stats.Sent++
		case model.ItemFailed:
			stats.Failed++
		}
	}
	stats.Total = stats.Sent + stats.Failed + stats.Pending
	return stats, nil
}

func (m *MemoryStore) SelectOnePendingID(_ context.Context, campaignID int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := 0
	for id, item := range m.items {
		if item.CampaignID == campaignID && item.Status == model.ItemPending && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0, nil
}

func (m *MemoryStore) ConditionalClaim(_ context.Context, itemID int) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.Status != model.ItemPending {
		return nil, nil
	}
	now := m.now()
	item.Status = model.ItemSending
	item.ClaimedAt = &now
	return cloneItem(item), nil
}

func (m *MemoryStore) SetTerminal(_ context.Context, itemID int, claimedAt time.Time, status string, sentAt time.Time, errorMessage string) (bool, error) {
	if !model.IsTerminal(status) {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.Status != model.ItemSending || item.ClaimedAt == nil || !item.ClaimedAt.Equal(claimedAt) {
		return false, nil
	}
	item.Status = status
	item.SentAt = &sentAt
	item.ErrorMessage = errorMessage
	return true, nil
}

func (m *MemoryStore) ReleaseStaleLeases(_ context.Context, campaignID int, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for _, item := range m.items {
		if item.CampaignID == campaignID && item.Status == model.ItemSending &&
			item.ClaimedAt != nil && item.ClaimedAt.Before(olderThan) {
			item.Status = model.ItemPending
			item.ClaimedAt = nil
			released++
		}
	}
	return released, nil
}

// Items returns a copy of the campaign's queue ordered by id.
func (m *MemoryStore) Items(campaignID int) []model.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QueueItem
	for _, item := range m.items {
		if item.CampaignID == campaignID {
			out = append(out, *cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ====================== Leads ======================

// AddLead stores a lead and returns its id.
func (m *MemoryStore) AddLead(l model.Lead) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.id()
	m.leads[l.ID] = l
	return l.ID
}

func (m *MemoryStore) GetByIDs(_ context.Context, ids []int) ([]model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leads := []model.Lead{}
	for _, id := range ids {
		if l, ok := m.leads[id]; ok {
			leads = append(leads, l)
		}
	}
	return leads, nil
}

var (
	_ CampaignRepositoryInterface = (*MemoryStore)(nil)
	_ QueueRepositoryInterface    = (*MemoryStore)(nil)
	_ LeadRepositoryInterface     = (*MemoryStore)(nil)
)
