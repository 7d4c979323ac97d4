// ABOUTME: Read-through LRU cache in front of the lead store
// ABOUTME: Keeps hot lead records in memory and refreshes them after every write
package db

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

const DefaultLeadCacheSize = 512

// CachedLeadStore serves Get from an LRU cache. Update goes to the backing
// store and replaces the cached copy with the stored result.
type CachedLeadStore struct {
	store *LeadStore
	cache *lru.Cache[string, models.Lead]
}

var _ autopilot.LeadStore = (*CachedLeadStore)(nil)

func NewCachedLeadStore(store *LeadStore, size int) (*CachedLeadStore, error) {
	if size <= 0 {
		size = DefaultLeadCacheSize
	}
	cache, err := lru.New[string, models.Lead](size)
	if err != nil {
		return nil, err
	}
	return &CachedLeadStore{store: store, cache: cache}, nil
}

func (c *CachedLeadStore) Get(ctx context.Context, id string) (*models.Lead, error) {
	if lead, ok := c.cache.Get(id); ok {
		return cloneLead(lead), nil
	}
	lead, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *cloneLead(*lead))
	return lead, nil
}

func (c *CachedLeadStore) Update(ctx context.Context, id string, fields map[string]any, info models.UpdateInfo) (*models.Lead, error) {
	lead, err := c.store.Update(ctx, id, fields, info)
	if err != nil {
		// A version conflict means the cached copy is stale.
		c.cache.Remove(id)
		return nil, err
	}
	c.cache.Add(id, *cloneLead(*lead))
	return lead, nil
}

func (c *CachedLeadStore) List(ctx context.Context, filter LeadFilter) ([]models.Lead, error) {
	return c.store.List(ctx, filter)
}

func (c *CachedLeadStore) Create(ctx context.Context, lead *models.Lead) error {
	return c.store.Create(ctx, lead)
}

// Import writes leads and drops any cached copies they replace.
func (c *CachedLeadStore) Import(ctx context.Context, leads []models.Lead) (int, error) {
	n, err := c.store.Import(ctx, leads)
	for _, l := range leads {
		c.cache.Remove(l.ID)
	}
	return n, err
}

// Len reports the number of cached leads.
func (c *CachedLeadStore) Len() int {
	return c.cache.Len()
}

func cloneLead(l models.Lead) *models.Lead {
	c := l
	if l.Tags != nil {
		c.Tags = append([]string(nil), l.Tags...)
	}
	if l.ProductInterest != nil {
		c.ProductInterest = append([]string(nil), l.ProductInterest...)
	}
	if l.LastInteractionDate != nil {
		t := *l.LastInteractionDate
		c.LastInteractionDate = &t
	}
	if l.NextFollowUpAt != nil {
		t := *l.NextFollowUpAt
		c.NextFollowUpAt = &t
	}
	return &c
}
