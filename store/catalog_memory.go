package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rushteam/hybridrec/core"
)

// MemoryCatalog 是内存版目录，实现 core.CatalogStore。
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[core.ItemKey]core.ItemSummary
}

func NewMemoryCatalog(items ...core.ItemSummary) *MemoryCatalog {
	c := &MemoryCatalog{items: make(map[core.ItemKey]core.ItemSummary, len(items))}
	c.Put(items...)
	return c
}

func (c *MemoryCatalog) Put(items ...core.ItemSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		if it == nil {
			continue
		}
		c.items[it.Key()] = it
	}
}

// Remove 模拟物品下架。
func (c *MemoryCatalog) Remove(key core.ItemKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *MemoryCatalog) GetItemSummary(_ context.Context, key core.ItemKey) (core.ItemSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok {
		return nil, core.ErrItemNotFound
	}
	return it, nil
}

func (c *MemoryCatalog) ListItems(_ context.Context, itemType core.ItemType) ([]core.ItemSummary, error) {
	c.mu.RLock()
	out := make([]core.ItemSummary, 0)
	for k, it := range c.items {
		if k.Type == itemType {
			out = append(out, it)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key().ID < out[j].Key().ID })
	return out, nil
}

var _ core.CatalogStore = (*MemoryCatalog)(nil)
