package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/hybridrec/core"
)

// MemoryFeedbackStore 是追加写的内存反馈存储。
// 一批曝光在同一把锁内写入，满足批量原子性。
type MemoryFeedbackStore struct {
	mu          sync.RWMutex
	impressions []core.Impression
	clicks      []core.ClickEvent
	// latest 索引 (user, item) -> impressions 下标列表（按写入顺序）
	latest map[string][]int
}

func NewMemoryFeedbackStore() *MemoryFeedbackStore {
	return &MemoryFeedbackStore{latest: make(map[string][]int)}
}

func pairKey(userID string, key core.ItemKey) string {
	return userID + "|" + key.String()
}

func (m *MemoryFeedbackStore) AppendImpressions(_ context.Context, imps []core.Impression) error {
	if len(imps) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, imp := range imps {
		idx := len(m.impressions)
		m.impressions = append(m.impressions, imp)
		pk := pairKey(imp.UserID, imp.Key)
		m.latest[pk] = append(m.latest[pk], idx)
	}
	return nil
}

func (m *MemoryFeedbackStore) LatestImpression(_ context.Context, userID string, key core.ItemKey, since, until time.Time) (*core.Impression, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *core.Impression
	for _, idx := range m.latest[pairKey(userID, key)] {
		imp := m.impressions[idx]
		if imp.ShownAt.Before(since) || imp.ShownAt.After(until) {
			continue
		}
		if best == nil || !imp.ShownAt.Before(best.ShownAt) {
			cp := imp
			best = &cp
		}
	}
	return best, nil
}

func (m *MemoryFeedbackStore) AppendClick(_ context.Context, click core.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clicks = append(m.clicks, click)
	return nil
}

func (m *MemoryFeedbackStore) ListImpressions(_ context.Context, period core.Period) ([]core.Impression, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.Impression, 0)
	for _, imp := range m.impressions {
		if period.Contains(imp.ShownAt) {
			out = append(out, imp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ShownAt.Before(out[j].ShownAt) })
	return out, nil
}

func (m *MemoryFeedbackStore) ListClicks(_ context.Context, period core.Period) ([]core.ClickEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.ClickEvent, 0)
	for _, c := range m.clicks {
		if period.Contains(c.ClickedAt) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClickedAt.Before(out[j].ClickedAt) })
	return out, nil
}

var _ core.FeedbackStore = (*MemoryFeedbackStore)(nil)
