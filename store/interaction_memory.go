package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/hybridrec/core"
)

// MemoryInteractionStore 是内存版行为日志，用于开发与测试。
type MemoryInteractionStore struct {
	mu     sync.RWMutex
	events map[string][]core.InteractionEvent

	// Now 用于计算时间窗口，默认 time.Now
	Now func() time.Time
}

func NewMemoryInteractionStore() *MemoryInteractionStore {
	return &MemoryInteractionStore{
		events: make(map[string][]core.InteractionEvent),
		Now:    time.Now,
	}
}

// Append 追加事件（写入方是外部业务，这里只为开发/测试提供）。
func (m *MemoryInteractionStore) Append(events ...core.InteractionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		m.events[ev.UserID] = append(m.events[ev.UserID], ev)
	}
}

func (m *MemoryInteractionStore) QueryEvents(_ context.Context, userID string, window core.Window) ([]core.InteractionEvent, error) {
	m.mu.RLock()
	src := m.events[userID]
	all := make([]core.InteractionEvent, len(src))
	copy(all, src)
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return applyWindow(all, window, m.Now()), nil
}

// applyWindow 对按时间升序的事件应用窗口：先按时间跨度裁剪，再保留最近 Count 条。
func applyWindow(events []core.InteractionEvent, window core.Window, now time.Time) []core.InteractionEvent {
	out := events
	if window.Span > 0 {
		cutoff := now.Add(-window.Span)
		idx := sort.Search(len(out), func(i int) bool { return !out[i].Timestamp.Before(cutoff) })
		out = out[idx:]
	}
	if window.Count > 0 && len(out) > window.Count {
		out = out[len(out)-window.Count:]
	}
	return out
}

var _ core.InteractionStore = (*MemoryInteractionStore)(nil)
