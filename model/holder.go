package model

import (
	"sync/atomic"
	"time"
)

// Holder 持有当前生效的快照。读路径无锁；重训完成后整体替换。
type Holder struct {
	current atomic.Pointer[Snapshot]
	maxAge  time.Duration
}

// NewHolder maxAge 为快照的最大存活时间，超过后视为过期。
func NewHolder(maxAge time.Duration) *Holder {
	return &Holder{maxAge: maxAge}
}

// Store 原子发布新快照。
func (h *Holder) Store(s *Snapshot) {
	h.current.Store(s)
}

// Load 返回当前快照，可能为 nil。
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// FallbackReason 说明为什么使用中性权重。
type FallbackReason string

const (
	FallbackNone    FallbackReason = ""
	FallbackMissing FallbackReason = "missing"
	FallbackStale   FallbackReason = "stale"
)

// Resolve 返回本次请求应使用的快照：缺失或过期时返回中性权重和原因。
func (h *Holder) Resolve(now time.Time) (*Snapshot, FallbackReason) {
	s := h.current.Load()
	if s == nil {
		return NeutralSnapshot(), FallbackMissing
	}
	if s.Stale(now, h.maxAge) {
		return NeutralSnapshot(), FallbackStale
	}
	return s, FallbackNone
}
