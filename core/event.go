package core

import (
	"context"
	"time"
)

// EventKind 是用户行为类型。prepare 同时覆盖"制作"与"购买"。
type EventKind string

const (
	EventView     EventKind = "view"
	EventPrepare  EventKind = "prepare"
	EventFavorite EventKind = "favorite"
	EventReview   EventKind = "review"
	EventClick    EventKind = "click"
)

// IsStrong 表示强交互（收藏/制作购买），个性化召回会硬过滤这类物品。
func (k EventKind) IsStrong() bool {
	return k == EventFavorite || k == EventPrepare
}

// InteractionEvent 是外部行为日志中的一条不可变记录。
type InteractionEvent struct {
	UserID    string            `json:"user_id"`
	ItemType  ItemType          `json:"item_type"`
	ItemID    int64             `json:"item_id"`
	Kind      EventKind         `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (e InteractionEvent) Key() ItemKey {
	return ItemKey{Type: e.ItemType, ID: e.ItemID}
}

// Window 是读取行为日志的回看窗口：最近 Count 条且不早于 Span。
// 任一字段为 0 表示该维度不限制。
type Window struct {
	Count int           `json:"count"`
	Span  time.Duration `json:"span"`
}

// DefaultWindow 最近 500 条 / 30 天。
func DefaultWindow() Window {
	return Window{Count: 500, Span: 30 * 24 * time.Hour}
}

// InteractionStore 是外部行为日志的只读接口。
//
// 约定：
//   - 返回结果按时间升序，不保证其他顺序
//   - 没有数据时返回空切片而不是错误
type InteractionStore interface {
	QueryEvents(ctx context.Context, userID string, window Window) ([]InteractionEvent, error)
}

// CatalogStore 是各类别目录的只读接口，仅用于候选池与展示补全。
type CatalogStore interface {
	// GetItemSummary 物品不存在时返回 ErrItemNotFound
	GetItemSummary(ctx context.Context, key ItemKey) (ItemSummary, error)

	// ListItems 返回某类别下可推荐的物品
	ListItems(ctx context.Context, itemType ItemType) ([]ItemSummary, error)
}
