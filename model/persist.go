package model

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// DefaultSnapshotKey 快照在 KV 中的 key。
const DefaultSnapshotKey = "model:learned:snapshot"

// SnapshotStore 通过 core.Store 以 JSON 持久化快照，进程重启后可恢复。
type SnapshotStore struct {
	Store core.Store
	Key   string
}

func NewSnapshotStore(s core.Store) *SnapshotStore {
	return &SnapshotStore{Store: s, Key: DefaultSnapshotKey}
}

func (p *SnapshotStore) Save(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return p.Store.Set(ctx, p.Key, data)
}

// Load 不存在时返回 core.ErrStoreNotFound。
func (p *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := p.Store.Get(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
