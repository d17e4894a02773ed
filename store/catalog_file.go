package store

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// LoadCatalogFile 从 JSON 文件加载目录快照。
//
// 文件是对象数组，每个对象用 "type" 标明类别，其余字段与对应 Summary 的 JSON 字段一致：
//
//	[{"type": "recipe", "id": 1, "nombre": "Tarta de queso", "categoria": "postres", "popularity": 0.8}]
func LoadCatalogFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	items, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return NewMemoryCatalog(items...), nil
}

// ParseCatalog 解析目录 JSON，遇到未知类别时报错。
func ParseCatalog(data []byte) ([]core.ItemSummary, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]core.ItemSummary, 0, len(raw))
	for i, msg := range raw {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		t, err := core.ParseItemType(head.Type)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		var s core.ItemSummary
		switch t {
		case core.ItemTypeRecipe:
			s = &core.RecipeSummary{}
		case core.ItemTypePhone:
			s = &core.PhoneSummary{}
		case core.ItemTypeCake:
			s = &core.CakeSummary{}
		case core.ItemTypePlace:
			s = &core.PlaceSummary{}
		case core.ItemTypeSport:
			s = &core.SportSummary{}
		}
		if err := json.Unmarshal(msg, s); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if s.Key().ID <= 0 {
			return nil, fmt.Errorf("item %d: id must be positive", i)
		}
		out = append(out, s)
	}
	return out, nil
}
