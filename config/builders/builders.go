// Package builders 注册内置的 pipeline Node 构建器。
package builders

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/conv"
	"github.com/rushteam/hybridrec/pkg/dsl"
	"github.com/rushteam/hybridrec/rerank"
)

func init() {
	config.Register("filter", BuildFilterNode)
	config.Register("rerank.context_boost", BuildContextBoostNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rerank.diversity", BuildDiversityNode)
}

// RegisterCatalog 注册依赖目录存储的 filter.catalog 节点。
func RegisterCatalog(catalog core.CatalogStore, logger zerolog.Logger) {
	config.Register("filter.catalog", func(map[string]interface{}) (pipeline.Node, error) {
		if catalog == nil {
			return nil, fmt.Errorf("filter.catalog: catalog store not configured")
		}
		return &filter.CatalogNode{Catalog: catalog, Logger: logger}, nil
	})
}

// RegisterStore 让 filter 节点可以使用依赖 KV 存储的 user_block 过滤器。
func RegisterStore(kv core.Store, logger zerolog.Logger) {
	config.Register("filter", func(cfg map[string]interface{}) (pipeline.Node, error) {
		return buildFilterNode(cfg, kv, logger)
	})
}

func BuildFilterNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return buildFilterNode(cfg, nil, zerolog.Nop())
}

func buildFilterNode(cfg map[string]interface{}, kv core.Store, logger zerolog.Logger) (pipeline.Node, error) {
	filtersConfig := conv.SliceAnyToMaps(cfg["filters"])
	if filtersConfig == nil {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		switch filterType := conv.ConfigGet(fc, "type", ""); filterType {
		case "blacklist":
			filters = append(filters, filter.NewBlacklistFilter(conv.SliceAnyToString(fc["items"])))
		case "user_block":
			if kv == nil {
				return nil, fmt.Errorf("filter user_block: kv store not configured")
			}
			filters = append(filters, filter.NewUserBlockFilter(kv, conv.ConfigGet(fc, "key_prefix", "")))
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}
	return &filter.FilterNode{Filters: filters, Logger: logger}, nil
}

// BuildContextBoostNode 支持三种规则来源：rules（内联）、rules_file（YAML 文件）、默认规则。
func BuildContextBoostNode(cfg map[string]interface{}) (pipeline.Node, error) {
	var rules []dsl.Rule
	if inline := conv.SliceAnyToMaps(cfg["rules"]); len(inline) > 0 {
		for _, m := range inline {
			rules = append(rules, dsl.Rule{
				Name:     conv.ConfigGet(m, "name", ""),
				When:     conv.ConfigGet(m, "when", ""),
				ItemType: core.ItemType(conv.ConfigGet(m, "item_type", "")),
				Weight:   conv.ConfigGetFloat64(m, "weight", 1),
				Reason:   conv.ConfigGet(m, "reason", ""),
			})
		}
	} else if path := conv.ConfigGet(cfg, "rules_file", ""); path != "" {
		loaded, err := dsl.LoadRules(path)
		if err != nil {
			return nil, fmt.Errorf("load boost rules: %w", err)
		}
		rules = loaded
	}

	var rs *dsl.RuleSet
	if len(rules) > 0 {
		compiled, err := dsl.Compile(rules)
		if err != nil {
			return nil, err
		}
		rs = compiled
	}
	b := rerank.NewContextBooster(rs)
	b.Min = conv.ConfigGetFloat64(cfg, "min", b.Min)
	b.Max = conv.ConfigGetFloat64(cfg, "max", b.Max)
	if b.Min > b.Max {
		return nil, fmt.Errorf("rerank.context_boost: min %v > max %v", b.Min, b.Max)
	}
	return b, nil
}

func BuildTopNNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.TopNNode{
		N:           int(conv.ConfigGetInt64(cfg, "n", 0)),
		FromRequest: conv.ConfigGet(cfg, "from_request", true),
	}, nil
}

func BuildDiversityNode(cfg map[string]interface{}) (pipeline.Node, error) {
	n := int(conv.ConfigGetInt64(cfg, "max_per_type", 0))
	if n < 0 {
		return nil, fmt.Errorf("rerank.diversity: max_per_type must be >= 0")
	}
	return &rerank.Diversity{MaxPerType: n}, nil
}
