package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rushteam/hybridrec/pipeline"
)

// 使用配置驱动时，需在入口处 import _ "github.com/rushteam/hybridrec/config/builders"
// 以触发内置 Node（filter、rerank.context_boost、rerank.topn 等）的 init 注册。

// NodeBuilder 与 pipeline.NodeBuilder 一致：根据 config 构建 Node。
type NodeBuilder = pipeline.NodeBuilder

var (
	defaultBuilders   = make(map[string]NodeBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种 Node 的构建逻辑，重复注册时后者覆盖前者。
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultFactory 返回基于当前注册表构建的 NodeFactory。
func DefaultFactory() *pipeline.NodeFactory {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		f.Register(typeName, builder)
	}
	return f
}

// ValidatePipelineConfig 在构建前检查所有节点类型都已注册，错误信息里列出可用类型。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := SupportedTypes()
	for i, nc := range cfg.Pipeline.Nodes {
		idx := sort.SearchStrings(supported, nc.Type)
		if idx == len(supported) || supported[idx] != nc.Type {
			return fmt.Errorf("node #%d: unsupported type %q (supported: %s)", i, nc.Type, strings.Join(supported, ", "))
		}
	}
	return nil
}
