package utils

import "strings"

// MaxReasons 是单个推荐结果携带的解释条数上限，避免多源合并后无限增长。
const MaxReasons = 3

// DefaultReason 在所有来源都没有给出解释时兜底，保证每个结果至少一条解释。
const DefaultReason = "Recomendado para ti"

// MergeReasons 用于合并多个召回源的解释，遵循"保留先到者顺序、去重、截断"的默认策略。
// - 空白字符串被忽略
// - 已存在的解释不会重复追加
// - 超过 max 条后丢弃后续解释（max <= 0 时使用 MaxReasons）
func MergeReasons(existing []string, incoming []string, max int) []string {
	if max <= 0 {
		max = MaxReasons
	}
	out := make([]string, 0, max)
	seen := make(map[string]struct{}, max)
	for _, list := range [][]string{existing, incoming} {
		for _, r := range list {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			if _, ok := seen[r]; ok {
				continue
			}
			if len(out) >= max {
				return out
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// EnsureReasons 保证至少有一条非空解释。
func EnsureReasons(reasons []string) []string {
	merged := MergeReasons(nil, reasons, 0)
	if len(merged) == 0 {
		return []string{DefaultReason}
	}
	return merged
}
