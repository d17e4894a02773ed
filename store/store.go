// Package store 只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var kv core.Store = store.NewMemoryStore()
//	var fb core.FeedbackStore = store.NewRedisFeedbackStore(client, "fb")
package store
