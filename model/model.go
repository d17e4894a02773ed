// Package model 提供 learned 召回使用的逻辑回归权重：快照、原子切换、离线重训与持久化。
package model

// 特征名。learned 召回产出、训练器消费，两侧必须一致。
const (
	FeatureCategoryShare   = "cat_share"     // 类别信号占比
	FeatureCategoryRecency = "cat_recency"   // 类别最近交互的衰减值
	FeatureCategoryCount   = "cat_count_log" // log1p(类别交互数)
	FeaturePopularity      = "popularity"    // 目录热度
	FeatureContextMatch    = "ctx_match"     // 当前上下文规则是否命中该类别
	FeatureWeekend         = "weekend"
	FeatureAttrSimilarity  = "attr_sim" // 与用户属性偏好的相似度

	// FeastPrefix 外部特征存储提供的用户特征统一加前缀
	FeastPrefix = "feast_"
)
