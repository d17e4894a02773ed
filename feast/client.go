// Package feast 封装 Feast 在线特征服务，为 learned 召回提供用户级实时特征。
package feast

import (
	"context"
)

// Client 是 Feast Feature Store 的在线读取接口。
//
// 只暴露推荐链路需要的在线特征；离线训练数据由反馈日志生成，不经过 Feast。
//
// 参考：https://github.com/feast-dev/feast
type Client interface {
	// GetOnlineFeatures 获取在线特征
	//
	// 参数：
	//   - Features: 特征引用，例如 ["user_stats:orders_7d", "user_stats:avg_rating"]
	//   - EntityRows: 实体行，例如 [{"user_id": "u-1001"}]
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求
type GetOnlineFeaturesRequest struct {
	Features   []string
	EntityRows []map[string]interface{}
	// Project 为空时使用客户端默认项目
	Project string
}

// GetOnlineFeaturesResponse 获取在线特征响应，FeatureVectors 与 EntityRows 一一对应
type GetOnlineFeaturesResponse struct {
	FeatureVectors []FeatureVector
}

// FeatureVector 是单个实体的特征值。非数值特征在转换时被丢弃。
type FeatureVector struct {
	Values    map[string]float64
	EntityRow map[string]interface{}
}
