package feast

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UserFeatureSource 按用户读取 Feast 在线特征，供 learned 召回作为附加特征。
//
// 返回的 key 是去掉 feature view 前缀的特征名，例如 "user_stats:orders_7d" -> "orders_7d"。
type UserFeatureSource struct {
	Client   Client
	Project  string
	Entity   string
	Features []string
	Timeout  time.Duration
}

// NewUserFeatureSource entity 为空时使用 "user_id"。
func NewUserFeatureSource(client Client, project, entity string, features []string, timeout time.Duration) *UserFeatureSource {
	if entity == "" {
		entity = "user_id"
	}
	return &UserFeatureSource{
		Client:   client,
		Project:  project,
		Entity:   entity,
		Features: features,
		Timeout:  timeout,
	}
}

// UserFeatures 读取单个用户的特征。未配置特征时返回 (nil, nil)。
func (s *UserFeatureSource) UserFeatures(ctx context.Context, userID string) (map[string]float64, error) {
	if s == nil || s.Client == nil || len(s.Features) == 0 || userID == "" {
		return nil, nil
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	resp, err := s.Client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   s.Features,
		EntityRows: []map[string]interface{}{{s.Entity: userID}},
		Project:    s.Project,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.FeatureVectors) != 1 {
		return nil, fmt.Errorf("feast: expected 1 feature vector, got %d", len(resp.FeatureVectors))
	}

	out := make(map[string]float64, len(resp.FeatureVectors[0].Values))
	for ref, v := range resp.FeatureVectors[0].Values {
		out[featureName(ref)] = v
	}
	return out, nil
}

func featureName(ref string) string {
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
