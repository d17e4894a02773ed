package feast

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"
)

// DefaultPort Feast Serving 的默认 gRPC 端口。
const DefaultPort = 6566

// GrpcClient 是基于官方 Feast Go SDK 的 gRPC 客户端实现。
type GrpcClient struct {
	client *feastsdk.GrpcClient

	// Project 默认项目
	Project string

	// Endpoint 服务端点（用于日志）
	Endpoint string
}

// NewGrpcClient 创建 Feast gRPC 客户端，token 非空时使用静态 Token 认证。
func NewGrpcClient(host string, port int, project, token string) (*GrpcClient, error) {
	if port == 0 {
		port = DefaultPort
	}

	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if token != "" {
		client, err = feastsdk.NewSecureGrpcClient(host, port, feastsdk.SecurityConfig{
			Credential: feastsdk.NewStaticCredential(token),
		})
	} else {
		client, err = feastsdk.NewGrpcClient(host, port)
	}
	if err != nil {
		return nil, fmt.Errorf("feast: dial %s:%d: %w", host, port, err)
	}

	return &GrpcClient{
		client:   client,
		Project:  project,
		Endpoint: fmt.Sprintf("%s:%d", host, port),
	}, nil
}

// GetOnlineFeatures 实现 Client 接口。
func (c *GrpcClient) GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	if len(req.Features) == 0 {
		return nil, fmt.Errorf("feast: features are required")
	}
	if len(req.EntityRows) == 0 {
		return nil, fmt.Errorf("feast: entity rows are required")
	}
	project := req.Project
	if project == "" {
		project = c.Project
	}
	if project == "" {
		return nil, fmt.Errorf("feast: project is required")
	}

	entities := make([]feastsdk.Row, len(req.EntityRows))
	for i, row := range req.EntityRows {
		r := make(feastsdk.Row, len(row))
		for k, v := range row {
			r[k] = toSDKValue(v)
		}
		entities[i] = r
	}

	resp, err := c.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: req.Features,
		Entities: entities,
		Project:  project,
	})
	if err != nil {
		return nil, fmt.Errorf("feast: get online features: %w", err)
	}

	rows := resp.Rows()
	if len(rows) != len(req.EntityRows) {
		return nil, fmt.Errorf("feast: response row count mismatch: expected %d, got %d", len(req.EntityRows), len(rows))
	}

	vectors := make([]FeatureVector, len(rows))
	for i, row := range rows {
		values := make(map[string]float64, len(req.Features))
		for _, name := range req.Features {
			if f, ok := fromSDKValue(row[name]); ok {
				values[name] = f
			}
		}
		vectors[i] = FeatureVector{Values: values, EntityRow: req.EntityRows[i]}
	}
	return &GetOnlineFeaturesResponse{FeatureVectors: vectors}, nil
}

// Close SDK 的连接由 gRPC 管理，这里只释放引用。
func (c *GrpcClient) Close() error {
	c.client = nil
	return nil
}

func toSDKValue(v interface{}) *types.Value {
	switch val := v.(type) {
	case string:
		return feastsdk.StrVal(val)
	case int:
		return feastsdk.Int64Val(int64(val))
	case int64:
		return feastsdk.Int64Val(val)
	case int32:
		return feastsdk.Int64Val(int64(val))
	case float64:
		return feastsdk.DoubleVal(val)
	case float32:
		return feastsdk.FloatVal(val)
	case bool:
		return feastsdk.BoolVal(val)
	case []byte:
		return feastsdk.BytesVal(val)
	default:
		return feastsdk.StrVal(fmt.Sprintf("%v", val))
	}
}

// fromSDKValue 只保留数值与布尔特征，布尔值映射为 0/1。
func fromSDKValue(v *types.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch x := v.GetVal().(type) {
	case *types.Value_DoubleVal:
		return x.DoubleVal, true
	case *types.Value_FloatVal:
		return float64(x.FloatVal), true
	case *types.Value_Int64Val:
		return float64(x.Int64Val), true
	case *types.Value_Int32Val:
		return float64(x.Int32Val), true
	case *types.Value_BoolVal:
		if x.BoolVal {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

var _ Client = (*GrpcClient)(nil)
