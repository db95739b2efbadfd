package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownAuthority 表示注册表中没有该审批方的服务端点。
	ErrUnknownAuthority = errors.New("registry: 未登记的审批方")
)

// Resolver 将审批方地址解析为其服务端点。
// 解析失败等同于该审批方不可达。
type Resolver interface {
	Resolve(ctx context.Context, authority common.Address) (string, error)
}

// StaticResolver 基于配置中的静态映射完成解析。
type StaticResolver struct {
	endpoints map[common.Address]string
}

// NewStaticResolver 从地址到URL的映射构造解析器。
func NewStaticResolver(endpoints map[string]string) (*StaticResolver, error) {
	parsed := make(map[common.Address]string, len(endpoints))
	for addr, endpoint := range endpoints {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("registry: %q 不是合法地址", addr)
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("registry: 端点 %q 不合法: %w", endpoint, err)
		}
		parsed[common.HexToAddress(addr)] = endpoint
	}
	return &StaticResolver{endpoints: parsed}, nil
}

// Resolve 查表返回端点。
func (r *StaticResolver) Resolve(_ context.Context, authority common.Address) (string, error) {
	endpoint, ok := r.endpoints[authority]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAuthority, authority.Hex())
	}
	return endpoint, nil
}
