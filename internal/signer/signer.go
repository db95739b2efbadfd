package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrSignatureDenied 表示外部签名方拒绝了签名请求。
	ErrSignatureDenied = errors.New("signer: 签名请求被拒绝")
)

// Signer 抽象交易哈希的签名来源。
// 实现可能需要等待人工确认，调用方取消 ctx 时必须尽快返回。
type Signer interface {
	Sign(ctx context.Context, hash common.Hash, addr common.Address) ([]byte, error)
}

// LocalSigner 使用本地私钥完成签名，不产生网络交互。
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner 从十六进制私钥构造本地签名器。
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: 解析私钥失败: %w", err)
	}

	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address 返回私钥对应的地址。
func (s *LocalSigner) Address() common.Address {
	return s.addr
}

// Sign 对交易哈希签名，addr 与持有私钥不匹配时拒绝。
func (s *LocalSigner) Sign(ctx context.Context, hash common.Hash, addr common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr != s.addr {
		return nil, fmt.Errorf("%w: 地址 %s 与本地私钥不匹配", ErrSignatureDenied, addr.Hex())
	}

	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: 签名失败: %w", err)
	}
	return sig, nil
}
