package txn

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"coordfill/internal/signer"
)

var (
	// ErrInvalidAddress 表示发起方地址不合法。
	ErrInvalidAddress = errors.New("txn: 发起方地址不合法")

	// walletMarkerSignature 是合约账户的标记签名：
	// 链上由该地址的合约自行校验交易哈希，无需交互式签名。
	walletMarkerSignature = []byte{0x04}

	maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)
)

// Transaction 表示一次批量成交意图的规范交易对象，签名后不再变更。
type Transaction struct {
	Salt      *big.Int
	Signer    common.Address
	Data      []byte
	Signature []byte
}

// Hash 计算交易哈希，审批方与签名方均以此为准。
func (t Transaction) Hash() common.Hash {
	var salt [32]byte
	if t.Salt != nil {
		t.Salt.FillBytes(salt[:])
	}
	return crypto.Keccak256Hash(salt[:], t.Signer.Bytes(), t.Data)
}

// IsWalletSigned 判断交易是否携带合约账户标记签名。
func (t Transaction) IsWalletSigned() bool {
	return len(t.Signature) == 1 && t.Signature[0] == walletMarkerSignature[0]
}

// CodeReader 探测某地址是否部署了合约代码，ethclient.Client 满足该接口。
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Builder 构造规范交易：生成随机盐、根据账户类型选择签名方式。
type Builder struct {
	code   CodeReader
	signer signer.Signer
	logger *zap.Logger
}

// NewBuilder 创建交易构造器。
func NewBuilder(code CodeReader, s signer.Signer, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		code:   code,
		signer: s,
		logger: logger,
	}
}

// Build 将已编码的成交 calldata 包装为签名后的规范交易。
// 发起方为合约账户时附加标记签名，否则调用外部签名方。
func (b *Builder) Build(ctx context.Context, signerAddr common.Address, data []byte) (Transaction, error) {
	if signerAddr == (common.Address{}) {
		return Transaction{}, ErrInvalidAddress
	}

	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return Transaction{}, fmt.Errorf("txn: 生成随机盐失败: %w", err)
	}

	tx := Transaction{
		Salt:   salt,
		Signer: signerAddr,
		Data:   data,
	}

	code, err := b.code.CodeAt(ctx, signerAddr, nil)
	if err != nil {
		return Transaction{}, fmt.Errorf("txn: 探测账户代码失败: %w", err)
	}

	if len(code) > 0 {
		b.logger.Debug("发起方为合约账户，使用标记签名",
			zap.String("signer", signerAddr.Hex()),
		)
		tx.Signature = walletMarkerSignature
		return tx, nil
	}

	sig, err := b.signer.Sign(ctx, tx.Hash(), signerAddr)
	if err != nil {
		return Transaction{}, fmt.Errorf("txn: 获取交易签名失败: %w", err)
	}
	tx.Signature = sig

	return tx, nil
}
