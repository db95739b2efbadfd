package order

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMalformedOrder 表示订单记录字段不完整或不合法。
	ErrMalformedOrder = errors.New("order: 订单记录不合法")
)

// Order 表示一笔由挂单方预先签名的委托，本库不会修改其内容。
// Authority 为零地址时表示该订单无需第三方审批。
type Order struct {
	Maker          common.Address
	Taker          common.Address
	Authority      common.Address
	MakerAmount    *big.Int
	TakerAmount    *big.Int
	Expiry         uint64
	Salt           *big.Int
	MakerAssetData []byte
	TakerAssetData []byte
	Signature      []byte
}

// NeedsApproval 判断订单是否指定了审批方。
func (o Order) NeedsApproval() bool {
	return o.Authority != (common.Address{})
}

// Hash 计算订单的唯一标识，用于匹配审批方点名拒绝的订单。
func (o Order) Hash() common.Hash {
	var makerAmt, takerAmt, salt [32]byte
	if o.MakerAmount != nil {
		o.MakerAmount.FillBytes(makerAmt[:])
	}
	if o.TakerAmount != nil {
		o.TakerAmount.FillBytes(takerAmt[:])
	}
	if o.Salt != nil {
		o.Salt.FillBytes(salt[:])
	}

	var expiry [8]byte
	for i := 0; i < 8; i++ {
		expiry[7-i] = byte(o.Expiry >> (8 * i))
	}

	return crypto.Keccak256Hash(
		o.Maker.Bytes(),
		o.Taker.Bytes(),
		o.Authority.Bytes(),
		makerAmt[:],
		takerAmt[:],
		expiry[:],
		salt[:],
		o.MakerAssetData,
		o.TakerAssetData,
	)
}

func (o Order) validate() error {
	if o.Maker == (common.Address{}) {
		return errors.New("maker 地址不能为空")
	}
	if o.MakerAmount == nil || o.MakerAmount.Sign() <= 0 {
		return errors.New("maker 数量必须大于0")
	}
	if o.TakerAmount == nil || o.TakerAmount.Sign() <= 0 {
		return errors.New("taker 数量必须大于0")
	}
	if len(o.Signature) == 0 {
		return errors.New("缺少挂单方签名")
	}
	return nil
}
