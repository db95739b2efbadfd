package calldata

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"coordfill/internal/order"
	"coordfill/internal/txn"
)

// 结算合约与交易所合约的接口片段，仅包含本库需要编码的方法。
const (
	coordinatorABIJSON = `[{"name":"executeTransaction","type":"function","inputs":[
		{"name":"transaction","type":"tuple","components":[
			{"name":"salt","type":"uint256"},
			{"name":"signerAddress","type":"address"},
			{"name":"data","type":"bytes"}]},
		{"name":"txOrigin","type":"address"},
		{"name":"transactionSignature","type":"bytes"},
		{"name":"approvalExpirationTimeSeconds","type":"uint256[]"},
		{"name":"approvalSignatures","type":"bytes[]"}],"outputs":[]}]`

	exchangeABIJSON = `[{"name":"marketBuyOrdersFillOrKill","type":"function","inputs":[
		{"name":"orders","type":"tuple[]","components":[
			{"name":"makerAddress","type":"address"},
			{"name":"takerAddress","type":"address"},
			{"name":"senderAddress","type":"address"},
			{"name":"makerAssetAmount","type":"uint256"},
			{"name":"takerAssetAmount","type":"uint256"},
			{"name":"expirationTimeSeconds","type":"uint256"},
			{"name":"salt","type":"uint256"},
			{"name":"makerAssetData","type":"bytes"},
			{"name":"takerAssetData","type":"bytes"}]},
		{"name":"makerAssetFillAmount","type":"uint256"},
		{"name":"signatures","type":"bytes[]"}],"outputs":[]},
	{"name":"marketSellOrdersFillOrKill","type":"function","inputs":[
		{"name":"orders","type":"tuple[]","components":[
			{"name":"makerAddress","type":"address"},
			{"name":"takerAddress","type":"address"},
			{"name":"senderAddress","type":"address"},
			{"name":"makerAssetAmount","type":"uint256"},
			{"name":"takerAssetAmount","type":"uint256"},
			{"name":"expirationTimeSeconds","type":"uint256"},
			{"name":"salt","type":"uint256"},
			{"name":"makerAssetData","type":"bytes"},
			{"name":"takerAssetData","type":"bytes"}]},
		{"name":"takerAssetFillAmount","type":"uint256"},
		{"name":"signatures","type":"bytes[]"}],"outputs":[]}]`
)

// Metadata 记录生成 calldata 的方法信息，供上层与审计侧自省。
type Metadata struct {
	Method     string
	FillAmount *big.Int
	OrderCount int
}

// SubmitCall 是交给结算提交方的最终产物。
type SubmitCall struct {
	To     common.Address
	Data   []byte
	Method Metadata
}

type abiOrder struct {
	MakerAddress          common.Address
	TakerAddress          common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        []byte
	TakerAssetData        []byte
}

// Assembler 负责批量成交 calldata 的编码以及最终结算载荷的组装。
// 所有方法均为纯函数，不做网络交互。
type Assembler struct {
	coordinator    common.Address
	coordinatorABI abi.ABI
	exchangeABI    abi.ABI
}

// NewAssembler 创建组装器，coordinator 为结算入口合约地址。
func NewAssembler(coordinator common.Address) (*Assembler, error) {
	coordABI, err := abi.JSON(strings.NewReader(coordinatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("calldata: 解析结算合约ABI失败: %w", err)
	}
	exABI, err := abi.JSON(strings.NewReader(exchangeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("calldata: 解析交易所ABI失败: %w", err)
	}

	return &Assembler{
		coordinator:    coordinator,
		coordinatorABI: coordABI,
		exchangeABI:    exABI,
	}, nil
}

// EncodeMarketBuy 编码买入固定数量的批量成交 calldata。
func (a *Assembler) EncodeMarketBuy(orders []order.Order, makerAssetFillAmount *big.Int) ([]byte, Metadata, error) {
	return a.encodeMarket("marketBuyOrdersFillOrKill", orders, makerAssetFillAmount)
}

// EncodeMarketSell 编码卖出固定数量的批量成交 calldata。
func (a *Assembler) EncodeMarketSell(orders []order.Order, takerAssetFillAmount *big.Int) ([]byte, Metadata, error) {
	return a.encodeMarket("marketSellOrdersFillOrKill", orders, takerAssetFillAmount)
}

func (a *Assembler) encodeMarket(method string, orders []order.Order, fillAmount *big.Int) ([]byte, Metadata, error) {
	if len(orders) == 0 {
		return nil, Metadata{}, fmt.Errorf("calldata: 订单批次为空")
	}
	if fillAmount == nil || fillAmount.Sign() <= 0 {
		return nil, Metadata{}, fmt.Errorf("calldata: 成交数量必须大于0")
	}

	packed := make([]abiOrder, 0, len(orders))
	sigs := make([][]byte, 0, len(orders))
	for _, o := range orders {
		packed = append(packed, abiOrder{
			MakerAddress:          o.Maker,
			TakerAddress:          o.Taker,
			SenderAddress:         o.Authority,
			MakerAssetAmount:      o.MakerAmount,
			TakerAssetAmount:      o.TakerAmount,
			ExpirationTimeSeconds: new(big.Int).SetUint64(o.Expiry),
			Salt:                  saltOrZero(o.Salt),
			MakerAssetData:        o.MakerAssetData,
			TakerAssetData:        o.TakerAssetData,
		})
		sigs = append(sigs, o.Signature)
	}

	data, err := a.exchangeABI.Pack(method, packed, fillAmount, sigs)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("calldata: 编码 %s 失败: %w", method, err)
	}

	meta := Metadata{
		Method:     method,
		FillAmount: fillAmount,
		OrderCount: len(orders),
	}
	return data, meta, nil
}

// AssembleExecution 将签名后的规范交易与聚合到的会签打包为结算调用。
func (a *Assembler) AssembleExecution(tx txn.Transaction, txOrigin common.Address, sigs [][]byte, exps []uint64, meta Metadata) (SubmitCall, error) {
	if len(sigs) != len(exps) {
		return SubmitCall{}, fmt.Errorf("calldata: 签名与过期时间数量不一致: %d vs %d", len(sigs), len(exps))
	}

	transaction := struct {
		Salt          *big.Int
		SignerAddress common.Address
		Data          []byte
	}{
		Salt:          saltOrZero(tx.Salt),
		SignerAddress: tx.Signer,
		Data:          tx.Data,
	}

	expirations := make([]*big.Int, 0, len(exps))
	for _, e := range exps {
		expirations = append(expirations, new(big.Int).SetUint64(e))
	}

	data, err := a.coordinatorABI.Pack("executeTransaction",
		transaction, txOrigin, tx.Signature, expirations, sigs)
	if err != nil {
		return SubmitCall{}, fmt.Errorf("calldata: 编码 executeTransaction 失败: %w", err)
	}

	return SubmitCall{
		To:     a.coordinator,
		Data:   data,
		Method: meta,
	}, nil
}

func saltOrZero(salt *big.Int) *big.Int {
	if salt == nil {
		return new(big.Int)
	}
	return salt
}
