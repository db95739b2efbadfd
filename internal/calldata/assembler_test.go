package calldata

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"coordfill/internal/order"
	"coordfill/internal/txn"
)

var (
	coordinatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	authorityAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func testOrders() []order.Order {
	return []order.Order{
		{
			Maker:          common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Authority:      authorityAddr,
			MakerAmount:    big.NewInt(100),
			TakerAmount:    big.NewInt(200),
			Expiry:         1700000000,
			Salt:           big.NewInt(7),
			MakerAssetData: []byte{0xf4, 0x72, 0x61, 0xb0},
			TakerAssetData: []byte{0xf4, 0x72, 0x61, 0xb1},
			Signature:      []byte{0x1b, 0x01},
		},
		{
			Maker:       common.HexToAddress("0x0000000000000000000000000000000000000002"),
			MakerAmount: big.NewInt(300),
			TakerAmount: big.NewInt(400),
			Salt:        big.NewInt(8),
			Signature:   []byte{0x1b, 0x02},
		},
	}
}

func TestEncodeMarketBuy_PacksSelectorAndArguments(t *testing.T) {
	assembler, err := NewAssembler(coordinatorAddr)
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	fill := big.NewInt(500)
	data, meta, err := assembler.EncodeMarketBuy(testOrders(), fill)
	if err != nil {
		t.Fatalf("EncodeMarketBuy returned error: %v", err)
	}

	method := assembler.exchangeABI.Methods["marketBuyOrdersFillOrKill"]
	if !bytes.HasPrefix(data, method.ID) {
		t.Fatalf("calldata must start with the method selector")
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("packed calldata must round-trip: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 arguments, got %d", len(values))
	}
	if amount, ok := values[1].(*big.Int); !ok || amount.Cmp(fill) != 0 {
		t.Errorf("fill amount mismatch: %v", values[1])
	}
	if sigs, ok := values[2].([][]byte); !ok || len(sigs) != 2 {
		t.Errorf("expected one signature per order: %v", values[2])
	}

	if meta.Method != "marketBuyOrdersFillOrKill" || meta.OrderCount != 2 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestEncodeMarketSell_UsesSellMethod(t *testing.T) {
	assembler, err := NewAssembler(coordinatorAddr)
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	data, meta, err := assembler.EncodeMarketSell(testOrders(), big.NewInt(42))
	if err != nil {
		t.Fatalf("EncodeMarketSell returned error: %v", err)
	}

	method := assembler.exchangeABI.Methods["marketSellOrdersFillOrKill"]
	if !bytes.HasPrefix(data, method.ID) {
		t.Fatalf("calldata must start with the sell selector")
	}
	if meta.Method != "marketSellOrdersFillOrKill" {
		t.Errorf("unexpected metadata method: %s", meta.Method)
	}
}

func TestEncodeMarket_RejectsBadInput(t *testing.T) {
	assembler, err := NewAssembler(coordinatorAddr)
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	if _, _, err := assembler.EncodeMarketBuy(nil, big.NewInt(1)); err == nil {
		t.Errorf("empty batch must be rejected")
	}
	if _, _, err := assembler.EncodeMarketBuy(testOrders(), big.NewInt(0)); err == nil {
		t.Errorf("non-positive fill amount must be rejected")
	}
}

func TestAssembleExecution_BuildsSubmitCall(t *testing.T) {
	assembler, err := NewAssembler(coordinatorAddr)
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	tx := txn.Transaction{
		Salt:      big.NewInt(99),
		Signer:    common.HexToAddress("0x0000000000000000000000000000000000000011"),
		Data:      []byte{0xde, 0xad, 0xbe, 0xef},
		Signature: []byte{0x04},
	}
	origin := tx.Signer
	sigs := [][]byte{{0x0a}, {0x0b}}
	exps := []uint64{100, 200}
	meta := Metadata{Method: "marketBuyOrdersFillOrKill", OrderCount: 2}

	call, err := assembler.AssembleExecution(tx, origin, sigs, exps, meta)
	if err != nil {
		t.Fatalf("AssembleExecution returned error: %v", err)
	}

	if call.To != coordinatorAddr {
		t.Errorf("destination must be the coordinator contract, got %s", call.To.Hex())
	}

	method := assembler.coordinatorABI.Methods["executeTransaction"]
	if !bytes.HasPrefix(call.Data, method.ID) {
		t.Fatalf("payload must start with executeTransaction selector")
	}
	values, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		t.Fatalf("payload must round-trip: %v", err)
	}
	if len(values) != 5 {
		t.Fatalf("expected 5 arguments, got %d", len(values))
	}
	if unpackedOrigin, ok := values[1].(common.Address); !ok || unpackedOrigin != origin {
		t.Errorf("txOrigin mismatch: %v", values[1])
	}
	if unpackedSigs, ok := values[4].([][]byte); !ok || len(unpackedSigs) != 2 {
		t.Errorf("approval signatures mismatch: %v", values[4])
	}

	if call.Method.Method != meta.Method {
		t.Errorf("metadata must pass through, got %+v", call.Method)
	}
}

func TestAssembleExecution_RejectsMisalignedLists(t *testing.T) {
	assembler, err := NewAssembler(coordinatorAddr)
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	tx := txn.Transaction{Salt: big.NewInt(1), Data: []byte{0x01}, Signature: []byte{0x04}}
	if _, err := assembler.AssembleExecution(tx, common.Address{}, [][]byte{{0x0a}}, nil, Metadata{}); err == nil {
		t.Fatalf("mismatched signature/expiration lengths must fail")
	}
}
