package order

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	authorityX = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	authorityY = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func makeOrder(maker byte, authority common.Address, salt int64) Order {
	return Order{
		Maker:       common.BytesToAddress([]byte{maker}),
		Authority:   authority,
		MakerAmount: big.NewInt(100),
		TakerAmount: big.NewInt(200),
		Expiry:      1700000000,
		Salt:        big.NewInt(salt),
		Signature:   []byte{0x01, 0x02},
	}
}

func TestPartition_StableGrouping(t *testing.T) {
	batch := []Order{
		makeOrder(1, authorityX, 1),
		makeOrder(2, authorityY, 2),
		makeOrder(3, common.Address{}, 3),
		makeOrder(4, authorityX, 4),
	}

	groups, free, err := Partition(batch)
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(free) != 1 || free[0].Salt.Int64() != 3 {
		t.Fatalf("unexpected free orders: %+v", free)
	}

	groupX := groups[authorityX]
	if len(groupX) != 2 || groupX[0].Salt.Int64() != 1 || groupX[1].Salt.Int64() != 4 {
		t.Errorf("group X lost input order: %+v", groupX)
	}
	if len(groups[authorityY]) != 1 {
		t.Errorf("unexpected group Y size: %d", len(groups[authorityY]))
	}
}

func TestPartition_CaseNormalizedAddresses(t *testing.T) {
	lower := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	upper := common.HexToAddress("0x00000000000000000000000000000000000000CC")

	groups, _, err := Partition([]Order{
		makeOrder(1, lower, 1),
		makeOrder(2, upper, 2),
	})
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}

	if len(groups) != 1 {
		t.Fatalf("differently cased addresses must share one group, got %d", len(groups))
	}
	if len(groups[lower]) != 2 {
		t.Errorf("expected 2 orders in group, got %d", len(groups[lower]))
	}
}

func TestPartition_MalformedOrder(t *testing.T) {
	bad := makeOrder(1, authorityX, 1)
	bad.MakerAmount = big.NewInt(0)

	if _, _, err := Partition([]Order{bad}); !errors.Is(err, ErrMalformedOrder) {
		t.Fatalf("expected ErrMalformedOrder, got %v", err)
	}

	noMaker := makeOrder(1, authorityX, 1)
	noMaker.Maker = common.Address{}
	if _, _, err := Partition([]Order{noMaker}); !errors.Is(err, ErrMalformedOrder) {
		t.Fatalf("expected ErrMalformedOrder for empty maker, got %v", err)
	}
}

func TestFlatten_DeterministicOrder(t *testing.T) {
	batch := []Order{
		makeOrder(1, authorityY, 1),
		makeOrder(2, authorityX, 2),
		makeOrder(3, common.Address{}, 3),
	}

	groups, free, err := Partition(batch)
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}

	flat := Flatten(groups, free)
	if len(flat) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(flat))
	}

	// authorityX 的地址字节序更小，其订单排在前面，免审批订单收尾。
	if flat[0].Salt.Int64() != 2 || flat[1].Salt.Int64() != 1 || flat[2].Salt.Int64() != 3 {
		t.Errorf("unexpected flatten order: %d %d %d",
			flat[0].Salt.Int64(), flat[1].Salt.Int64(), flat[2].Salt.Int64())
	}
}

func TestOrderHash_DistinguishesOrders(t *testing.T) {
	a := makeOrder(1, authorityX, 1)
	b := makeOrder(1, authorityX, 2)

	if a.Hash() == b.Hash() {
		t.Fatalf("orders with different salts must hash differently")
	}
	if a.Hash() != a.Hash() {
		t.Fatalf("hash must be deterministic")
	}
}
