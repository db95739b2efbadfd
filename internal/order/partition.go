package order

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Groups 是审批方地址到其负责订单的映射。
// 每个分组内的订单保持它们在原始批次中的相对顺序。
type Groups map[common.Address][]Order

// Partition 将订单批次拆分为按审批方分组的部分与无需审批的部分。
// 拆分是稳定的：组内顺序与 Free 内顺序均与输入一致。
func Partition(batch []Order) (Groups, []Order, error) {
	groups := make(Groups)
	free := make([]Order, 0, len(batch))

	for i, o := range batch {
		if err := o.validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: 第 %d 个订单: %v", ErrMalformedOrder, i, err)
		}

		if !o.NeedsApproval() {
			free = append(free, o)
			continue
		}

		groups[o.Authority] = append(groups[o.Authority], o)
	}

	return groups, free, nil
}

// SortedAuthorities 返回按地址字节序排序的审批方列表。
// 聚合阶段以此固定签名拼接顺序，保证同一批次的输出可复现。
func SortedAuthorities(groups Groups) []common.Address {
	authorities := make([]common.Address, 0, len(groups))
	for addr := range groups {
		authorities = append(authorities, addr)
	}
	sort.Slice(authorities, func(i, j int) bool {
		return bytes.Compare(authorities[i].Bytes(), authorities[j].Bytes()) < 0
	})
	return authorities
}

// Flatten 按结算顺序展开批次：先是各审批方分组（按地址排序），再是免审批订单。
func Flatten(groups Groups, free []Order) []Order {
	flat := make([]Order, 0, totalSize(groups)+len(free))
	for _, addr := range SortedAuthorities(groups) {
		flat = append(flat, groups[addr]...)
	}
	flat = append(flat, free...)
	return flat
}

func totalSize(groups Groups) int {
	n := 0
	for _, orders := range groups {
		n += len(orders)
	}
	return n
}
