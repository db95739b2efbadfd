package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"coordfill/internal/order"
)

// 拒绝原因的机器可读取值。超时与网络失败统一折算为 ReasonUnreachable。
const (
	ReasonUnreachable     = "unreachable"
	ReasonInvalidResponse = "invalid response"
)

// Approval 表示审批方的肯定答复：每个被询问订单对应一对签名与过期时间。
type Approval struct {
	Signatures  [][]byte
	Expirations []uint64
}

// Refusal 表示审批方的否定答复。
// OrderHashes 为空时视为拒绝整个分组，否则仅拒绝被点名的订单。
type Refusal struct {
	Authority   common.Address
	Code        int
	Reason      string
	OrderHashes []common.Hash
}

// Result 为全部审批通过时的聚合结果。
// Signatures 与 Expirations 和 Orders 中需要审批的前缀逐位对齐；
// 免审批订单排在末尾，无条件视为已批准，不占用签名位。
type Result struct {
	Orders      []order.Order
	Signatures  [][]byte
	Expirations []uint64
}

// MultiApprovalError 在任一审批方拒绝时返回，保留部分成功信息供调用方缩减批次后重试。
type MultiApprovalError struct {
	// Approved 为已获批准的订单：批准方分组内的全部订单加上所有免审批订单。
	Approved []order.Order
	// Refused 为被拒绝的订单。
	Refused []order.Order
	// Unconfirmed 为拒绝方点名部分订单时，同组中既未获批也未被点名的订单。
	Unconfirmed []order.Order
	// Cancelled 预留给撤单通知，本层恒为空。
	Cancelled []order.Order
	// Refusals 为各拒绝方的原始答复。
	Refusals []Refusal
}

func (e *MultiApprovalError) Error() string {
	return fmt.Sprintf("approval: %d 个审批方拒绝交易（已批准 %d 单，被拒 %d 单）",
		len(e.Refusals), len(e.Approved), len(e.Refused))
}

// Record 描述一次审批协商的审计信息。
type Record struct {
	RequestID string
	TxHash    common.Hash
	Authority common.Address
	Endpoint  string
	Outcome   string
	Reason    string
	Latency   time.Duration
	Timestamp time.Time
}

// Recorder 持久化协商审计记录，写入失败不得影响聚合流程。
type Recorder interface {
	RecordRequest(ctx context.Context, rec Record)
}
