package approval

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coordfill/internal/order"
	"coordfill/internal/registry"
	"coordfill/internal/txn"
)

const defaultRequestTimeout = 10 * time.Second

// Options 控制聚合器行为。
type Options struct {
	RequestTimeout time.Duration
	Recorder       Recorder
}

// Aggregator 并发征集各审批方对规范交易的会签并合并结果。
// 单个审批方不可达或拒绝不会中断其余请求，只在全部落定后上升为批次级失败。
type Aggregator struct {
	transport Transport
	resolver  registry.Resolver
	recorder  Recorder
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAggregator 创建聚合器。
func NewAggregator(transport Transport, resolver registry.Resolver, opts Options, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Aggregator{
		transport: transport,
		resolver:  resolver,
		recorder:  opts.Recorder,
		timeout:   timeout,
		logger:    logger,
	}
}

// Aggregate 对每个有分组的审批方恰好发出一次请求，并合并全部答复。
// 全部批准时返回按审批方地址排序拼接的签名与过期时间；
// 存在拒绝时返回 *MultiApprovalError，调用方可据此缩减批次重试。
// 每次调用都是一轮全新协商，不缓存、不去重。
func (a *Aggregator) Aggregate(ctx context.Context, tx txn.Transaction, origin common.Address, groups order.Groups, free []order.Order) (Result, error) {
	authorities := order.SortedAuthorities(groups)

	if len(authorities) == 0 {
		return Result{Orders: append([]order.Order(nil), free...)}, nil
	}

	slots := make([]Outcome, len(authorities))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, authority := range authorities {
		i, authority := i, authority
		eg.Go(func() error {
			slots[i] = a.negotiate(egCtx, tx, origin, authority)
			return egCtx.Err()
		})
	}

	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	// 签名数量与分组订单数不一致的批准是不可用的，折算为拒绝。
	for i, slot := range slots {
		if slot.Approval != nil && len(slot.Approval.Signatures) != len(groups[authorities[i]]) {
			a.logger.Warn("审批方签名数量与订单数不一致",
				zap.String("authority", authorities[i].Hex()),
				zap.Int("signatures", len(slot.Approval.Signatures)),
				zap.Int("orders", len(groups[authorities[i]])),
			)
			slots[i] = Outcome{Refusal: &Refusal{Reason: ReasonInvalidResponse}}
		}
	}

	var refusals []Refusal
	for i, slot := range slots {
		if slot.Refusal != nil {
			refusal := *slot.Refusal
			refusal.Authority = authorities[i]
			refusals = append(refusals, refusal)
		}
	}

	if len(refusals) == 0 {
		return a.combine(authorities, slots, groups, free), nil
	}

	return Result{}, a.report(authorities, slots, groups, free, refusals)
}

// negotiate 完成与单个审批方的一问一答，任何失败都折算为拒绝。
func (a *Aggregator) negotiate(ctx context.Context, tx txn.Transaction, origin common.Address, authority common.Address) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	requestID := uuid.NewString()
	start := time.Now()

	endpoint, err := a.resolver.Resolve(reqCtx, authority)
	if err != nil {
		a.logger.Warn("解析审批方端点失败",
			zap.String("authority", authority.Hex()),
			zap.Error(err),
		)
		outcome := Outcome{Refusal: &Refusal{Reason: ReasonUnreachable}}
		a.audit(ctx, requestID, tx, authority, "", outcome, time.Since(start))
		return outcome
	}

	outcome, err := a.transport.Request(reqCtx, endpoint, tx, origin, requestID)
	if err != nil {
		a.logger.Warn("审批方不可达",
			zap.String("authority", authority.Hex()),
			zap.String("endpoint", endpoint),
			zap.String("request_id", requestID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		outcome = Outcome{Refusal: &Refusal{Reason: ReasonUnreachable}}
	}

	a.audit(ctx, requestID, tx, authority, endpoint, outcome, time.Since(start))
	return outcome
}

func (a *Aggregator) audit(ctx context.Context, requestID string, tx txn.Transaction, authority common.Address, endpoint string, outcome Outcome, latency time.Duration) {
	if a.recorder == nil {
		return
	}

	rec := Record{
		RequestID: requestID,
		TxHash:    tx.Hash(),
		Authority: authority,
		Endpoint:  endpoint,
		Outcome:   "approved",
		Latency:   latency,
		Timestamp: time.Now().UTC(),
	}
	if outcome.Refusal != nil {
		rec.Outcome = "refused"
		rec.Reason = outcome.Refusal.Reason
	}

	a.recorder.RecordRequest(ctx, rec)
}

// combine 在全部批准时按固定顺序拼接签名与过期时间。
func (a *Aggregator) combine(authorities []common.Address, slots []Outcome, groups order.Groups, free []order.Order) Result {
	result := Result{
		Orders: order.Flatten(groups, free),
	}

	for i, authority := range authorities {
		approval := slots[i].Approval
		result.Signatures = append(result.Signatures, approval.Signatures...)
		result.Expirations = append(result.Expirations, approval.Expirations...)
		a.logger.Debug("审批方已批准",
			zap.String("authority", authority.Hex()),
			zap.Int("signatures", len(approval.Signatures)),
		)
	}

	return result
}

// report 构造多方审批失败报告，保证每个输入订单恰好出现在一个桶中。
func (a *Aggregator) report(authorities []common.Address, slots []Outcome, groups order.Groups, free []order.Order, refusals []Refusal) *MultiApprovalError {
	failure := &MultiApprovalError{Refusals: refusals}

	refusalByAuthority := make(map[common.Address]Refusal, len(refusals))
	for _, r := range refusals {
		refusalByAuthority[r.Authority] = r
	}

	for i, authority := range authorities {
		if slots[i].Approval != nil {
			failure.Approved = append(failure.Approved, groups[authority]...)
			continue
		}

		refusal := refusalByAuthority[authority]
		if len(refusal.OrderHashes) == 0 {
			// 未点名具体订单时，整个分组视为被拒。
			failure.Refused = append(failure.Refused, groups[authority]...)
			continue
		}

		named := make(map[common.Hash]struct{}, len(refusal.OrderHashes))
		for _, h := range refusal.OrderHashes {
			named[h] = struct{}{}
		}
		for _, o := range groups[authority] {
			if _, ok := named[o.Hash()]; ok {
				failure.Refused = append(failure.Refused, o)
			} else {
				failure.Unconfirmed = append(failure.Unconfirmed, o)
			}
		}
	}

	failure.Approved = append(failure.Approved, free...)

	a.logger.Info("批次审批未全数通过",
		zap.Int("refusals", len(failure.Refusals)),
		zap.Int("approved", len(failure.Approved)),
		zap.Int("refused", len(failure.Refused)),
		zap.Int("unconfirmed", len(failure.Unconfirmed)),
	)

	return failure
}
