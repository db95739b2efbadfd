// Package coordfill 实现预签名订单批次的第三方审批聚合：
// 构造规范交易、按审批方拆分订单、并发征集会签，并组装可供结算层原子执行的载荷。
package coordfill

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"coordfill/internal/approval"
	"coordfill/internal/calldata"
	"coordfill/internal/config"
	"coordfill/internal/log"
	"coordfill/internal/order"
	"coordfill/internal/registry"
	"coordfill/internal/signer"
	"coordfill/internal/store"
	"coordfill/internal/txn"
)

// 对外暴露内部类型，调用方无需触达 internal 包。
type (
	Config             = config.Config
	Order              = order.Order
	Groups             = order.Groups
	SubmitCall         = calldata.SubmitCall
	Metadata           = calldata.Metadata
	AggregateResult    = approval.Result
	MultiApprovalError = approval.MultiApprovalError
	Refusal            = approval.Refusal
	Signer             = signer.Signer
	CodeReader         = txn.CodeReader
	Transport          = approval.Transport
	Resolver           = registry.Resolver
	Recorder           = approval.Recorder
)

var (
	ErrMalformedOrder   = order.ErrMalformedOrder
	ErrInvalidAddress   = txn.ErrInvalidAddress
	ErrSignatureDenied  = signer.ErrSignatureDenied
	ErrUnknownAuthority = registry.ErrUnknownAuthority
)

// LoadConfig 从配置文件加载并校验配置。
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Options 允许调用方注入外部协作方；为空的字段按配置构造默认实现。
type Options struct {
	Logger     *zap.Logger
	CodeReader CodeReader
	Signer     Signer
	Transport  Transport
	Resolver   Resolver
	Recorder   Recorder
}

// Client 聚合全部阶段并驱动完整的审批-组装流程。
type Client struct {
	cfg        *config.Config
	logger     *zap.Logger
	builder    *txn.Builder
	aggregator *approval.Aggregator
	assembler  *calldata.Assembler
	store      *store.Store
	origin     common.Address
}

// New 创建客户端。
func New(cfg *Config, opts Options) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("coordfill: 配置不能为空")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		built, err := log.NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("coordfill: 初始化日志失败: %w", err)
		}
		logger = built
	}

	codeReader := opts.CodeReader
	if codeReader == nil {
		if cfg.Coordinator.RPCURL == "" {
			return nil, fmt.Errorf("coordfill: 缺少代码探测器，需注入 CodeReader 或配置 coordinator.rpc_url")
		}
		eth, err := ethclient.Dial(cfg.Coordinator.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("coordfill: 连接节点失败: %w", err)
		}
		codeReader = eth
	}

	txSigner := opts.Signer
	if txSigner == nil && cfg.Signer.PrivateKey != "" {
		local, err := signer.NewLocalSigner(cfg.Signer.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("coordfill: 初始化本地签名器失败: %w", err)
		}
		txSigner = local
	}
	if txSigner == nil {
		// 合约账户走标记签名，不需要签名器；普通账户会在签名时被拒。
		txSigner = denySigner{}
	}

	resolver := opts.Resolver
	if resolver == nil {
		static, err := registry.NewStaticResolver(cfg.Registry.Endpoints)
		if err != nil {
			return nil, fmt.Errorf("coordfill: 初始化审批方注册表失败: %w", err)
		}
		resolver = static
	}

	transport := opts.Transport
	if transport == nil {
		transport = approval.NewHTTPClient(logger)
	}

	recorder := opts.Recorder
	var auditStore *store.Store
	if recorder == nil && cfg.Approval.AuditEnabled {
		s, err := store.NewSQLite(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("coordfill: 初始化审计数据库失败: %w", err)
		}
		auditLog, err := store.NewAuditLog(s, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		auditStore = s
		recorder = auditLog
	}

	assembler, err := calldata.NewAssembler(cfg.CoordinatorAddress())
	if err != nil {
		return nil, err
	}

	aggregator := approval.NewAggregator(transport, resolver, approval.Options{
		RequestTimeout: cfg.Approval.RequestTimeout,
		Recorder:       recorder,
	}, logger)

	return &Client{
		cfg:        cfg,
		logger:     logger,
		builder:    txn.NewBuilder(codeReader, txSigner, logger),
		aggregator: aggregator,
		assembler:  assembler,
		store:      auditStore,
		origin:     cfg.SignerAddress(),
	}, nil
}

// Close 释放客户端持有的资源。
func (c *Client) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// BuyExactAmount 以买入固定数量的方式执行批次：
// 编码成交 calldata、签名规范交易、征集全部会签并组装结算调用。
// 任一审批方拒绝时返回 *MultiApprovalError，携带部分成功信息。
func (c *Client) BuyExactAmount(ctx context.Context, orders []Order, makerAssetFillAmount *big.Int) (SubmitCall, error) {
	return c.execute(ctx, orders, makerAssetFillAmount, true)
}

// SellExactAmount 以卖出固定数量的方式执行批次。
func (c *Client) SellExactAmount(ctx context.Context, orders []Order, takerAssetFillAmount *big.Int) (SubmitCall, error) {
	return c.execute(ctx, orders, takerAssetFillAmount, false)
}

// ExecuteBatch 供已自行编码成交 calldata 的调用方使用，只负责审批聚合与载荷组装。
func (c *Client) ExecuteBatch(ctx context.Context, orders []Order, data []byte, meta Metadata) (SubmitCall, error) {
	groups, free, err := order.Partition(orders)
	if err != nil {
		return SubmitCall{}, err
	}
	return c.run(ctx, groups, free, data, meta)
}

func (c *Client) execute(ctx context.Context, orders []Order, fillAmount *big.Int, buy bool) (SubmitCall, error) {
	groups, free, err := order.Partition(orders)
	if err != nil {
		return SubmitCall{}, err
	}

	flat := order.Flatten(groups, free)

	var (
		data []byte
		meta calldata.Metadata
	)
	if buy {
		data, meta, err = c.assembler.EncodeMarketBuy(flat, fillAmount)
	} else {
		data, meta, err = c.assembler.EncodeMarketSell(flat, fillAmount)
	}
	if err != nil {
		return SubmitCall{}, err
	}

	return c.run(ctx, groups, free, data, meta)
}

func (c *Client) run(ctx context.Context, groups order.Groups, free []order.Order, data []byte, meta calldata.Metadata) (SubmitCall, error) {
	tx, err := c.builder.Build(ctx, c.origin, data)
	if err != nil {
		return SubmitCall{}, err
	}

	result, err := c.aggregator.Aggregate(ctx, tx, c.origin, groups, free)
	if err != nil {
		return SubmitCall{}, err
	}

	call, err := c.assembler.AssembleExecution(tx, c.origin, result.Signatures, result.Expirations, meta)
	if err != nil {
		return SubmitCall{}, err
	}

	c.logger.Info("批次审批完成",
		zap.String("method", meta.Method),
		zap.Int("orders", len(result.Orders)),
		zap.Int("approvals", len(result.Signatures)),
		zap.String("to", call.To.Hex()),
	)

	return call, nil
}

// denySigner 在未配置任何签名来源时拒绝签名请求。
type denySigner struct{}

func (denySigner) Sign(_ context.Context, _ common.Hash, addr common.Address) ([]byte, error) {
	return nil, fmt.Errorf("%w: 未配置签名来源（地址 %s）", signer.ErrSignatureDenied, addr.Hex())
}
