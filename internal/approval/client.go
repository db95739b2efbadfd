package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"coordfill/internal/txn"
)

// Outcome 是传输层解码后的带标签联合：Approval 与 Refusal 恰有一个非空。
type Outcome struct {
	Approval *Approval
	Refusal  *Refusal
}

// Transport 向单个审批方发出审批请求并解码答复。
// 返回 error 仅表示该审批方不可达，由聚合层折算为拒绝。
type Transport interface {
	Request(ctx context.Context, endpoint string, tx txn.Transaction, origin common.Address, requestID string) (Outcome, error)
}

// HTTPClient 以 JSON-over-HTTP 实现审批请求传输。
type HTTPClient struct {
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPClient 创建传输客户端。超时由调用方通过 ctx 控制。
func NewHTTPClient(logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		http:   &http.Client{},
		logger: logger,
	}
}

type signedTransactionBody struct {
	Salt          string `json:"salt"`
	SignerAddress string `json:"signerAddress"`
	Data          string `json:"data"`
	Signature     string `json:"signature"`
}

type requestBody struct {
	SignedTransaction signedTransactionBody `json:"signedTransaction"`
	TxOrigin          string                `json:"txOrigin"`
	RequestID         string                `json:"requestId"`
}

// responseBody 同时承载成功与失败两种答复，以 HTTP 状态码为判别依据。
// 成功时过期时间可能是单个共享值（expirationTimeSeconds）
// 或逐签名列表（expirationTimesSeconds），解码后统一为逐签名列表。
type responseBody struct {
	Signatures             []string `json:"signatures"`
	ExpirationTimeSeconds  *uint64  `json:"expirationTimeSeconds"`
	ExpirationTimesSeconds []uint64 `json:"expirationTimesSeconds"`

	Code        int      `json:"code"`
	Reason      string   `json:"reason"`
	OrderHashes []string `json:"orderHashes"`
}

// Request 发送审批请求。答复按状态码分类：2xx 解析为批准，其余解析为拒绝。
func (c *HTTPClient) Request(ctx context.Context, endpoint string, tx txn.Transaction, origin common.Address, requestID string) (Outcome, error) {
	body := requestBody{
		SignedTransaction: signedTransactionBody{
			Salt:          tx.Salt.String(),
			SignerAddress: tx.Signer.Hex(),
			Data:          hexutil.Encode(tx.Data),
			Signature:     hexutil.Encode(tx.Signature),
		},
		TxOrigin:  origin.Hex(),
		RequestID: requestID,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Outcome{}, fmt.Errorf("approval: 序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, fmt.Errorf("approval: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("approval: 请求审批方失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("approval: 读取答复失败: %w", err)
	}

	c.logger.Debug("审批方已答复",
		zap.String("endpoint", endpoint),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var decoded responseBody
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Outcome{Refusal: &Refusal{Reason: ReasonInvalidResponse}}, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decodeApproval(decoded)
	}

	return decodeRefusal(decoded, resp.StatusCode), nil
}

func decodeApproval(body responseBody) (Outcome, error) {
	if len(body.Signatures) == 0 {
		return Outcome{Refusal: &Refusal{Reason: ReasonInvalidResponse}}, nil
	}

	sigs := make([][]byte, 0, len(body.Signatures))
	for _, s := range body.Signatures {
		sig, err := hexutil.Decode(s)
		if err != nil {
			return Outcome{Refusal: &Refusal{Reason: ReasonInvalidResponse}}, nil
		}
		sigs = append(sigs, sig)
	}

	var exps []uint64
	switch {
	case len(body.ExpirationTimesSeconds) > 0:
		if len(body.ExpirationTimesSeconds) != len(sigs) {
			return Outcome{Refusal: &Refusal{Reason: ReasonInvalidResponse}}, nil
		}
		exps = body.ExpirationTimesSeconds
	case body.ExpirationTimeSeconds != nil:
		exps = make([]uint64, len(sigs))
		for i := range exps {
			exps[i] = *body.ExpirationTimeSeconds
		}
	default:
		return Outcome{Refusal: &Refusal{Reason: ReasonInvalidResponse}}, nil
	}

	return Outcome{Approval: &Approval{Signatures: sigs, Expirations: exps}}, nil
}

func decodeRefusal(body responseBody, status int) Outcome {
	refusal := &Refusal{
		Code:   body.Code,
		Reason: body.Reason,
	}
	if refusal.Reason == "" {
		refusal.Reason = http.StatusText(status)
	}
	for _, h := range body.OrderHashes {
		refusal.OrderHashes = append(refusal.OrderHashes, common.HexToHash(h))
	}
	return Outcome{Refusal: refusal}
}
