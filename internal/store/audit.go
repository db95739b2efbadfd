package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"coordfill/internal/approval"
)

// AuditLog 持久化每一轮审批协商，实现 approval.Recorder。
// 写入失败只记录日志，绝不影响聚合流程。
type AuditLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditLog 初始化审计日志，创建所需表结构。
func NewAuditLog(store *Store, logger *zap.Logger) (*AuditLog, error) {
	if store == nil {
		return nil, fmt.Errorf("store: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &AuditLog{
		db:     store.DB(),
		logger: logger,
	}

	if err := a.initSchema(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *AuditLog) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS approval_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	authority TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_approval_requests_tx ON approval_requests(tx_hash);
CREATE INDEX IF NOT EXISTS idx_approval_requests_authority ON approval_requests(authority);
`
	if _, err := a.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化审计表失败: %w", err)
	}
	return nil
}

// RecordRequest 写入单轮协商记录。
func (a *AuditLog) RecordRequest(ctx context.Context, rec approval.Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO approval_requests (request_id, tx_hash, authority, endpoint, outcome, reason, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.TxHash.Hex(),
		rec.Authority.Hex(),
		rec.Endpoint,
		rec.Outcome,
		rec.Reason,
		rec.Latency.Milliseconds(),
		rec.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		a.logger.Warn("写入审批审计记录失败", zap.Error(err))
	}
}

// RecentRequests 查询某笔交易最近的协商记录，便于排查拒绝原因。
func (a *AuditLog) RecentRequests(ctx context.Context, txHash string, limit int) ([]approval.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT request_id, tx_hash, authority, endpoint, outcome, reason, latency_ms, created_at
		 FROM approval_requests WHERE tx_hash = ? ORDER BY id DESC LIMIT ?`,
		txHash, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: 查询审计记录失败: %w", err)
	}
	defer rows.Close()

	var records []approval.Record
	for rows.Next() {
		var (
			rec       approval.Record
			txHashHex string
			authority string
			latencyMS int64
			createdAt string
		)
		if err := rows.Scan(&rec.RequestID, &txHashHex, &authority, &rec.Endpoint, &rec.Outcome, &rec.Reason, &latencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("store: 读取审计记录失败: %w", err)
		}
		rec.TxHash = common.HexToHash(txHashHex)
		rec.Authority = common.HexToAddress(authority)
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		if ts, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
			rec.Timestamp = ts
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
