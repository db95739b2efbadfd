package store

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"coordfill/internal/approval"
	"coordfill/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestAuditLog_RecordRoundTrip(t *testing.T) {
	auditLog, err := NewAuditLog(newTestStore(t), nil)
	if err != nil {
		t.Fatalf("NewAuditLog returned error: %v", err)
	}

	txHash := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	authority := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	auditLog.RecordRequest(context.Background(), approval.Record{
		RequestID: "req-1",
		TxHash:    txHash,
		Authority: authority,
		Endpoint:  "http://x",
		Outcome:   "refused",
		Reason:    approval.ReasonUnreachable,
		Latency:   150 * time.Millisecond,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	auditLog.RecordRequest(context.Background(), approval.Record{
		RequestID: "req-2",
		TxHash:    txHash,
		Authority: authority,
		Endpoint:  "http://x",
		Outcome:   "approved",
		Latency:   30 * time.Millisecond,
	})

	records, err := auditLog.RecentRequests(context.Background(), txHash.Hex(), 10)
	if err != nil {
		t.Fatalf("RecentRequests returned error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// 最近写入的排在最前。
	if records[0].RequestID != "req-2" || records[0].Outcome != "approved" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Reason != approval.ReasonUnreachable {
		t.Errorf("refusal reason must survive the round trip, got %q", records[1].Reason)
	}
	if records[1].Latency != 150*time.Millisecond {
		t.Errorf("latency mismatch: %s", records[1].Latency)
	}
	if records[1].Authority != authority {
		t.Errorf("authority mismatch: %s", records[1].Authority.Hex())
	}
}

func TestAuditLog_RecordFailureIsNonFatal(t *testing.T) {
	s := newTestStore(t)
	auditLog, err := NewAuditLog(s, nil)
	if err != nil {
		t.Fatalf("NewAuditLog returned error: %v", err)
	}

	_ = s.Close()

	// 连接已关闭时写入只应记录日志，不得 panic。
	auditLog.RecordRequest(context.Background(), approval.Record{RequestID: "req-x"})
}
