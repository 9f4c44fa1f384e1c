package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"predictive-node/core/heuristic"
	"predictive-node/core/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DecisionRow is one recorded heuristic evaluation.
type DecisionRow struct {
	Timestamp     time.Time `json:"timestamp"`
	GatewayName   string    `json:"gateway_name"`
	SensorName    string    `json:"sensor_name"`
	Verdict       int8      `json:"verdict"`
	Counter       int32     `json:"counter"`
	AbnormalCount int32     `json:"abnormal_count"`
	QueueDepth    int32     `json:"queue_depth"`
	LowBattery    bool      `json:"low_battery"`
	Reset         bool      `json:"reset"`
}

// DecisionLog persists heuristic evaluations to ClickHouse so placement
// behavior can be inspected after the fact.
type DecisionLog struct {
	conn driver.Conn
}

// NewDecisionLog connects to ClickHouse and ensures the schema exists.
func NewDecisionLog(addr, database, username, password string) (*DecisionLog, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping ClickHouse: %w", err)
	}

	log.Printf("DecisionLog: connected to ClickHouse at %s", addr)

	dl := &DecisionLog{conn: conn}
	if err := dl.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize decision log schema: %w", err)
	}
	return dl, nil
}

func (dl *DecisionLog) initSchema() error {
	ddl := `
		CREATE TABLE IF NOT EXISTS placement_decisions (
			timestamp      DateTime,
			gateway_name   String,
			sensor_name    String,
			verdict        Int8,
			counter        Int32,
			abnormal_count Int32,
			queue_depth    Int32,
			low_battery    UInt8,
			reset          UInt8
		) ENGINE = MergeTree()
		ORDER BY (gateway_name, sensor_name, timestamp)
	`
	return dl.conn.Exec(context.Background(), ddl)
}

// SaveDecision records one heuristic evaluation. Failures are logged by
// the caller; a lost audit row never affects placement.
func (dl *DecisionLog) SaveDecision(ctx context.Context, key models.DeviceKey, d heuristic.Decision, lowBattery bool) error {
	query := `
		INSERT INTO placement_decisions
			(timestamp, gateway_name, sensor_name, verdict, counter, abnormal_count, queue_depth, low_battery, reset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return dl.conn.Exec(ctx, query,
		time.Now().UTC(),
		key.GatewayName,
		key.SensorName,
		int8(d.Verdict),
		int32(d.Counter),
		int32(d.AbnormalCount),
		int32(d.QueueDepth),
		boolToUInt8(lowBattery),
		boolToUInt8(d.Reset),
	)
}

// RecentDecisions returns the latest evaluations for a device, newest first.
func (dl *DecisionLog) RecentDecisions(ctx context.Context, key models.DeviceKey, limit int) ([]DecisionRow, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT timestamp, gateway_name, sensor_name, verdict, counter, abnormal_count, queue_depth, low_battery, reset
		FROM placement_decisions
		WHERE gateway_name = ? AND sensor_name = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := dl.conn.Query(ctx, query, key.GatewayName, key.SensorName, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var r DecisionRow
		var lowBattery, reset uint8
		if err := rows.Scan(
			&r.Timestamp,
			&r.GatewayName,
			&r.SensorName,
			&r.Verdict,
			&r.Counter,
			&r.AbnormalCount,
			&r.QueueDepth,
			&lowBattery,
			&reset,
		); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		r.LowBattery = lowBattery != 0
		r.Reset = reset != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the ClickHouse connection.
func (dl *DecisionLog) Close() error {
	return dl.conn.Close()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
