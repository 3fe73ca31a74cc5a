package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/grvbrk/vidcatalog_server/internal/models"
	"go.uber.org/zap"
)

// EventSink keeps an audit trail of catalog writes. Orphan events are the
// input for operational reconciliation; the service itself never repairs them.
type EventSink interface {
	Record(ctx context.Context, event models.CatalogEvent) error
}

type NoopEventSink struct{}

func (NoopEventSink) Record(ctx context.Context, event models.CatalogEvent) error { return nil }

type ClickhouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

func clickhouseOptions(cfg ClickhouseConfig) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "vidcatalog-api-server", Version: "1.0"},
			},
		},
	}
}

func ConnectClickhouse(ctx context.Context, cfg ClickhouseConfig, logger *zap.Logger) (driver.Conn, error) {
	var conn driver.Conn
	var err error

	for i := 1; i <= 10; i++ {
		conn, err = clickhouse.Open(clickhouseOptions(cfg))

		if err == nil {
			err = conn.Ping(ctx)
			if err == nil {
				logger.Info("connected to clickhouse")
				return conn, nil
			}
		}

		logger.Warn("clickhouse not ready", zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}

	return nil, fmt.Errorf("could not connect to ClickHouse after multiple attempts: %w", err)
}

// OpenClickhouseDB returns a database/sql handle for goose migrations. The
// event sink itself writes through the native driver.Conn.
func OpenClickhouseDB(cfg ClickhouseConfig) *sql.DB {
	return clickhouse.OpenDB(clickhouseOptions(cfg))
}

type ClickhouseEventSink struct {
	conn driver.Conn
}

// NewClickhouseEventSink expects catalog_events to exist; see MigrateClickhouse.
func NewClickhouseEventSink(conn driver.Conn) *ClickhouseEventSink {
	return &ClickhouseEventSink{conn: conn}
}

func (c *ClickhouseEventSink) Record(ctx context.Context, event models.CatalogEvent) error {
	query := `
		INSERT INTO catalog_events (event_id, kind, video_id, uploader, file_path, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := c.conn.Exec(ctx, query,
		event.EventID,
		string(event.Kind),
		event.VideoID,
		event.Uploader,
		event.FilePath,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record catalog event: %w", err)
	}
	return nil
}
