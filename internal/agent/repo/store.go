package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

type StoreConfig struct {
	Path     string `envconfig:"STORE_PATH" default:"chative.db"`
	SeedDemo bool   `envconfig:"STORE_SEED_DEMO" default:"false"`
}

// StoredMessage is one row of the durable transcript.
type StoredMessage struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SQLiteStore is the durable transcript store and the order data-access layer.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ model.MessageStore = (*SQLiteStore)(nil)
	_ model.OrderStore   = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database and applies the schema.
func NewSQLiteStore(ctx context.Context, cfg StoreConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent background writes
	db.SetMaxOpenConns(1)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logx.Info().Str("path", cfg.Path).Msg("sqlite store ready")
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			product_name TEXT NOT NULL,
			total_amount REAL NOT NULL DEFAULT 0,
			payment_status TEXT,
			shipping_address TEXT,
			customer_phone TEXT,
			tracking_number TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			rating INTEGER NOT NULL,
			comment TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendMessage writes one transcript row.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]any) error {
	var meta any
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		meta = string(b)
	}

	query, args, err := sq.Insert("messages").
		Columns("session_id", "role", "content", "metadata", "created_at").
		Values(sessionID, role, content, meta, s.now().UTC().UnixNano()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert message query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to append message")
		return errx.WrapStore(err)
	}
	return nil
}

// ListMessages returns the last limit transcript rows of a session, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	builder := sq.Select("id", "session_id", "role", "content", "metadata", "created_at").
		From("messages").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var (
			m       StoredMessage
			meta    sql.NullString
			created int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &meta, &created); err != nil {
			return nil, errx.WrapStore(err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
				logx.Warn().Err(err).Int64("id", m.ID).Msg("ignoring corrupt message metadata")
			}
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetOrder returns (nil, nil) when the order does not exist.
func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	query, args, err := sq.Select(
		"order_id", "status", "product_name", "total_amount", "payment_status",
		"shipping_address", "customer_phone", "tracking_number", "created_at",
	).From("orders").Where(sq.Eq{"order_id": orderID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get order query: %w", err)
	}

	var (
		o       model.Order
		created int64
	)
	var payment, address, phone, tracking sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&o.OrderID, &o.Status, &o.ProductName, &o.TotalAmount, &payment,
		&address, &phone, &tracking, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("order_id", orderID).Msg("failed to load order")
		return nil, errx.WrapStore(err)
	}
	o.PaymentStatus = payment.String
	o.ShippingAddress = address.String
	o.CustomerPhone = phone.String
	o.TrackingNumber = tracking.String
	o.CreatedAt = time.Unix(0, created).UTC()
	return &o, nil
}

// UpsertOrder inserts or replaces an order row.
func (s *SQLiteStore) UpsertOrder(ctx context.Context, o model.Order) error {
	created := o.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	query, args, err := sq.Insert("orders").
		Options("OR REPLACE").
		Columns("order_id", "status", "product_name", "total_amount", "payment_status",
			"shipping_address", "customer_phone", "tracking_number", "created_at").
		Values(o.OrderID, o.Status, o.ProductName, o.TotalAmount, o.PaymentStatus,
			o.ShippingAddress, o.CustomerPhone, o.TrackingNumber, created.UTC().UnixNano()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert order query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errx.WrapStore(err)
	}
	return nil
}

// SeedDemoOrders loads a few orders for local development.
func (s *SQLiteStore) SeedDemoOrders(ctx context.Context) error {
	demo := []model.Order{
		{OrderID: "DEMO10001", Status: "已发货", ProductName: "X1 手机", TotalAmount: 2999, PaymentStatus: "已支付",
			ShippingAddress: "上海市浦东新区世纪大道100号", CustomerPhone: "13812345678", TrackingNumber: "SF1234567890"},
		{OrderID: "DEMO10002", Status: "待发货", ProductName: "A2 无线耳机", TotalAmount: 499, PaymentStatus: "已支付",
			ShippingAddress: "北京市朝阳区建国路88号", CustomerPhone: "13987654321"},
	}
	for _, o := range demo {
		if err := s.UpsertOrder(ctx, o); err != nil {
			return err
		}
	}
	logx.Info().Int("orders", len(demo)).Msg("seeded demo orders")
	return nil
}
