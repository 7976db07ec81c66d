// Package store keeps a local log of sent and received BlueVia messages.
//
// Sent messages are recorded when the API accepts them and later updated by
// delivery-status notifications. Updates never move a message back in its
// lifecycle: recorded < waiting < sent < final.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver ("pgx")
	_ "modernc.org/sqlite"             // sqlite driver
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Message kinds.
const (
	KindSMS = "sms"
	KindMMS = "mms"
)

// Message directions.
const (
	Outbound = "outbound"
	Inbound  = "inbound"
)

// ErrNotFound is returned when no message matches.
var ErrNotFound = errors.New("message not found")

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Message is one row of the message log. Address is the destination of an
// outbound message or the sender of an inbound one, without prefix. Body is
// the SMS text or the MMS subject.
type Message struct {
	Kind        string    `json:"kind"`
	Direction   string    `json:"direction"`
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Obfuscated  bool      `json:"obfuscated"`
	Body        string    `json:"body"`
	Attachments int       `json:"attachments"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Kind      string
	Direction string
	Limit     int
}

// Store is a message log backed by database/sql.
type Store struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// Open connects to the database and creates the schema if needed. For sqlite
// source is a file path; for postgres it is a connection string.
func Open(ctx context.Context, driver, source string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "", DriverSQLite:
		if dir := filepath.Dir(source); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", source)
		if err == nil {
			// sqlite allows a single writer.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", source)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Store{db: db, postgres: driver == DriverPostgres, now: time.Now}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	kind        TEXT NOT NULL,
	direction   TEXT NOT NULL,
	id          TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	obfuscated  BOOLEAN NOT NULL DEFAULT FALSE,
	body        TEXT NOT NULL DEFAULT '',
	attachments INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (kind, direction, id)
)`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS messages_created_at ON messages (created_at)`); err != nil {
		return fmt.Errorf("creating messages index: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// RecordSent stores an outbound message accepted by the API. Recording the
// same message twice keeps the first row.
func (s *Store) RecordSent(ctx context.Context, m *Message) error {
	m.Direction = Outbound
	return s.insert(ctx, m)
}

// RecordReceived stores an inbound message. Messages already present (e.g.
// seen by both the notification listener and the inbox watcher) are ignored.
func (s *Store) RecordReceived(ctx context.Context, m *Message) error {
	m.Direction = Inbound
	return s.insert(ctx, m)
}

func (s *Store) insert(ctx context.Context, m *Message) error {
	if m.ID == "" {
		return fmt.Errorf("recording %s %s: message id is required", m.Direction, m.Kind)
	}
	switch m.Kind {
	case KindSMS, KindMMS:
	default:
		return fmt.Errorf("recording message %s: unknown kind %q", m.ID, m.Kind)
	}
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO messages (kind, direction, id, address, obfuscated, body, attachments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, direction, id) DO NOTHING`),
		m.Kind, m.Direction, m.ID, m.Address, m.Obfuscated, m.Body, m.Attachments, m.Status, now, now)
	if err != nil {
		return fmt.Errorf("recording %s %s %s: %w", m.Direction, m.Kind, m.ID, err)
	}
	return nil
}

// statusRank orders delivery states. Unknown states rank with waiting.
func statusRank(status string) int {
	switch status {
	case "":
		return 0
	case "sent":
		return 2
	case "delivered", "delivery_impossible", "undelivered", "expired":
		return 3
	default:
		return 1
	}
}

// UpdateDeliveryStatus applies a delivery status to the outbound message(s)
// with the given id. A status that does not advance the message is ignored.
// It returns the number of messages changed, or ErrNotFound when no outbound
// message has that id.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, id, status string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("updating status of %s: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, s.rebind(
		`SELECT kind, status FROM messages WHERE direction = ? AND id = ?`), Outbound, id)
	if err != nil {
		return 0, fmt.Errorf("updating status of %s: %w", id, err)
	}
	type current struct{ kind, status string }
	var found []current
	for rows.Next() {
		var c current
		if err := rows.Scan(&c.kind, &c.status); err != nil {
			rows.Close()
			return 0, fmt.Errorf("updating status of %s: %w", id, err)
		}
		found = append(found, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("updating status of %s: %w", id, err)
	}
	if len(found) == 0 {
		return 0, ErrNotFound
	}

	changed := 0
	for _, c := range found {
		if statusRank(status) <= statusRank(c.status) {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE messages SET status = ?, updated_at = ? WHERE kind = ? AND direction = ? AND id = ?`),
			status, s.stamp(), c.kind, Outbound, id); err != nil {
			return 0, fmt.Errorf("updating status of %s: %w", id, err)
		}
		changed++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("updating status of %s: %w", id, err)
	}
	return changed, nil
}

const columns = `kind, direction, id, address, obfuscated, body, attachments, status, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var (
		m                Message
		created, updated string
	)
	if err := row.Scan(&m.Kind, &m.Direction, &m.ID, &m.Address, &m.Obfuscated,
		&m.Body, &m.Attachments, &m.Status, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if m.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("message %s: bad created_at: %w", m.ID, err)
	}
	if m.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("message %s: bad updated_at: %w", m.ID, err)
	}
	return &m, nil
}

// Get returns a single message.
func (s *Store) Get(ctx context.Context, kind, direction, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+columns+` FROM messages WHERE kind = ? AND direction = ? AND id = ?`),
		kind, direction, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %s %s: %w", direction, kind, id, err)
	}
	return m, nil
}

// List returns messages newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Message, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, f.Direction)
	}
	query := `SELECT ` + columns + ` FROM messages`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return out, nil
}
