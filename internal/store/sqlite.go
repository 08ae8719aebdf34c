// Package store persists conversations and the agent directory to SQLite.
//
// The engine keeps its working set in memory and writes through to the store
// after every mutation; the store is read back once at startup.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id     TEXT PRIMARY KEY,
	customer_id         TEXT NOT NULL,
	customer_name       TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	snoozed_until       TEXT,
	assignee_id         TEXT NOT NULL DEFAULT '',
	requires_human      INTEGER NOT NULL DEFAULT 0,
	tags                TEXT NOT NULL DEFAULT '[]',
	unread_count        INTEGER NOT NULL DEFAULT 0,
	csat_rating         INTEGER,
	csat_comment        TEXT NOT NULL DEFAULT '',
	first_response_time REAL,
	duration            REAL,
	metadata            TEXT,
	created_at          TEXT NOT NULL,
	last_activity       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_customer ON conversations (customer_id);

CREATE TABLE IF NOT EXISTS messages (
	message_id      TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	position        INTEGER NOT NULL,
	sender_id       TEXT NOT NULL DEFAULT '',
	sender_name     TEXT NOT NULL DEFAULT '',
	sender_role     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	attachment      TEXT,
	timestamp       TEXT NOT NULL,
	visibility      TEXT NOT NULL,
	read            INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, position);

CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	role     TEXT NOT NULL
);
`

// SQLiteStore is the SQLite-backed conversation store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type conversationRow struct {
	ID                string          `db:"conversation_id"`
	CustomerID        string          `db:"customer_id"`
	CustomerName      string          `db:"customer_name"`
	Status            string          `db:"status"`
	SnoozedUntil      sql.NullString  `db:"snoozed_until"`
	AssigneeID        string          `db:"assignee_id"`
	RequiresHuman     bool            `db:"requires_human"`
	Tags              string          `db:"tags"`
	UnreadCount       int             `db:"unread_count"`
	CSATRating        sql.NullInt64   `db:"csat_rating"`
	CSATComment       string          `db:"csat_comment"`
	FirstResponseTime sql.NullFloat64 `db:"first_response_time"`
	Duration          sql.NullFloat64 `db:"duration"`
	Metadata          sql.NullString  `db:"metadata"`
	CreatedAt         string          `db:"created_at"`
	LastActivity      string          `db:"last_activity"`
}

type messageRow struct {
	ID             string         `db:"message_id"`
	ConversationID string         `db:"conversation_id"`
	Position       int            `db:"position"`
	SenderID       string         `db:"sender_id"`
	SenderName     string         `db:"sender_name"`
	SenderRole     string         `db:"sender_role"`
	Kind           string         `db:"kind"`
	Text           string         `db:"text"`
	Attachment     sql.NullString `db:"attachment"`
	Timestamp      string         `db:"timestamp"`
	Visibility     string         `db:"visibility"`
	Read           bool           `db:"read"`
}

type agentRow struct {
	ID   string `db:"agent_id"`
	Name string `db:"name"`
	Role string `db:"role"`
}

// SaveConversation upserts the conversation and replaces its message log.
// Viewers and typing state are live-only and not persisted.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	row, err := toConversationRow(conv)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO conversations (
		conversation_id, customer_id, customer_name, status, snoozed_until, assignee_id,
		requires_human, tags, unread_count, csat_rating, csat_comment,
		first_response_time, duration, metadata, created_at, last_activity
	) VALUES (
		:conversation_id, :customer_id, :customer_name, :status, :snoozed_until, :assignee_id,
		:requires_human, :tags, :unread_count, :csat_rating, :csat_comment,
		:first_response_time, :duration, :metadata, :created_at, :last_activity
	)`, row); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, m := range conv.Messages {
		mr, err := toMessageRow(conv.ID, i, m)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO messages (
			message_id, conversation_id, position, sender_id, sender_name, sender_role,
			kind, text, attachment, timestamp, visibility, read
		) VALUES (
			:message_id, :conversation_id, :position, :sender_id, :sender_name, :sender_role,
			:kind, :text, :attachment, :timestamp, :visibility, :read
		)`, mr); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// LoadConversations returns every conversation, most recent activity first.
func (s *SQLiteStore) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM conversations ORDER BY last_activity DESC`); err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	return s.hydrate(ctx, rows)
}

// GetConversation returns one conversation.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM conversations WHERE conversation_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	convs, err := s.hydrate(ctx, []conversationRow{row})
	if err != nil {
		return model.Conversation{}, err
	}
	return convs[0], nil
}

// ConversationsByCustomer returns a customer's conversations, most recent
// activity first.
func (s *SQLiteStore) ConversationsByCustomer(ctx context.Context, customerID string) ([]model.Conversation, error) {
	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM conversations WHERE customer_id = ? ORDER BY last_activity DESC`, customerID); err != nil {
		return nil, fmt.Errorf("load customer conversations: %w", err)
	}
	return s.hydrate(ctx, rows)
}

func (s *SQLiteStore) hydrate(ctx context.Context, rows []conversationRow) ([]model.Conversation, error) {
	out := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		conv, err := fromConversationRow(row)
		if err != nil {
			return nil, err
		}

		var msgs []messageRow
		if err := s.db.SelectContext(ctx, &msgs,
			`SELECT * FROM messages WHERE conversation_id = ? ORDER BY position`, row.ID); err != nil {
			return nil, fmt.Errorf("load messages for %s: %w", row.ID, err)
		}
		conv.Messages = make([]model.Message, 0, len(msgs))
		for _, mr := range msgs {
			m, err := fromMessageRow(mr)
			if err != nil {
				return nil, err
			}
			conv.Messages = append(conv.Messages, m)
		}
		out = append(out, conv)
	}
	return out, nil
}

// UpsertAgent adds or updates a directory entry. Presence is not stored;
// every agent comes back offline after a restart.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, a model.Agent) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO agents (agent_id, name, role) VALUES (:agent_id, :name, :role)`,
		agentRow{ID: a.ID, Name: a.Name, Role: string(a.Role)})
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// ListAgents returns the agent directory ordered by id.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	var rows []agentRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT agent_id, name, role FROM agents ORDER BY agent_id`); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := make([]model.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Agent{ID: r.ID, Name: r.Name, Role: model.AgentRole(r.Role)})
	}
	return out, nil
}

func toConversationRow(c *model.Conversation) (conversationRow, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return conversationRow{}, fmt.Errorf("marshal tags: %w", err)
	}

	row := conversationRow{
		ID:            c.ID,
		CustomerID:    c.CustomerID,
		CustomerName:  c.CustomerName,
		Status:        string(c.Status),
		AssigneeID:    c.AssigneeID,
		RequiresHuman: c.RequiresHuman,
		Tags:          string(tagsJSON),
		UnreadCount:   c.UnreadCount,
		CreatedAt:     formatTime(c.CreatedAt),
		LastActivity:  formatTime(c.LastActivity()),
	}
	if c.SnoozedUntil != nil {
		row.SnoozedUntil = sql.NullString{String: formatTime(*c.SnoozedUntil), Valid: true}
	}
	if c.CSAT != nil {
		row.CSATRating = sql.NullInt64{Int64: int64(c.CSAT.Rating), Valid: true}
		row.CSATComment = c.CSAT.Comment
	}
	if c.FirstResponseTime != nil {
		row.FirstResponseTime = sql.NullFloat64{Float64: *c.FirstResponseTime, Valid: true}
	}
	if c.Duration != nil {
		row.Duration = sql.NullFloat64{Float64: *c.Duration, Valid: true}
	}
	if len(c.Metadata) > 0 {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return conversationRow{}, fmt.Errorf("marshal metadata: %w", err)
		}
		row.Metadata = sql.NullString{String: string(meta), Valid: true}
	}
	return row, nil
}

func fromConversationRow(r conversationRow) (model.Conversation, error) {
	c := model.Conversation{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		CustomerName:  r.CustomerName,
		Status:        model.Status(r.Status),
		AssigneeID:    r.AssigneeID,
		RequiresHuman: r.RequiresHuman,
		ViewingAgents: []string{},
		UnreadCount:   r.UnreadCount,
	}
	if err := json.Unmarshal([]byte(r.Tags), &c.Tags); err != nil {
		return c, fmt.Errorf("decode tags for %s: %w", r.ID, err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	var err error
	if c.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return c, fmt.Errorf("decode created_at for %s: %w", r.ID, err)
	}
	if r.SnoozedUntil.Valid {
		t, err := parseTime(r.SnoozedUntil.String)
		if err != nil {
			return c, fmt.Errorf("decode snoozed_until for %s: %w", r.ID, err)
		}
		c.SnoozedUntil = &t
	}
	if r.CSATRating.Valid {
		c.CSAT = &model.CSAT{Rating: int(r.CSATRating.Int64), Comment: r.CSATComment}
	}
	if r.FirstResponseTime.Valid {
		v := r.FirstResponseTime.Float64
		c.FirstResponseTime = &v
	}
	if r.Duration.Valid {
		v := r.Duration.Float64
		c.Duration = &v
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &c.Metadata); err != nil {
			return c, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
	}
	return c, nil
}

func toMessageRow(convID string, pos int, m model.Message) (messageRow, error) {
	row := messageRow{
		ID:             m.ID,
		ConversationID: convID,
		Position:       pos,
		SenderID:       m.Sender.ID,
		SenderName:     m.Sender.DisplayName,
		SenderRole:     string(m.Sender.Role),
		Kind:           string(m.Content.Kind),
		Text:           m.Content.Text,
		Timestamp:      formatTime(m.Timestamp),
		Visibility:     string(m.Visibility),
		Read:           m.Read,
	}
	if m.Content.Attachment != nil {
		a, err := json.Marshal(m.Content.Attachment)
		if err != nil {
			return row, fmt.Errorf("marshal attachment: %w", err)
		}
		row.Attachment = sql.NullString{String: string(a), Valid: true}
	}
	return row, nil
}

func fromMessageRow(r messageRow) (model.Message, error) {
	m := model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Sender:         model.Sender{ID: r.SenderID, DisplayName: r.SenderName, Role: model.Role(r.SenderRole)},
		Content:        model.Content{Kind: model.ContentKind(r.Kind), Text: r.Text},
		Visibility:     model.Visibility(r.Visibility),
		Read:           r.Read,
	}
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return m, fmt.Errorf("decode timestamp for message %s: %w", r.ID, err)
	}
	m.Timestamp = ts
	if r.Attachment.Valid {
		var a model.Attachment
		if err := json.Unmarshal([]byte(r.Attachment.String), &a); err != nil {
			return m, fmt.Errorf("decode attachment for message %s: %w", r.ID, err)
		}
		m.Content.Attachment = &a
	}
	return m, nil
}

// timeLayout is fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
