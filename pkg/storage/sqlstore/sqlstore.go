// Package sqlstore implements storage.Driver on top of a database/sql
// connection using ent's dialect-aware SQL builder. The sqlite and postgres
// drivers embed it with their own connection.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/papercomputeco/hedge/pkg/storage"
)

// Store provides storage operations over an ent SQL driver.
// It is database-agnostic and can be embedded by specific drivers.
type Store struct {
	drv     *entsql.Driver
	dialect string
}

// New wraps drv and creates the schema.
func New(ctx context.Context, drv *entsql.Driver) (*Store, error) {
	s := &Store{
		drv:     drv,
		dialect: drv.Dialect(),
	}

	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// EnsureConversation inserts the conversation unless it already exists.
func (s *Store) EnsureConversation(ctx context.Context, id, title string) (*storage.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation id is required")
	}

	now := timestamp(time.Now())
	q, args := s.builder().Insert(tableConversations).
		Columns(conversationColumns...).
		Values(id, title, 0, now, now).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.DoNothing(),
		).
		Query()

	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	return s.GetConversation(ctx, id)
}

// AppendMessage stores msg and bumps its conversation in one transaction.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	return s.AppendMessages(ctx, msg)
}

// AppendMessages stores msgs in order in a single transaction. Either all
// of them are stored or none is.
func (s *Store) AppendMessages(ctx context.Context, msgs ...*storage.Message) error {
	rows := make([]messageRow, 0, len(msgs))
	for _, msg := range msgs {
		row, err := newMessageRow(msg)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, row := range rows {
		if err := s.insertMessage(ctx, tx, row); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	for i, row := range rows {
		msgs[i].ID = row.id
		msgs[i].CreatedAt = row.createdAt
	}
	return nil
}

// messageRow is a message with its defaults filled in and its JSON
// columns encoded.
type messageRow struct {
	msg       *storage.Message
	id        string
	createdAt time.Time
	thoughts  string
	tools     string
}

func newMessageRow(msg *storage.Message) (messageRow, error) {
	if msg == nil {
		return messageRow{}, storage.ErrNilMessage
	}

	row := messageRow{msg: msg, id: msg.ID, createdAt: msg.CreatedAt}
	if row.id == "" {
		row.id = uuid.NewString()
	}
	if row.createdAt.IsZero() {
		row.createdAt = time.Now()
	}
	row.createdAt = timestamp(row.createdAt)

	thoughts := msg.Thoughts
	if thoughts == nil {
		thoughts = []string{}
	}
	thoughtsJSON, err := json.Marshal(thoughts)
	if err != nil {
		return messageRow{}, fmt.Errorf("failed to marshal thoughts: %w", err)
	}

	tools := msg.Tools
	if tools == nil {
		tools = map[string]string{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return messageRow{}, fmt.Errorf("failed to marshal tools: %w", err)
	}

	row.thoughts = string(thoughtsJSON)
	row.tools = string(toolsJSON)
	return row, nil
}

// insertMessage bumps the conversation of row and inserts it within tx.
func (s *Store) insertMessage(ctx context.Context, tx dialect.Tx, row messageRow) error {
	msg := row.msg

	uq, uargs := s.builder().Update(tableConversations).
		Set("updated_at", row.createdAt).
		Add("message_count", 1).
		Where(entsql.EQ("id", msg.ConversationID)).
		Query()

	var res sql.Result
	if err := tx.Exec(ctx, uq, uargs, &res); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if affected == 0 {
		return storage.NotFoundError{ID: msg.ConversationID}
	}

	iq, iargs := s.builder().Insert(tableMessages).
		Columns(messageColumns...).
		Values(
			row.id,
			msg.ConversationID,
			msg.Role,
			msg.Content,
			row.thoughts,
			row.tools,
			msg.Error,
			msg.Status,
			row.createdAt,
		).
		Query()

	if err := tx.Exec(ctx, iq, iargs, nil); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	q, args := s.builder().Select(conversationColumns...).
		From(entsql.Table(tableConversations)).
		Where(entsql.EQ("id", id)).
		Query()

	convs, err := s.queryConversations(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return convs[0], nil
}

// ListConversations returns conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]*storage.Conversation, error) {
	sel := s.builder().Select(conversationColumns...).
		From(entsql.Table(tableConversations)).
		OrderBy(entsql.Desc("updated_at"), "id")
	if limit > 0 {
		sel.Limit(limit)
	}

	q, args := sel.Query()
	return s.queryConversations(ctx, q, args)
}

// ListMessages returns the messages of a conversation in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*storage.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	q, args := s.builder().Select(messageColumns...).
		From(entsql.Table(tableMessages)).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy("seq").
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var result []*storage.Message
	for rows.Next() {
		var (
			m            storage.Message
			thoughtsJSON string
			toolsJSON    string
		)
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.Role,
			&m.Content,
			&thoughtsJSON,
			&toolsJSON,
			&m.Error,
			&m.Status,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if err := json.Unmarshal([]byte(thoughtsJSON), &m.Thoughts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thoughts: %w", err)
		}
		if len(m.Thoughts) == 0 {
			m.Thoughts = nil
		}
		if err := json.Unmarshal([]byte(toolsJSON), &m.Tools); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tools: %w", err)
		}
		if len(m.Tools) == 0 {
			m.Tools = nil
		}
		m.CreatedAt = m.CreatedAt.UTC()

		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return result, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.drv.Close()
}

func (s *Store) queryConversations(ctx context.Context, q string, args []any) ([]*storage.Conversation, error) {
	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var result []*storage.Conversation
	for rows.Next() {
		var c storage.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return result, nil
}

// timestamp normalizes t to UTC at the microsecond precision every
// supported database keeps.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
