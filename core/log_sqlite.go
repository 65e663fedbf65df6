package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type SQLiteLogStore struct {
	db *sql.DB
}

func NewSQLiteLogStore(db *sql.DB) *SQLiteLogStore {
	return &SQLiteLogStore{db: db}
}

func (s *SQLiteLogStore) AppendMessages(ctx context.Context, roomKey string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO messages (room_key, msg_id, seq, body)
		VALUES (@room_key, @msg_id, @seq, @body)`)
	if err != nil {
		return fmt.Errorf("PrepareContext: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		var id sql.NullString
		if m.ID != "" {
			id = sql.NullString{String: m.ID, Valid: true}
		}
		var seq sql.NullInt64
		if m.Seq != nil {
			seq = sql.NullInt64{Int64: *m.Seq, Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			sql.Named("room_key", roomKey), sql.Named("msg_id", id),
			sql.Named("seq", seq), sql.Named("body", string(body)))
		if err != nil {
			return fmt.Errorf("ExecContext: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteLogStore) LoadLog(ctx context.Context, roomKey string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM messages WHERE room_key = @room_key ORDER BY position",
		sql.Named("room_key", roomKey))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		var m Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			// a corrupt row only loses that entry
			continue
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteLogStore) SaveRoom(ctx context.Context, room Room) error {
	var next sql.NullInt64
	if room.NextBeforeSeq != nil {
		next = sql.NullInt64{Int64: *room.NextBeforeSeq, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_key, name, icon_emoji, icon_image, writable, next_before_seq, updated_at)
		VALUES (@room_key, @name, @icon_emoji, @icon_image, @writable, @next_before_seq, CURRENT_TIMESTAMP)
		ON CONFLICT (room_key) DO UPDATE SET
			name = excluded.name,
			icon_emoji = excluded.icon_emoji,
			icon_image = excluded.icon_image,
			writable = excluded.writable,
			next_before_seq = excluded.next_before_seq,
			updated_at = excluded.updated_at`,
		sql.Named("room_key", room.Key), sql.Named("name", room.Name),
		sql.Named("icon_emoji", room.IconEmoji), sql.Named("icon_image", room.IconImage),
		sql.Named("writable", room.Writable), sql.Named("next_before_seq", next))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteLogStore) GetRoom(ctx context.Context, roomKey string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT room_key, name, icon_emoji, icon_image, writable, next_before_seq
		FROM rooms WHERE room_key = @room_key`, sql.Named("room_key", roomKey))
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("QueryRowContext: %w", err)
	}
	return room, nil
}

func (s *SQLiteLogStore) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_key, name, icon_emoji, icon_image, writable, next_before_seq
		FROM rooms ORDER BY room_key`)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return rooms, nil
}

func (s *SQLiteLogStore) DeleteRoom(ctx context.Context, roomKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE room_key = @room_key",
		sql.Named("room_key", roomKey)); err != nil {
		return fmt.Errorf("ExecContext(delete messages): %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE room_key = @room_key",
		sql.Named("room_key", roomKey)); err != nil {
		return fmt.Errorf("ExecContext(delete room): %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteLogStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "rooms", "profiles"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("ExecContext(delete %s): %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*Room, error) {
	var (
		room Room
		next sql.NullInt64
	)
	if err := row.Scan(&room.Key, &room.Name, &room.IconEmoji, &room.IconImage, &room.Writable, &next); err != nil {
		return nil, err
	}
	if next.Valid {
		v := next.Int64
		room.NextBeforeSeq = &v
	}
	return &room, nil
}
