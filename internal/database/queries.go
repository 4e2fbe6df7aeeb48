package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	messageColumns = "id, room_id, account_id, user_name, user_color, content, is_ai, replying_to, created_at"
)

func (db *PgGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgGoChatRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgGoChatRepository) CreateProfileIfAbsent(ctx context.Context, accountId int) (Profile, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO profiles (account_id, display_name, color) "+
			"SELECT id, username, $2 FROM accounts WHERE id = $1 "+
			"ON CONFLICT (account_id) DO NOTHING",
		accountId,
		ProfileColor(accountId),
	)
	if err != nil {
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}

	row := db.conn.QueryRowContext(ctx,
		"SELECT account_id, display_name, color FROM profiles WHERE account_id = $1",
		accountId,
	)

	var p Profile
	if err := row.Scan(&p.AccountId, &p.DisplayName, &p.Color); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, err
	}

	return p, nil
}

func (db *PgGoChatRepository) UpdateAccount(ctx context.Context, params UpdateAccountParams) (Profile, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if params.PasswordHash != "" {
		var query string
		var args []any
		query, args, err = sq.Update("accounts").
			Set("password_hash", params.PasswordHash).
			Set("updated_at", time.Now().UTC()).
			Where(sq.Eq{"id": params.AccountId}).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return Profile{}, fmt.Errorf("build update: %w", err)
		}

		var res sql.Result
		res, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return Profile{}, err
		}

		var n int64
		if n, err = res.RowsAffected(); err != nil {
			return Profile{}, err
		}
		if n == 0 {
			err = ErrUserNotFound
			return Profile{}, err
		}
	}

	var p Profile
	err = tx.QueryRowContext(ctx,
		"INSERT INTO profiles (account_id, display_name, color) "+
			"SELECT id, COALESCE(NULLIF($2, ''), username), $3 FROM accounts WHERE id = $1 "+
			"ON CONFLICT (account_id) DO UPDATE SET "+
			"display_name = COALESCE(NULLIF($2, ''), profiles.display_name) "+
			"RETURNING account_id, display_name, color",
		params.AccountId,
		params.DisplayName,
		ProfileColor(params.AccountId),
	).Scan(&p.AccountId, &p.DisplayName, &p.Color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrUserNotFound
		}
		return Profile{}, err
	}

	if err = tx.Commit(); err != nil {
		return Profile{}, err
	}

	return p, nil
}

func (db *PgGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room Room
	err = tx.QueryRowContext(ctx,
		"INSERT INTO rooms (id, name, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, name, created_by, created_at",
		params.Id,
		params.Name,
		params.CreatorId,
		time.Now().UTC(),
	).Scan(
		&room.Id,
		&room.Name,
		&room.CreatedBy,
		&room.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = ErrRoomExists
		}
		return Room{}, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO room_participants (room_id, account_id, joined_at) VALUES ($1, $2, $3)",
		room.Id,
		params.CreatorId,
		room.CreatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO room_settings (room_id, is_ai_muted, updated_at) VALUES ($1, false, $2)",
		room.Id,
		room.CreatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgGoChatRepository) JoinRoom(ctx context.Context, roomId string, accountId int) error {
	if _, err := db.GetRoom(ctx, roomId); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO room_participants (room_id, account_id, joined_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (room_id, account_id) DO NOTHING",
		roomId,
		accountId,
		time.Now().UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return ErrUserNotFound
		}
		return err
	}

	return nil
}

func (db *PgGoChatRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, COALESCE(created_by, 0), created_at FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	if err := row.Scan(&room.Id, &room.Name, &room.CreatedBy, &room.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, err
	}

	return room, nil
}

func (db *PgGoChatRepository) ListRoomsForAccount(ctx context.Context, accountId int) ([]Room, error) {
	query, args, err := sq.Select("r.id", "r.name", "COALESCE(r.created_by, 0)", "r.created_at").
		From("rooms r").
		Join("room_participants rp ON rp.room_id = r.id").
		Where(sq.Eq{"rp.account_id": accountId}).
		OrderBy("r.created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.Id, &room.Name, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgGoChatRepository) GetParticipantsWithPresence(ctx context.Context, roomId string) ([]Participant, error) {
	query := `
		SELECT
				a.id,
				COALESCE(p.display_name, a.username),
				COALESCE(p.color, ''),
				(
					SELECT MAX(m.created_at) FROM messages m
					WHERE m.room_id = rp.room_id AND m.account_id = a.id AND NOT m.is_ai
				) AS last_seen
		FROM room_participants rp
		JOIN accounts a ON a.id = rp.account_id
		LEFT JOIN profiles p ON p.account_id = a.id
		WHERE rp.room_id = $1
		ORDER BY rp.joined_at;
`

	rows, err := db.conn.QueryContext(ctx, query, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	defer rows.Close()

	participants := make([]Participant, 0)
	for rows.Next() {
		var (
			p        Participant
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&p.AccountId, &p.DisplayName, &p.Color, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			p.LastSeen = &t
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (db *PgGoChatRepository) GetRoomSettings(ctx context.Context, roomId string) (RoomSettings, error) {
	return getRoomSettings(ctx, db.conn, roomId)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoomSettings(ctx context.Context, q queryRower, roomId string) (RoomSettings, error) {
	row := q.QueryRowContext(ctx,
		"SELECT s.is_ai_muted, s.ai_muted_by, p.display_name, s.ai_muted_at "+
			"FROM room_settings s LEFT JOIN profiles p ON p.account_id = s.ai_muted_by "+
			"WHERE s.room_id = $1",
		roomId,
	)

	var (
		settings = RoomSettings{RoomId: roomId}
		mutedBy  sql.NullInt64
		byName   sql.NullString
		mutedAt  sql.NullTime
	)
	if err := row.Scan(&settings.IsAIMuted, &mutedBy, &byName, &mutedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// rooms created before settings existed default to unmuted
			return settings, nil
		}
		return RoomSettings{}, err
	}

	if mutedBy.Valid {
		id := int(mutedBy.Int64)
		settings.AIMutedBy = &id
	}
	if byName.Valid {
		settings.AIMutedByName = &byName.String
	}
	if mutedAt.Valid {
		settings.AIMutedAt = &mutedAt.Time
	}

	return settings, nil
}

func (db *PgGoChatRepository) ToggleAIMute(ctx context.Context, roomId string, accountId int) (RoomSettings, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return RoomSettings{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM room_participants WHERE room_id = $1 AND account_id = $2)",
		roomId,
		accountId,
	).Scan(&exists)
	if err != nil {
		return RoomSettings{}, err
	}
	if !exists {
		err = ErrNotAParticipant
		return RoomSettings{}, err
	}

	// the right-hand sides see the pre-update row, so muting records the actor
	_, err = tx.ExecContext(ctx,
		"INSERT INTO room_settings (room_id, is_ai_muted, ai_muted_by, ai_muted_at, updated_at) "+
			"VALUES ($1, true, $2, now(), now()) "+
			"ON CONFLICT (room_id) DO UPDATE SET "+
			"is_ai_muted = NOT room_settings.is_ai_muted, "+
			"ai_muted_by = CASE WHEN room_settings.is_ai_muted THEN NULL ELSE $2 END, "+
			"ai_muted_at = CASE WHEN room_settings.is_ai_muted THEN NULL ELSE now() END, "+
			"updated_at = now()",
		roomId,
		accountId,
	)
	if err != nil {
		return RoomSettings{}, err
	}

	settings, err := getRoomSettings(ctx, tx, roomId)
	if err != nil {
		return RoomSettings{}, err
	}

	if err = tx.Commit(); err != nil {
		return RoomSettings{}, err
	}

	return settings, nil
}

func (db *PgGoChatRepository) GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query, args, err := sq.Select(messageColumns).
		From("messages").
		Where(sq.Eq{"room_id": roomId}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest first from the query, callers want oldest first
	slices.Reverse(messages)
	return messages, nil
}

func (db *PgGoChatRepository) InsertUserMessage(ctx context.Context, params InsertUserMessageParams) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, account_id, user_name, user_color, content, is_ai, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, false, $6) RETURNING "+messageColumns,
		params.RoomId,
		params.AccountId,
		params.UserName,
		params.UserColor,
		params.Content,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgGoChatRepository) InsertAIMessage(ctx context.Context, params InsertAIMessageParams) (Message, error) {
	var replyingTo any
	if params.ReplyingTo != nil {
		b, err := json.Marshal(params.ReplyingTo)
		if err != nil {
			return Message{}, fmt.Errorf("marshal reply context: %w", err)
		}
		replyingTo = string(b)
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, account_id, user_name, user_color, content, is_ai, replying_to, created_at) "+
			"VALUES ($1, NULL, $2, $3, $4, true, $5, $6) RETURNING "+messageColumns,
		params.RoomId,
		params.AuthorName,
		params.AuthorColor,
		params.Content,
		replyingTo,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var (
		msg        Message
		accountId  sql.NullInt64
		replyingTo []byte
	)

	err := s.Scan(
		&msg.Id,
		&msg.RoomId,
		&accountId,
		&msg.UserName,
		&msg.UserColor,
		&msg.Content,
		&msg.IsAI,
		&replyingTo,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}

	if accountId.Valid {
		id := int(accountId.Int64)
		msg.AccountId = &id
	}
	if len(replyingTo) > 0 {
		var rc ReplyContext
		if err := json.Unmarshal(replyingTo, &rc); err == nil {
			msg.ReplyingTo = &rc
		}
	}

	return msg, nil
}
