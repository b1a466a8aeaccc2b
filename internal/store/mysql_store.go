package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"modbot/internal/modal"
)

//go:embed schema.sql
var schemaSQL string

const (
	openRetryMaxElapsed  = 30 * time.Second
	queryRetryMaxElapsed = 10 * time.Second

	mysqlErrDuplicateEntry = 1062
)

// MySQLStore is the production Store backed by MySQL (or any MySQL-protocol server).
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// OpenMySQL connects and pings with exponential backoff so the bot can start before the
// database is reachable. Times are always stored and read as UTC.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openRetryMaxElapsed
	if err := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"bad connection", "broken pipe", "connection reset", "connection refused", "i/o timeout", "gone away"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (s *MySQLStore) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = queryRetryMaxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func mapDuplicate(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
		return fmt.Errorf("%s: %w", myErr.Message, ErrDuplicateID)
	}
	return err
}

func (s *MySQLStore) ActionIDExists(ctx context.Context, actionID string) (bool, error) {
	var n int
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM modlogs WHERE punishment_id = ?`, actionID).Scan(&n)
	})
	if err != nil {
		return false, fmt.Errorf("action id exists: %w", err)
	}
	return n > 0, nil
}

func (s *MySQLStore) AppendAction(ctx context.Context, rec modal.ActionRecord, temp *modal.TempActionRecord) error {
	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var evidence sql.NullString
		if rec.Evidence != "" {
			evidence = sql.NullString{String: rec.Evidence, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO modlogs (punishment_id, user_id, moderator_id, action, reason, duration, evidence, guild_id, channel_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ActionID, rec.SubjectID, rec.ModeratorID, string(rec.Kind), rec.Reason,
			nullString(rec.DurationSpec), evidence, rec.ScopeID, rec.ChannelID, rec.CreatedAt.UTC(),
		); err != nil {
			return mapDuplicate(err)
		}
		if temp != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO temp_bans (ban_id, user_id, guild_id, unban_at) VALUES (?, ?, ?, ?)`,
				temp.ActionID, temp.SubjectID, temp.ScopeID, temp.ExpiresAt.UTC(),
			); err != nil {
				return mapDuplicate(err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("append action %s: %w", rec.ActionID, err)
	}
	return nil
}

const actionColumns = `punishment_id, user_id, moderator_id, action, reason, duration, evidence, guild_id, channel_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(sc scanner) (modal.ActionRecord, error) {
	var (
		rec      modal.ActionRecord
		kind     string
		dur, evi sql.NullString
	)
	if err := sc.Scan(&rec.ActionID, &rec.SubjectID, &rec.ModeratorID, &kind, &rec.Reason,
		&dur, &evi, &rec.ScopeID, &rec.ChannelID, &rec.CreatedAt); err != nil {
		return modal.ActionRecord{}, err
	}
	rec.Kind = modal.ActionKind(kind)
	if dur.Valid {
		rec.DurationSpec = modal.StringPtr(dur.String)
	}
	rec.Evidence = evi.String
	return rec, nil
}

func (s *MySQLStore) GetAction(ctx context.Context, actionID string) (modal.ActionRecord, error) {
	var rec modal.ActionRecord
	err := s.withRetry(ctx, func() error {
		var err error
		rec, err = scanAction(s.db.QueryRowContext(ctx,
			`SELECT `+actionColumns+` FROM modlogs WHERE punishment_id = ?`, actionID))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return modal.ActionRecord{}, fmt.Errorf("action %s: %w", actionID, ErrNotFound)
	}
	if err != nil {
		return modal.ActionRecord{}, fmt.Errorf("get action %s: %w", actionID, err)
	}
	return rec, nil
}

func (s *MySQLStore) QueryActions(ctx context.Context, q modal.ActionQuery) ([]modal.ActionRecord, error) {
	query := `SELECT ` + actionColumns + ` FROM modlogs`
	var (
		where []string
		args  []any
	)
	if q.SubjectID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.SubjectID)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, q.Until.UTC())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var out []modal.ActionRecord
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanAction(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	return out, nil
}

func (s *MySQLStore) Stats(ctx context.Context, since time.Time, topN int) (modal.ActionStats, error) {
	stats := modal.ActionStats{Counts: make(map[modal.ActionKind]int)}
	var (
		filter string
		args   []any
	)
	if !since.IsZero() {
		filter = " WHERE created_at >= ?"
		args = append(args, since.UTC())
	}
	if topN <= 0 {
		topN = 3
	}

	err := s.withRetry(ctx, func() error {
		stats.Counts = make(map[modal.ActionKind]int)
		stats.Total = 0
		stats.TopModerators = nil

		rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM modlogs`+filter+` GROUP BY action`, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				kind string
				n    int
			)
			if err := rows.Scan(&kind, &n); err != nil {
				rows.Close()
				return err
			}
			stats.Counts[modal.ActionKind(kind)] = n
			stats.Total += n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var first sql.NullTime
		if err := s.db.QueryRowContext(ctx, `SELECT MIN(created_at) FROM modlogs`).Scan(&first); err != nil {
			return err
		}
		if first.Valid {
			stats.FirstAt = first.Time
		}

		modArgs := append(append([]any(nil), args...), topN)
		rows, err = s.db.QueryContext(ctx,
			`SELECT moderator_id, COUNT(*) AS n FROM modlogs`+filter+` GROUP BY moderator_id ORDER BY n DESC, moderator_id ASC LIMIT ?`,
			modArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ac modal.ActorCount
			if err := rows.Scan(&ac.ActorID, &ac.Count); err != nil {
				return err
			}
			stats.TopModerators = append(stats.TopModerators, ac)
		}
		return rows.Err()
	})
	if err != nil {
		return modal.ActionStats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func (s *MySQLStore) ExpiredTempActions(ctx context.Context, now time.Time) ([]modal.TempActionRecord, error) {
	var out []modal.TempActionRecord
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT ban_id, user_id, guild_id, unban_at FROM temp_bans WHERE unban_at <= ? ORDER BY unban_at ASC`, now.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t modal.TempActionRecord
			if err := rows.Scan(&t.ActionID, &t.SubjectID, &t.ScopeID, &t.ExpiresAt); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("expired temp actions: %w", err)
	}
	return out, nil
}

func (s *MySQLStore) DeleteTempAction(ctx context.Context, actionID string) (bool, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM temp_bans WHERE ban_id = ?`, actionID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete temp action %s: %w", actionID, err)
	}
	return n > 0, nil
}

func (s *MySQLStore) DeleteTempActionsForSubject(ctx context.Context, scopeID, subjectID string) (int, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM temp_bans WHERE guild_id = ? AND user_id = ?`, scopeID, subjectID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete temp actions for %s: %w", subjectID, err)
	}
	return int(n), nil
}

func (s *MySQLStore) CommissionExists(ctx context.Context, commissionID string) (bool, error) {
	var n int
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM commissions WHERE commission_id = ?`, commissionID).Scan(&n)
	})
	if err != nil {
		return false, fmt.Errorf("commission exists: %w", err)
	}
	return n > 0, nil
}

func (s *MySQLStore) CreateCommission(ctx context.Context, c modal.Commission) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO commissions (commission_id, client_id, client_name, creator_id, details, price, payment_method, media, status, channel_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.CommissionID, c.ClientID, c.ClientName, c.CreatorID, c.Details, c.Price, string(c.PaymentMethod),
			c.Media, string(c.Status), c.ChannelID, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
		return mapDuplicate(err)
	})
	if err != nil {
		return fmt.Errorf("create commission %s: %w", c.CommissionID, err)
	}
	return nil
}

func (s *MySQLStore) GetCommission(ctx context.Context, commissionID string) (modal.Commission, error) {
	var (
		c      modal.Commission
		method string
		status string
		media  sql.NullString
	)
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT commission_id, client_id, client_name, creator_id, details, price, payment_method, media, status, channel_id, created_at, updated_at
			 FROM commissions WHERE commission_id = ?`, commissionID,
		).Scan(&c.CommissionID, &c.ClientID, &c.ClientName, &c.CreatorID, &c.Details, &c.Price, &method,
			&media, &status, &c.ChannelID, &c.CreatedAt, &c.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return modal.Commission{}, fmt.Errorf("commission %s: %w", commissionID, ErrNotFound)
	}
	if err != nil {
		return modal.Commission{}, fmt.Errorf("get commission %s: %w", commissionID, err)
	}
	c.PaymentMethod = modal.PaymentMethod(method)
	c.Status = modal.CommissionStatus(status)
	c.Media = media.String
	return c, nil
}

func (s *MySQLStore) ConfirmCommission(ctx context.Context, commissionID, channelID string, at time.Time) error {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE commissions SET status = ?, channel_id = ?, updated_at = ? WHERE commission_id = ? AND status = ?`,
			string(modal.CommissionConfirmed), channelID, at.UTC(), commissionID, string(modal.CommissionPending))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("confirm commission %s: %w", commissionID, err)
	}
	if n == 0 {
		if ok, err := s.CommissionExists(ctx, commissionID); err == nil && !ok {
			return fmt.Errorf("commission %s: %w", commissionID, ErrNotFound)
		}
		return fmt.Errorf("confirm commission %s: %w", commissionID, ErrInvalidTransition)
	}
	return nil
}

func (s *MySQLStore) DeleteCommission(ctx context.Context, commissionID string) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM commissions WHERE commission_id = ?`, commissionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete commission %s: %w", commissionID, err)
	}
	return nil
}

func (s *MySQLStore) AddNote(ctx context.Context, n modal.Note) (modal.Note, error) {
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO usernotes (user_id, staff_id, note, created_at) VALUES (?, ?, ?, ?)`,
			n.SubjectID, n.StaffID, n.Note, n.CreatedAt.UTC())
		if err != nil {
			return err
		}
		n.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return modal.Note{}, fmt.Errorf("add note: %w", err)
	}
	return n, nil
}

func (s *MySQLStore) ListNotes(ctx context.Context, subjectID string) ([]modal.Note, error) {
	var out []modal.Note
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, user_id, staff_id, note, created_at FROM usernotes WHERE user_id = ? ORDER BY created_at ASC`, subjectID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n modal.Note
			if err := rows.Scan(&n.ID, &n.SubjectID, &n.StaffID, &n.Note, &n.CreatedAt); err != nil {
				return err
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
