package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/deusflow/newsagg/internal/model"
)

func (s *SQL) selectUsers() sq.SelectBuilder {
	return s.sb.Select("id", "email", "username", "password_hash", "active", "created_at").From("users")
}

func scanUser(row sq.RowScanner) (model.User, error) {
	var (
		u       model.User
		created any
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Active, &created); err != nil {
		return model.User{}, err
	}
	u.CreatedAt = parseDBTime(created)
	return u, nil
}

func (s *SQL) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	err := s.sb.Insert("users").
		Columns("email", "username", "password_hash", "active", "created_at").
		Values(u.Email, u.Username, u.PasswordHash, u.Active, u.CreatedAt.UTC()).
		Suffix("RETURNING id").
		QueryRowContext(ctx).Scan(&u.ID)
	if isUniqueViolation(err) {
		return model.User{}, ErrDuplicateUser
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *SQL) FindUserByLogin(ctx context.Context, login string) (model.User, error) {
	q := s.selectUsers().
		Where(sq.Or{sq.Eq{"email": login}, sq.Eq{"username": login}}).
		OrderBy("id").
		Limit(1)
	u, err := scanUser(q.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *SQL) FindUserByID(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(s.selectUsers().Where(sq.Eq{"id": id}).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return u, nil
}

func (s *SQL) Preferences(ctx context.Context, userID int64) (model.Preferences, error) {
	if _, err := s.FindUserByID(ctx, userID); err != nil {
		return model.Preferences{}, err
	}

	cats, err := s.prefNames(ctx, "user_preferred_categories", userID)
	if err != nil {
		return model.Preferences{}, err
	}
	srcs, err := s.prefNames(ctx, "user_preferred_sources", userID)
	if err != nil {
		return model.Preferences{}, err
	}
	return model.Preferences{Categories: cats, Sources: srcs}, nil
}

func (s *SQL) prefNames(ctx context.Context, table string, userID int64) ([]string, error) {
	rows, err := s.sb.Select("name").From(table).Where(sq.Eq{"user_id": userID}).OrderBy("name").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// SetPreferences replaces both preference lists in one transaction.
func (s *SQL) SetPreferences(ctx context.Context, userID int64, prefs model.Preferences) error {
	if _, err := s.FindUserByID(ctx, userID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b := s.sb.RunWith(tx)
	lists := []struct {
		table string
		names []string
	}{
		{"user_preferred_categories", dedupe(trimAll(prefs.Categories))},
		{"user_preferred_sources", dedupe(trimAll(prefs.Sources))},
	}
	for _, l := range lists {
		if _, err := b.Delete(l.table).Where(sq.Eq{"user_id": userID}).ExecContext(ctx); err != nil {
			return fmt.Errorf("clear %s: %w", l.table, err)
		}
		if len(l.names) == 0 {
			continue
		}
		ins := b.Insert(l.table).Columns("user_id", "name")
		for _, name := range l.names {
			ins = ins.Values(userID, name)
		}
		if _, err := ins.ExecContext(ctx); err != nil {
			return fmt.Errorf("write %s: %w", l.table, err)
		}
	}
	return tx.Commit()
}
