package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/partban/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// scanUser は1行分のユーザーをスキャンする。phoneのNULLは空文字列に変換する。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var phone sql.NullString

	err := row.Scan(
		&user.ID, &user.ExternalAuthKey, &user.Name, &phone,
		&user.IsAdmin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if phone.Valid {
		user.Phone = phone.String
	}
	return user, nil
}

const userColumns = `id, external_auth_key, name, phone, is_admin, created_at, updated_at`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByExternalKey は外部認証キーでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalKey(ctx context.Context, key string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_auth_key = $1`, key,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external key: %w", err)
	}
	return user, nil
}

// FindByPhone は正規化済み電話番号でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`, phone,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_auth_key, name, phone, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.ExternalAuthKey, user.Name, nullablePhone(user.Phone),
		user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はユーザーのname、phone、is_adminを更新する。
// 対象が存在しない場合はErrUserNotFoundを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $1, phone = $2, is_admin = $3, updated_at = $4 WHERE id = $5`,
		user.Name, nullablePhone(user.Phone), user.IsAdmin, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetAdmin は指定ユーザーの管理者フラグを無条件に設定する。
// 対象が存在しない場合はErrUserNotFoundを返す。
func (r *PostgresUserRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET is_admin = $1, updated_at = now() WHERE id = $2
		 RETURNING `+userColumns,
		isAdmin, id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to set admin flag: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// nullablePhone は空文字列の電話番号をNULLに変換する。
// 部分一意インデックス（phone IS NOT NULL）を機能させるため、空文字列は保存しない。
func nullablePhone(phone string) sql.NullString {
	if phone == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: phone, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
