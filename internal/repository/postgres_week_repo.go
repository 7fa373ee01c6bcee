package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/partban/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// PostgresWeekRepo はPostgreSQLを使用した週リポジトリ。
type PostgresWeekRepo struct {
	db *sql.DB
}

// NewPostgresWeekRepo はPostgresWeekRepoを生成する。
func NewPostgresWeekRepo(db *sql.DB) *PostgresWeekRepo {
	return &PostgresWeekRepo{db: db}
}

// FindByKey は週キーで週を検索する。見つからない場合はnilを返す。
func (r *PostgresWeekRepo) FindByKey(ctx context.Context, key string) (*model.Week, error) {
	week := &model.Week{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, key, created_at FROM weeks WHERE key = $1`,
		key,
	).Scan(&week.ID, &week.Key, &week.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find week by key: %w", err)
	}

	return week, nil
}

// FindByID は指定IDの週を取得する。見つからない場合はnilを返す。
func (r *PostgresWeekRepo) FindByID(ctx context.Context, id string) (*model.Week, error) {
	week := &model.Week{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, key, created_at FROM weeks WHERE id = $1`,
		id,
	).Scan(&week.ID, &week.Key, &week.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find week by ID: %w", err)
	}

	return week, nil
}

// CreateWithParts は週と固定数のパートを同一トランザクションで作成する。
// 同じキーの同時作成で負けた側にはErrDuplicateWeekKeyを返す。
// 呼び出し側は再検索にフォールバックすること。
func (r *PostgresWeekRepo) CreateWithParts(ctx context.Context, week *model.Week, partCount int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 週を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO weeks (id, key, created_at) VALUES ($1, $2, $3)`,
		week.ID, week.Key, week.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateWeekKey
		}
		return fmt.Errorf("failed to insert week: %w", err)
	}

	// パートを一括作成。週とパートは同じトランザクションでコミットされるため、
	// パートが欠けた週が観測されることはない
	_, err = tx.ExecContext(ctx,
		`INSERT INTO parts (id, week_id, number, updated_at)
		 SELECT gen_random_uuid(), $1, n, $2
		 FROM generate_series(1, $3) AS n`,
		week.ID, week.CreatedAt, partCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert parts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListParts は週の全パートをnumber昇順で返す。ロックは取得しない。
func (r *PostgresWeekRepo) ListParts(ctx context.Context, weekID string) ([]*model.Part, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, week_id, number, claimed_by, claimed_name, claimed_at, updated_at
		 FROM parts WHERE week_id = $1 ORDER BY number`,
		weekID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	defer rows.Close()

	var parts []*model.Part
	for rows.Next() {
		part, err := scanPartRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan part: %w", err)
		}
		parts = append(parts, part)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parts: %w", err)
	}

	return parts, nil
}

// isUniqueViolation は一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// compile-time interface check
var _ WeekRepository = (*PostgresWeekRepo)(nil)
