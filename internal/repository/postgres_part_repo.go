package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/partban/internal/model"
)

// PostgresPartRepo はPostgreSQLを使用した担当枠リポジトリ。
// 確保・解放・リセットの相互排他はSELECT ... FOR UPDATEによる行ロックで実現し、
// ロックの生存期間は常に単一トランザクションに収まる。
type PostgresPartRepo struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresPartRepo はPostgresPartRepoを生成する。
// lockTimeoutは行ロック待ちの上限。超過した場合トランザクションは失敗し、
// 呼び出し側にはリトライ可能な運用エラーとして伝播する。
func NewPostgresPartRepo(db *sql.DB, lockTimeout time.Duration) *PostgresPartRepo {
	return &PostgresPartRepo{db: db, lockTimeout: lockTimeout}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPartRows は1行分のパートをスキャンする。claimed_*のNULLはゼロ値に変換する。
func scanPartRows(row rowScanner) (*model.Part, error) {
	part := &model.Part{}
	var claimedBy, claimedName sql.NullString
	var claimedAt sql.NullTime

	err := row.Scan(
		&part.ID, &part.WeekID, &part.Number,
		&claimedBy, &claimedName, &claimedAt,
		&part.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if claimedBy.Valid {
		part.ClaimedBy = claimedBy.String
	}
	if claimedName.Valid {
		part.ClaimedName = claimedName.String
	}
	if claimedAt.Valid {
		part.ClaimedAt = &claimedAt.Time
	}

	return part, nil
}

// setLockTimeout はトランザクションローカルなロック待ちタイムアウトを設定する。
// SET LOCALはコミット・ロールバックで自動的に解除される。
func (r *PostgresPartRepo) setLockTimeout(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return nil
}

// lockPart は(week_id, number)のパート行を排他ロック付きで取得する。
// 存在しない場合はErrPartNotFoundを返す。
func lockPart(ctx context.Context, tx *sql.Tx, weekID string, number int) (*model.Part, error) {
	part, err := scanPartRows(tx.QueryRowContext(ctx,
		`SELECT id, week_id, number, claimed_by, claimed_name, claimed_at, updated_at
		 FROM parts WHERE week_id = $1 AND number = $2
		 FOR UPDATE`,
		weekID, number,
	))
	if err == sql.ErrNoRows {
		return nil, ErrPartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock part: %w", err)
	}
	return part, nil
}

// Claim はパートを確保する。
// 行ロックの下で空きを確認し、claimed_by/claimed_name/claimed_atを
// 同時に設定してコミットする。確保済みの場合は変更なしでロールバックし
// ErrAlreadyClaimedを返す。
func (r *PostgresPartRepo) Claim(ctx context.Context, weekID string, number int, userID, claimedName string) (*model.Part, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	part, err := lockPart(ctx, tx, weekID, number)
	if err != nil {
		return nil, err
	}

	if part.IsClaimed() {
		return nil, ErrAlreadyClaimed
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE parts SET claimed_by = $1, claimed_name = $2, claimed_at = $3, updated_at = $3
		 WHERE id = $4`,
		userID, claimedName, now, part.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim part: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	part.ClaimedBy = userID
	part.ClaimedName = claimedName
	part.ClaimedAt = &now
	part.UpdatedAt = now
	return part, nil
}

// Release は確保済みパートを解放する。
// 所有者の完全一致のみ許可する。管理者であっても他人のパートは解放できない。
func (r *PostgresPartRepo) Release(ctx context.Context, weekID string, number int, userID string) (*model.Part, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	part, err := lockPart(ctx, tx, weekID, number)
	if err != nil {
		return nil, err
	}

	if part.ClaimedBy != userID || !part.IsClaimed() {
		return nil, ErrNotOwner
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE parts SET claimed_by = NULL, claimed_name = NULL, claimed_at = NULL, updated_at = $1
		 WHERE id = $2`,
		now, part.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to release part: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	part.ClaimedBy = ""
	part.ClaimedName = ""
	part.ClaimedAt = nil
	part.UpdatedAt = now
	return part, nil
}

// ResetWeek は週の全パートを一括で空きに戻す。
// 管理者フラグの読み取り（FOR SHARE）と一括クリアが同一トランザクションのため、
// 認可済みのリセットに権限剥奪が割り込むことはない。
// 一括UPDATEは週の全パート行のロックを取得する。リセットは稀な操作であり、
// 全パートにまたがる原子性のために粗い粒度を意図的に選んでいる。
func (r *PostgresPartRepo) ResetWeek(ctx context.Context, weekID, callerID string) ([]*model.Part, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	// 権限チェック。FOR SHAREで同一トランザクション中のフラグ変更をブロックする
	var isAdmin bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_admin FROM users WHERE id = $1 FOR SHARE`,
		callerID,
	).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check admin flag: %w", err)
	}
	if !isAdmin {
		return nil, ErrNotAdmin
	}

	// 全パートを1文でクリア
	_, err = tx.ExecContext(ctx,
		`UPDATE parts SET claimed_by = NULL, claimed_name = NULL, claimed_at = NULL, updated_at = now()
		 WHERE week_id = $1`,
		weekID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset parts: %w", err)
	}

	// リセット後のスナップショットを同一トランザクション内で取得する
	rows, err := tx.QueryContext(ctx,
		`SELECT id, week_id, number, claimed_by, claimed_name, claimed_at, updated_at
		 FROM parts WHERE week_id = $1 ORDER BY number`,
		weekID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts after reset: %w", err)
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

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return parts, nil
}

// compile-time interface check
var _ PartRepository = (*PostgresPartRepo)(nil)
