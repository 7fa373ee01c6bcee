// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/partban/internal/model"
)

// 業務上の状態を表すセンチネルエラー。
// サービス層でAPIErrorに変換される。
var (
	// ErrDuplicateWeekKey は週キーの一意制約違反を表す。
	// 同時作成の競合で負けた側が受け取り、再検索にフォールバックする。
	ErrDuplicateWeekKey = errors.New("week key already exists")
	// ErrPartNotFound は指定されたパートが存在しないことを表す。
	ErrPartNotFound = errors.New("part not found")
	// ErrAlreadyClaimed はパートが既に確保済みであることを表す。
	ErrAlreadyClaimed = errors.New("part already claimed")
	// ErrNotOwner はパートの所有者でないことを表す。
	ErrNotOwner = errors.New("not the owner of the part")
	// ErrNotAdmin は管理者権限がないことを表す。
	ErrNotAdmin = errors.New("not an admin")
	// ErrUserNotFound は指定されたユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalKey は外部認証キーでユーザーを検索する。見つからない場合はnilを返す。
	FindByExternalKey(ctx context.Context, key string) (*model.User, error)

	// FindByPhone は正規化済み電話番号でユーザーを検索する。見つからない場合はnilを返す。
	FindByPhone(ctx context.Context, phone string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーのname、phone、is_adminを更新する。
	// 対象が存在しない場合はErrUserNotFoundを返す。
	Update(ctx context.Context, user *model.User) error

	// SetAdmin は指定ユーザーの管理者フラグを無条件に設定する。
	// 対象が存在しない場合はErrUserNotFoundを返す。
	SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.User, error)
}

// WeekRepository は週データの永続化インターフェース。
type WeekRepository interface {
	// FindByKey は週キーで週を検索する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.Week, error)

	// FindByID は指定IDの週を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Week, error)

	// CreateWithParts は週と固定数のパートを同一トランザクションで作成する。
	// 週がパートゼロや一部のみの状態で観測されることはない。
	// キーの一意制約違反の場合はErrDuplicateWeekKeyを返す。
	CreateWithParts(ctx context.Context, week *model.Week, partCount int) error

	// ListParts は週の全パートをnumber昇順で返す。ロックは取得しない。
	ListParts(ctx context.Context, weekID string) ([]*model.Part, error)
}

// PartRepository は担当枠の排他的な状態遷移を提供するインターフェース。
// 各メソッドは単一トランザクション内で行ロックを取得し、
// コミットかロールバックで必ずロックを解放する。
type PartRepository interface {
	// Claim はパートを確保する。SELECT ... FOR UPDATEで行ロックを取得し、
	// 空きであればclaimed_by/claimed_name/claimed_atを設定してコミットする。
	// パートが存在しない場合はErrPartNotFound、
	// 既に確保済みの場合はErrAlreadyClaimed（変更なしでロールバック）。
	Claim(ctx context.Context, weekID string, number int, userID, claimedName string) (*model.Part, error)

	// Release は確保済みパートを解放する。同じ行ロックの下で
	// 所有者の完全一致を検証し、claimed_*をすべてクリアしてコミットする。
	// 空きまたは他人のパートの場合はErrNotOwner。
	Release(ctx context.Context, weekID string, number int, userID string) (*model.Part, error)

	// ResetWeek は週の全パートを一括で空きに戻す。
	// 管理者フラグの読み取りと一括クリアを同一トランザクションで行うため、
	// 権限剥奪と認可済みリセットが競合することはない。
	// 成功時は更新後の全パートをnumber昇順で返す。
	ResetWeek(ctx context.Context, weekID, callerID string) ([]*model.Part, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	// セッションローテーションで使用する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
