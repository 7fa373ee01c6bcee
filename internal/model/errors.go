// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, claim, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeWeekRequired   = "WEEK_REQUIRED"
	ErrCodePartNotFound   = "PART_NOT_FOUND"
	ErrCodeAlreadyClaimed = "ALREADY_CLAIMED"
	ErrCodeNotOwner       = "NOT_OWNER"
	ErrCodeNotAdmin       = "NOT_ADMIN"
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeInvalidBody    = "INVALID_BODY"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewWeekRequiredError は週キー未指定エラーを生成する。
func NewWeekRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeWeekRequired,
		Message:  "週キーが指定されていません。",
		Category: "validation",
		Action:   "週キー（例: 2026-09-07）を指定してください。",
	}
}

// NewPartNotFoundError はパート未検出エラーを生成する。
func NewPartNotFoundError(number int) *APIError {
	return &APIError{
		Code:     ErrCodePartNotFound,
		Message:  fmt.Sprintf("指定されたパートが見つかりません: %d", number),
		Category: "claim",
		Action:   "パート番号を確認してください。",
	}
}

// NewAlreadyClaimedError は確保競合エラーを生成する。
// 別のユーザーが先に同じパートを確保した場合に返される。
func NewAlreadyClaimedError(number int) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyClaimed,
		Message:  fmt.Sprintf("パート%dは既に確保されています。", number),
		Category: "claim",
		Action:   "最新の状態を確認し、別のパートを選んでください。",
	}
}

// NewNotOwnerError は所有者以外による解放エラーを生成する。
func NewNotOwnerError(number int) *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  fmt.Sprintf("パート%dはあなたが確保したパートではありません。", number),
		Category: "claim",
		Action:   "自分が確保したパートのみ解放できます。",
	}
}

// NewNotAdminError は管理者権限エラーを生成する。
func NewNotAdminError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAdmin,
		Message:  "この操作には管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者に操作を依頼してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidBodyError はリクエストボディ不正エラーを生成する。
func NewInvalidBodyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// ロック待ちタイムアウトやDB接続断などの運用上の失敗を表し、
// 業務エラーと区別される。リトライ可能。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
