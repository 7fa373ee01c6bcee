// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 電話番号は正規化済みの国際形式（+81〜）で保持する。
type User struct {
	ID              string
	ExternalAuthKey string // 外部認証キー。外部認証なしログインの場合は生成されたキー
	Name            string
	Phone           string // 正規化済み。未設定の場合は空文字列
	IsAdmin         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileHint はログインやプロフィール更新で受け取る未確定のプロフィール情報を表す。
// 空のフィールドは「変更なし」を意味し、保存済みの値を上書きしない。
type ProfileHint struct {
	Name  string
	Phone string // 未正規化でもよい。利用側で正規化される
}

// Session はユーザーのログインセッションを表す。
// プロフィールや権限が変わるとセッションは再発行される（ローテーション）。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
