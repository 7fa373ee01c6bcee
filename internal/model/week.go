// Package model はドメインモデルを定義する。
package model

import "time"

// Week は担当表の1週を表す。
// 週は作成時に固定数のパートを持ち、以降パートが増減することはない。
type Week struct {
	ID        string
	Key       string // 人間が選ぶ週キー（例: "2026-09-07"）
	CreatedAt time.Time
}

// Part は週に属する1つの担当枠を表す。
// 状態は「空き」か「確保済み」の2つのみで、中間状態は存在しない。
// 不変条件: ClaimedBy == "" ⟺ ClaimedName == "" ⟺ ClaimedAt == nil
type Part struct {
	ID          string
	WeekID      string
	Number      int
	ClaimedBy   string // 確保したユーザーのID。空きの場合は空文字列
	ClaimedName string // 確保時点の表示名のスナップショット
	ClaimedAt   *time.Time
	UpdatedAt   time.Time
}

// IsClaimed はパートが確保済みかどうかを返す。
func (p *Part) IsClaimed() bool {
	return p.ClaimedBy != ""
}

// WeekSnapshot は週とその全パートのスナップショットを表す。
// 購読開始時の初期化とリセットイベントで使用される。
type WeekSnapshot struct {
	Week  *Week
	Parts []*Part
}
