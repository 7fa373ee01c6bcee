// Package adminpolicy は管理者権限の判定ルールを提供する。
//
// 昇格の経路は2つあり、意図的に別々のルールとしてモデル化されている。
//   - ComputeAdminFlag: プロフィール由来の自動昇格。単調（自動で剥奪されない）
//   - 明示的な権限付与・剥奪はidentityサービスのSetAdminが担う。非単調
package adminpolicy

// Policy は設定された管理者認識ルールを保持する。
// 副作用を持たない純粋な判定器として使う。
type Policy struct {
	adminName   string
	adminPhones map[string]struct{}
}

// New はPolicyを生成する。
// adminNameが空の場合、名前による昇格は無効。
// adminPhonesは正規化済みの電話番号リストを渡すこと。
func New(adminName string, adminPhones []string) *Policy {
	phones := make(map[string]struct{}, len(adminPhones))
	for _, p := range adminPhones {
		if p != "" {
			phones[p] = struct{}{}
		}
	}
	return &Policy{
		adminName:   adminName,
		adminPhones: phones,
	}
}

// ComputeAdminFlag はマージ後のプロフィールから管理者フラグを再計算する。
// currentFlag OR 名前一致 OR 電話番号一致。
// currentFlagを含むため単調であり、プロフィール編集で剥奪されることはない。
func (p *Policy) ComputeAdminFlag(name, phone string, currentFlag bool) bool {
	if currentFlag {
		return true
	}
	if p.adminName != "" && name == p.adminName {
		return true
	}
	if phone != "" {
		if _, ok := p.adminPhones[phone]; ok {
			return true
		}
	}
	return false
}
