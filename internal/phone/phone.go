// Package phone は電話番号の正規化を提供する。
// 国内形式（090-xxxx-xxxx等）を国際形式（+8190xxxxxxxx）に変換する。
package phone

import "strings"

// 日本の国番号。国内形式の先頭0を置き換える。
const countryPrefix = "+81"

// Normalize は電話番号を正規化済みの国際形式に変換する。
// ハイフン・空白・括弧は除去する。正規化できない入力はok=falseを返す。
func Normalize(raw string) (normalized string, ok bool) {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '(' || r == ')':
			// 区切り文字は無視
		default:
			return "", false
		}
	}

	s := b.String()
	switch {
	case s == "":
		return "", false
	case strings.HasPrefix(s, "+"):
		if len(s) < 9 {
			return "", false
		}
		return s, true
	case strings.HasPrefix(s, "0"):
		if len(s) < 10 {
			return "", false
		}
		return countryPrefix + s[1:], true
	default:
		return "", false
	}
}
