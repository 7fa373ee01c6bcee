package repository

import (
	"testing"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// ユニットテスト: nullablePhoneが空文字列をNULLに変換すること
// （部分一意インデックスを空文字列で汚染しないための変換）
func TestNullablePhone_EmptyStringBecomesNull(t *testing.T) {
	got := nullablePhone("")
	if got.Valid {
		t.Error("empty phone should map to NULL")
	}
}

// ユニットテスト: nullablePhoneが非空の番号をそのまま保持すること
func TestNullablePhone_NonEmptyStringIsKept(t *testing.T) {
	got := nullablePhone("+819012345678")
	if !got.Valid {
		t.Fatal("non-empty phone should be valid")
	}
	if got.String != "+819012345678" {
		t.Errorf("String = %q, want %q", got.String, "+819012345678")
	}
}
