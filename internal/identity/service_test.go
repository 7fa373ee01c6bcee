package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/partban/internal/adminpolicy"
	"github.com/hitoshi/partban/internal/model"
	"github.com/hitoshi/partban/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.User, error)
	findByExternalKeyFn func(ctx context.Context, key string) (*model.User, error)
	findByPhoneFn       func(ctx context.Context, phone string) (*model.User, error)
	createFn            func(ctx context.Context, user *model.User) error
	updateFn            func(ctx context.Context, user *model.User) error
	setAdminFn          func(ctx context.Context, id string, isAdmin bool) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByExternalKey(ctx context.Context, key string) (*model.User, error) {
	if m.findByExternalKeyFn != nil {
		return m.findByExternalKeyFn(ctx, key)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	if m.findByPhoneFn != nil {
		return m.findByPhoneFn(ctx, phone)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) Update(ctx context.Context, user *model.User) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
	if m.setAdminFn != nil {
		return m.setAdminFn(ctx, id, isAdmin)
	}
	return nil, nil
}

func newTestService(repo repository.UserRepository) *Service {
	return NewService(repo, adminpolicy.New("管理 太郎", []string{"+818011112222"}))
}

// --- テスト ---

// TestService_ResolveOrCreate_FindsByPhone は電話番号による既存ユーザーの解決を検証する。
// 外部キーが異なっていても電話番号が一致すれば既存レコードが勝つ。
func TestService_ResolveOrCreate_FindsByPhone(t *testing.T) {
	createCalled := false
	repo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*model.User, error) {
			if phone != "+819012345678" {
				t.Errorf("FindByPhone called with %q, want normalized form", phone)
			}
			return &model.User{ID: "user-1", ExternalAuthKey: "key-old", Name: "既存", Phone: "+819012345678"}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			createCalled = true
			return nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.ResolveOrCreate(context.Background(), "key-new", model.ProfileHint{Phone: "090-1234-5678"})
	if err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
	if createCalled {
		t.Error("Create should not be called when user is resolved by phone")
	}
}

// TestService_ResolveOrCreate_FindsByExternalKey は外部認証キーによる解決を検証する。
func TestService_ResolveOrCreate_FindsByExternalKey(t *testing.T) {
	repo := &mockUserRepo{
		findByExternalKeyFn: func(ctx context.Context, key string) (*model.User, error) {
			if key != "key-1" {
				t.Errorf("FindByExternalKey called with %q, want %q", key, "key-1")
			}
			return &model.User{ID: "user-1", ExternalAuthKey: "key-1", Name: "既存"}, nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.ResolveOrCreate(context.Background(), "key-1", model.ProfileHint{})
	if err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
}

// TestService_ResolveOrCreate_CreatesNewUser は未登録ユーザーの新規作成を検証する。
func TestService_ResolveOrCreate_CreatesNewUser(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.ResolveOrCreate(context.Background(), "key-1", model.ProfileHint{Name: "新規", Phone: "090-1234-5678"})
	if err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}
	if created == nil {
		t.Fatal("Create was not called")
	}
	if user.ID == "" {
		t.Error("user.ID should be generated")
	}
	if user.Name != "新規" {
		t.Errorf("user.Name = %q, want %q", user.Name, "新規")
	}
	if user.Phone != "+819012345678" {
		t.Errorf("user.Phone = %q, want normalized form", user.Phone)
	}
	if user.IsAdmin {
		t.Error("user should not be admin")
	}
}

// TestService_ResolveOrCreate_NoExternalKey_GeneratesKey は外部認証なしのログインで
// 認証キーが自動生成されることを検証する。
func TestService_ResolveOrCreate_NoExternalKey_GeneratesKey(t *testing.T) {
	repo := &mockUserRepo{}

	svc := newTestService(repo)

	user, err := svc.ResolveOrCreate(context.Background(), "", model.ProfileHint{Name: "匿名"})
	if err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}
	if user.ExternalAuthKey == "" {
		t.Error("ExternalAuthKey should be generated")
	}
}

// TestService_ResolveOrCreate_AdminByName は管理者名でのログインが管理者として作成されることを検証する。
func TestService_ResolveOrCreate_AdminByName(t *testing.T) {
	repo := &mockUserRepo{}

	svc := newTestService(repo)

	user, err := svc.ResolveOrCreate(context.Background(), "key-1", model.ProfileHint{Name: "管理 太郎"})
	if err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}
	if !user.IsAdmin {
		t.Error("user logging in with the admin name should be created as admin")
	}
}

// TestService_ResolveOrCreate_InvalidPhone_TreatedAsUnspecified は正規化できない
// 電話番号ヒントが未指定として扱われることを検証する。
func TestService_ResolveOrCreate_InvalidPhone_TreatedAsUnspecified(t *testing.T) {
	phoneLookupCalled := false
	repo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*model.User, error) {
			phoneLookupCalled = true
			return nil, nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.ResolveOrCreate(context.Background(), "key-1", model.ProfileHint{Phone: "not-a-phone"})
	if err != nil {
		t.Fatalf("ResolveOrCreate returned error: %v", err)
	}
	if phoneLookupCalled {
		t.Error("FindByPhone should not be called for an invalid phone hint")
	}
	if user.Phone != "" {
		t.Errorf("user.Phone = %q, want empty", user.Phone)
	}
}

// TestService_UpdateProfile_MergesNonEmptyFields は空フィールドが既存値を
// 上書きしないマージ動作を検証する。
func TestService_UpdateProfile_MergesNonEmptyFields(t *testing.T) {
	var updated *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "user-1", Name: "旧名", Phone: "+819012345678"}, nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.UpdateProfile(context.Background(), "user-1", model.ProfileHint{Name: "新名"})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated == nil {
		t.Fatal("Update was not called")
	}
	if user.Name != "新名" {
		t.Errorf("user.Name = %q, want %q", user.Name, "新名")
	}
	if user.Phone != "+819012345678" {
		t.Errorf("user.Phone = %q, existing phone should be preserved", user.Phone)
	}
}

// TestService_UpdateProfile_NoChange_SkipsUpdate は変更のないマージがUPDATEを
// 発行しないことを検証する。
func TestService_UpdateProfile_NoChange_SkipsUpdate(t *testing.T) {
	updateCalled := false
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "user-1", Name: "名前", Phone: "+819012345678"}, nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updateCalled = true
			return nil
		},
	}

	svc := newTestService(repo)

	if _, err := svc.UpdateProfile(context.Background(), "user-1", model.ProfileHint{Name: "名前"}); err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updateCalled {
		t.Error("Update should not be called when nothing changed")
	}
}

// TestService_UpdateProfile_AdminEscalation はプロフィール更新による
// 管理者への自動昇格を検証する。剥奪方向には働かない。
func TestService_UpdateProfile_AdminEscalation(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "user-1", Name: "一般", IsAdmin: false}, nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.UpdateProfile(context.Background(), "user-1", model.ProfileHint{Phone: "080-1111-2222"})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if !user.IsAdmin {
		t.Error("matching admin phone should escalate to admin")
	}
}

// TestService_UpdateProfile_AdminNotRevokedByEdit は管理者がプロフィールを変えても
// フラグが剥奪されないこと（単調性）を検証する。
func TestService_UpdateProfile_AdminNotRevokedByEdit(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "user-1", Name: "管理 太郎", IsAdmin: true}, nil
		},
	}

	svc := newTestService(repo)

	user, err := svc.UpdateProfile(context.Background(), "user-1", model.ProfileHint{Name: "改名しました"})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if !user.IsAdmin {
		t.Error("renaming must not revoke the admin flag")
	}
}

// TestService_UpdateProfile_UserNotFound は存在しないユーザーの更新がUSER_NOT_FOUNDを返すことを検証する。
func TestService_UpdateProfile_UserNotFound(t *testing.T) {
	repo := &mockUserRepo{}

	svc := newTestService(repo)

	_, err := svc.UpdateProfile(context.Background(), "missing", model.ProfileHint{Name: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

// TestService_SetAdmin_Success は管理者による明示的なフラグ設定を検証する。
func TestService_SetAdmin_Success(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "actor-1", IsAdmin: true}, nil
		},
		setAdminFn: func(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
			if id != "target-1" || !isAdmin {
				t.Errorf("SetAdmin(%q, %v), want (target-1, true)", id, isAdmin)
			}
			return &model.User{ID: "target-1", IsAdmin: true}, nil
		},
	}

	svc := newTestService(repo)

	target, err := svc.SetAdmin(context.Background(), "actor-1", "target-1", true)
	if err != nil {
		t.Fatalf("SetAdmin returned error: %v", err)
	}
	if !target.IsAdmin {
		t.Error("target should be admin after SetAdmin")
	}
}

// TestService_SetAdmin_Demotion は管理者が別の管理者を降格できること（非単調）を検証する。
func TestService_SetAdmin_Demotion(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "actor-1", IsAdmin: true}, nil
		},
		setAdminFn: func(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
			if isAdmin {
				t.Error("expected demotion, got promotion")
			}
			return &model.User{ID: "target-1", IsAdmin: false}, nil
		},
	}

	svc := newTestService(repo)

	target, err := svc.SetAdmin(context.Background(), "actor-1", "target-1", false)
	if err != nil {
		t.Fatalf("SetAdmin returned error: %v", err)
	}
	if target.IsAdmin {
		t.Error("target should not be admin after demotion")
	}
}

// TestService_SetAdmin_NonAdminActor_ReturnsNotAdmin は一般ユーザーによる
// フラグ設定がNOT_ADMINで拒否されることを検証する。
func TestService_SetAdmin_NonAdminActor_ReturnsNotAdmin(t *testing.T) {
	setAdminCalled := false
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "actor-1", IsAdmin: false}, nil
		},
		setAdminFn: func(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
			setAdminCalled = true
			return nil, nil
		},
	}

	svc := newTestService(repo)

	_, err := svc.SetAdmin(context.Background(), "actor-1", "target-1", true)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeNotAdmin {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeNotAdmin)
	}
	if setAdminCalled {
		t.Error("repository SetAdmin should not be called for a non-admin actor")
	}
}

// TestService_SetAdmin_TargetNotFound は存在しない対象へのフラグ設定がUSER_NOT_FOUNDを返すことを検証する。
func TestService_SetAdmin_TargetNotFound(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "actor-1", IsAdmin: true}, nil
		},
		setAdminFn: func(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
			return nil, repository.ErrUserNotFound
		},
	}

	svc := newTestService(repo)

	_, err := svc.SetAdmin(context.Background(), "actor-1", "missing", true)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}
