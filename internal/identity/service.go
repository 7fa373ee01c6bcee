// Package identity はユーザーの解決・作成・プロフィール管理を提供する。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/partban/internal/adminpolicy"
	"github.com/hitoshi/partban/internal/model"
	"github.com/hitoshi/partban/internal/phone"
	"github.com/hitoshi/partban/internal/repository"
)

// Service はユーザー解決とプロフィール管理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	policy   *adminpolicy.Policy
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, policy *adminpolicy.Policy) *Service {
	return &Service{
		userRepo: userRepo,
		policy:   policy,
	}
}

// ResolveOrCreate は認証済みの呼び出し元を永続的なユーザーレコードに解決する。
// 解決の優先順位は正規化済み電話番号、次に外部認証キー。
// どちらでも見つからない場合のみ新規作成する。
// 同じ電話番号が別の外部キーから使われた場合も既存レコードが勝ち、
// 重複レコードは決して作られない。
func (s *Service) ResolveOrCreate(ctx context.Context, externalKey string, hint model.ProfileHint) (*model.User, error) {
	normalizedPhone := normalizePhoneHint(hint.Phone)

	// 1. 電話番号で既存ユーザーを検索
	if normalizedPhone != "" {
		user, err := s.userRepo.FindByPhone(ctx, normalizedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user by phone: %w", err)
		}
		if user != nil {
			return s.mergeProfile(ctx, user, hint.Name, normalizedPhone)
		}
	}

	// 2. 外部認証キーで検索
	if externalKey != "" {
		user, err := s.userRepo.FindByExternalKey(ctx, externalKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user by external key: %w", err)
		}
		if user != nil {
			return s.mergeProfile(ctx, user, hint.Name, normalizedPhone)
		}
	}

	// 3. 新規作成。外部認証なしのログインにはキーを生成する
	if externalKey == "" {
		externalKey = uuid.New().String()
	}

	now := time.Now()
	user := &model.User{
		ID:              uuid.New().String(),
		ExternalAuthKey: externalKey,
		Name:            hint.Name,
		Phone:           normalizedPhone,
		IsAdmin:         s.policy.ComputeAdminFlag(hint.Name, normalizedPhone, false),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.Bool("is_admin", user.IsAdmin),
	)

	return user, nil
}

// UpdateProfile はプロフィールをマージ更新する。
// hintの空フィールドは保存済みの値を上書きしない。
// マージ後のname/phoneで管理者フラグを再計算する（単調。編集で剥奪されない）。
func (s *Service) UpdateProfile(ctx context.Context, userID string, hint model.ProfileHint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return s.mergeProfile(ctx, user, hint.Name, normalizePhoneHint(hint.Phone))
}

// SetAdmin は管理者フラグを明示的に設定する。
// actorが管理者でなければNOT_ADMIN。対象が存在しなければUSER_NOT_FOUND。
// ComputeAdminFlagと異なり非単調で、管理者が別の管理者を降格することもできる。
func (s *Service) SetAdmin(ctx context.Context, actorID, targetID string, makeAdmin bool) (*model.User, error) {
	actor, err := s.userRepo.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find actor: %w", err)
	}
	if actor == nil || !actor.IsAdmin {
		return nil, model.NewNotAdminError()
	}

	target, err := s.userRepo.SetAdmin(ctx, targetID, makeAdmin)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("failed to set admin flag: %w", err)
	}

	slog.Info("admin flag changed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
		slog.Bool("is_admin", makeAdmin),
	)

	return target, nil
}

// GetUser は指定IDのユーザーを取得する。存在しない場合はUSER_NOT_FOUND。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// mergeProfile は空でないフィールドのみを既存レコードに重ねて保存する。
// 変更がない場合はUPDATEを発行せず冪等に既存レコードを返す。
func (s *Service) mergeProfile(ctx context.Context, user *model.User, name, normalizedPhone string) (*model.User, error) {
	changed := false

	if name != "" && name != user.Name {
		user.Name = name
		changed = true
	}
	if normalizedPhone != "" && normalizedPhone != user.Phone {
		user.Phone = normalizedPhone
		changed = true
	}

	if isAdmin := s.policy.ComputeAdminFlag(user.Name, user.Phone, user.IsAdmin); isAdmin != user.IsAdmin {
		user.IsAdmin = isAdmin
		changed = true
	}

	if !changed {
		return user, nil
	}

	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

// normalizePhoneHint はヒントの電話番号を正規化する。
// 正規化できない値は「未指定」として扱う。
func normalizePhoneHint(raw string) string {
	if raw == "" {
		return ""
	}
	normalized, ok := phone.Normalize(raw)
	if !ok {
		return ""
	}
	return normalized
}
