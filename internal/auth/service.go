// Package auth はログイン、セッション発行・検証・ローテーションを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/partban/internal/model"
	"github.com/hitoshi/partban/internal/repository"
)

// UserRegistry はログインに必要なユーザー解決のインターフェース。
// identity.Serviceの部分集合として定義する。
type UserRegistry interface {
	// ResolveOrCreate は呼び出し元をユーザーレコードに解決する。
	ResolveOrCreate(ctx context.Context, externalKey string, hint model.ProfileHint) (*model.User, error)
	// GetUser は指定IDのユーザーを取得する。
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	registry    UserRegistry
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(registry UserRegistry, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		registry:    registry,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Login は呼び出し元をユーザーに解決し、セッションを発行する。
// 未登録の場合はユーザーを自動作成する。
func (s *Service) Login(ctx context.Context, externalKey string, hint model.ProfileHint) (*model.User, *model.Session, error) {
	user, err := s.registry.ResolveOrCreate(ctx, externalKey, hint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("is_admin", user.IsAdmin),
	)

	return user, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	return s.registry.GetUser(ctx, session.UserID)
}

// Rotate はユーザーの既存セッションをすべて破棄し、新しいセッションを発行する。
// プロフィールや権限の変更後に呼ぶことで、古いセッションが変更前の
// 状態を主張し続けることを防ぐ。実効権限の古さは最大1往復に収まる。
func (s *Service) Rotate(ctx context.Context, userID string) (*model.Session, error) {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reissue session: %w", err)
	}

	return session, nil
}

// Invalidate はユーザーの全セッションを破棄する。再発行はしない。
// 管理者が他のユーザーの権限を変更した場合に使用し、対象ユーザーに
// 再ログインを強制する。
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
