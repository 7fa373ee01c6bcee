// Package claim は担当枠の確保・解放・リセットの状態機械を提供する。
//
// 並行安全性はストアの行ロックに委譲し、プロセス全体のロックは持たない。
// イベント配信は必ずコミットの後に行われ、失敗した操作がイベントを
// 発行することはない。
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/partban/internal/model"
	"github.com/hitoshi/partban/internal/repository"
)

// Publisher はコミット済みの状態変化を購読者に配信するインターフェース。
// broadcast.Hubの部分集合として定義する。
type Publisher interface {
	PublishPartUpdate(weekID string, part *model.Part)
	PublishWeekReset(weekID string, parts []*model.Part)
}

// WeekDirectory は週キーから週を解決するインターフェース。
// week.Serviceの部分集合として定義する。
type WeekDirectory interface {
	Resolve(ctx context.Context, key string) (*model.WeekSnapshot, error)
}

// Metrics は確保・解放・リセット操作の計測インターフェース。
type Metrics interface {
	RecordClaim()
	RecordClaimConflict()
	RecordRelease()
	RecordReset()
	ObserveClaimLatency(d time.Duration)
}

// nopMetrics は計測なしのデフォルト実装。
type nopMetrics struct{}

func (nopMetrics) RecordClaim()                        {}
func (nopMetrics) RecordClaimConflict()                {}
func (nopMetrics) RecordRelease()                      {}
func (nopMetrics) RecordReset()                        {}
func (nopMetrics) ObserveClaimLatency(_ time.Duration) {}

// Service は担当枠の状態遷移を調停するコーディネーター。
type Service struct {
	partRepo  repository.PartRepository
	userRepo  repository.UserRepository
	directory WeekDirectory
	publisher Publisher
	metrics   Metrics
}

// NewService はServiceを生成する。metricsがnilの場合は計測なし。
func NewService(
	partRepo repository.PartRepository,
	userRepo repository.UserRepository,
	directory WeekDirectory,
	publisher Publisher,
	metrics Metrics,
) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		partRepo:  partRepo,
		userRepo:  userRepo,
		directory: directory,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Claim はパートを呼び出し元のユーザーに確保する。
// 表示名はnameOverrideが空でなければそれを、そうでなければユーザーの
// 保存済みの名前をスナップショットする。
// 同じ空きパートへのN個の同時確保はちょうど1つだけ成功し、
// 残りはALREADY_CLAIMEDを受け取る。確保は冪等ではなく、失敗後の
// 再試行はユーザーの判断に委ねられる（自動リトライしない）。
func (s *Service) Claim(ctx context.Context, weekID string, number int, callerID, nameOverride string) (*model.Part, error) {
	start := time.Now()

	caller, err := s.userRepo.FindByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find caller: %w", err)
	}
	if caller == nil {
		return nil, model.NewUserNotFoundError()
	}

	claimedName := nameOverride
	if claimedName == "" {
		claimedName = caller.Name
	}

	part, err := s.partRepo.Claim(ctx, weekID, number, callerID, claimedName)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPartNotFound):
			return nil, model.NewPartNotFoundError(number)
		case errors.Is(err, repository.ErrAlreadyClaimed):
			s.metrics.RecordClaimConflict()
			return nil, model.NewAlreadyClaimedError(number)
		default:
			return nil, fmt.Errorf("failed to claim part: %w", err)
		}
	}

	s.metrics.RecordClaim()
	s.metrics.ObserveClaimLatency(time.Since(start))

	slog.Info("part claimed",
		slog.String("week_id", weekID),
		slog.Int("number", number),
		slog.String("user_id", callerID),
	)

	// コミット済み。ここからの配信はfire-and-forget
	s.publisher.PublishPartUpdate(weekID, part)

	return part, nil
}

// Release は確保済みパートを解放する。
// 所有者の完全一致のみ許可し、管理者にも暗黙の特権はない
// （リセットとの非対称は意図的）。
func (s *Service) Release(ctx context.Context, weekID string, number int, callerID string) (*model.Part, error) {
	part, err := s.partRepo.Release(ctx, weekID, number, callerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPartNotFound):
			return nil, model.NewPartNotFoundError(number)
		case errors.Is(err, repository.ErrNotOwner):
			return nil, model.NewNotOwnerError(number)
		default:
			return nil, fmt.Errorf("failed to release part: %w", err)
		}
	}

	s.metrics.RecordRelease()

	slog.Info("part released",
		slog.String("week_id", weekID),
		slog.Int("number", number),
		slog.String("user_id", callerID),
	)

	s.publisher.PublishPartUpdate(weekID, part)

	return part, nil
}

// Reset は週の全パートを一括で空きに戻す。管理者のみ実行できる。
// 権限チェックと一括クリアはストア側で同一トランザクションとして実行される。
// 成功時は個別の差分ではなく、リセット後の全パートを運ぶ
// 週リセットイベントを1件だけ配信する。
func (s *Service) Reset(ctx context.Context, weekKey, callerID string) (*model.WeekSnapshot, error) {
	snap, err := s.directory.Resolve(ctx, weekKey)
	if err != nil {
		return nil, err
	}

	parts, err := s.partRepo.ResetWeek(ctx, snap.Week.ID, callerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, model.NewUserNotFoundError()
		case errors.Is(err, repository.ErrNotAdmin):
			return nil, model.NewNotAdminError()
		default:
			return nil, fmt.Errorf("failed to reset week: %w", err)
		}
	}

	s.metrics.RecordReset()

	slog.Info("week reset",
		slog.String("week_id", snap.Week.ID),
		slog.String("week_key", weekKey),
		slog.String("user_id", callerID),
	)

	s.publisher.PublishWeekReset(snap.Week.ID, parts)

	return &model.WeekSnapshot{Week: snap.Week, Parts: parts}, nil
}
