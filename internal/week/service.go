// Package week は週の解決と遅延作成を提供する。
package week

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/partban/internal/model"
	"github.com/hitoshi/partban/internal/repository"
)

// Service は週キーから週を解決するディレクトリサービス。
// 未知のキーへの最初のアクセスで週と固定数のパートを一度だけ作成する。
type Service struct {
	weekRepo     repository.WeekRepository
	partsPerWeek int
}

// NewService はServiceを生成する。
// partsPerWeekは作成時に固定され、以降変更されない。
func NewService(weekRepo repository.WeekRepository, partsPerWeek int) *Service {
	return &Service{
		weekRepo:     weekRepo,
		partsPerWeek: partsPerWeek,
	}
}

// Resolve は週キーから週とその全パートを冪等に取得する。
// 未知のキーの場合は週とパートを原子的に作成する。
// 同じキーの同時作成では負けた側が一意制約違反を受け、
// 再検索にフォールバックして勝者の週を返す。
// 呼び出し元が同一キーで別々の週を観測することはない。
func (s *Service) Resolve(ctx context.Context, key string) (*model.WeekSnapshot, error) {
	if key == "" {
		return nil, model.NewWeekRequiredError()
	}

	w, err := s.weekRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find week: %w", err)
	}

	if w == nil {
		w, err = s.createWeek(ctx, key)
		if err != nil {
			return nil, err
		}
	}

	parts, err := s.weekRepo.ListParts(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}

	return &model.WeekSnapshot{Week: w, Parts: parts}, nil
}

// Snapshot は週IDから最新のスナップショットを取得する。ロックは取得しない。
// 購読開始直後の初期化で使用される。購読登録の後に呼ぶこと。
func (s *Service) Snapshot(ctx context.Context, weekID string) (*model.WeekSnapshot, error) {
	w, err := s.weekRepo.FindByID(ctx, weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to find week: %w", err)
	}
	if w == nil {
		return nil, model.NewWeekRequiredError()
	}

	parts, err := s.weekRepo.ListParts(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}

	return &model.WeekSnapshot{Week: w, Parts: parts}, nil
}

// createWeek は週とパートを作成する。
// 一意制約違反（同時作成の競合に敗北）の場合は勝者の週を再検索して返す。
func (s *Service) createWeek(ctx context.Context, key string) (*model.Week, error) {
	w := &model.Week{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now(),
	}

	err := s.weekRepo.CreateWithParts(ctx, w, s.partsPerWeek)
	if err == nil {
		slog.Info("week created",
			slog.String("week_id", w.ID),
			slog.String("key", key),
			slog.Int("parts", s.partsPerWeek),
		)
		return w, nil
	}

	if !errors.Is(err, repository.ErrDuplicateWeekKey) {
		return nil, fmt.Errorf("failed to create week: %w", err)
	}

	// 競合に敗北。勝者の週を返す
	winner, err := s.weekRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find week after conflict: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("week disappeared after duplicate key conflict: %s", key)
	}
	return winner, nil
}
