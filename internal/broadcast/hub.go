// Package broadcast は週ごとの状態変化を購読者に配信するハブを提供する。
//
// 配信はat-most-onceのベストエフォートで、バックログも再送も持たない。
// ライブビューの正しさは「購読登録の後にスナップショットを取得し、
// 以降は差分イベントのみを適用する」という呼び出し側の照合規約に依存する。
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/partban/internal/model"
)

// EventType はイベント種別を表す。
type EventType string

const (
	// EventSnapshot は購読開始時の全パートスナップショット。
	// ハブは発行しない。購読直後の初期化で配信側（ハンドラー）が送る。
	EventSnapshot EventType = "snapshot"
	// EventPartUpdate は1パートの状態変化（確保・解放）。
	EventPartUpdate EventType = "part_update"
	// EventWeekReset は週全体の一括リセット。全パートのスナップショットを運ぶ。
	// 30件の個別通知ではなく1件のイベントで配信される。
	EventWeekReset EventType = "week_reset"
)

// Event は購読者に配信されるイベント。
type Event struct {
	Type   EventType
	WeekID string
	Part   *model.Part   // EventPartUpdateの場合のみ
	Parts  []*model.Part // EventSnapshot / EventWeekResetの場合のみ
}

// Metrics はハブが記録する計測値のインターフェース。
type Metrics interface {
	// RecordEventDropped はバッファ満杯による配信断念を記録する。
	RecordEventDropped()
	// SetSubscriberCount は現在の購読者総数を記録する。
	SetSubscriberCount(count int)
}

// nopMetrics は計測なしのデフォルト実装。
type nopMetrics struct{}

func (nopMetrics) RecordEventDropped()      {}
func (nopMetrics) SetSubscriberCount(_ int) {}

// Subscriber は1つの購読を表す。
// Cからイベントを受信する。購読終了時は必ずUnsubscribeを呼ぶこと。
type Subscriber struct {
	ID     string
	WeekID string
	C      <-chan Event

	ch chan Event
}

// Hub は週IDをキーとした配信グループを管理する。
// 全メソッドは複数ゴルーチンから安全に呼び出せる。
type Hub struct {
	bufferSize int
	metrics    Metrics

	mu    sync.RWMutex
	subs  map[string]map[*Subscriber]struct{} // weekID -> subscribers
	total int
}

// NewHub はHubを生成する。
// bufferSizeは購読者ごとのイベントバッファ。mがnilの場合は計測なし。
func NewHub(bufferSize int, m Metrics) *Hub {
	if m == nil {
		m = nopMetrics{}
	}
	return &Hub{
		bufferSize: bufferSize,
		metrics:    m,
		subs:       make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe は週の配信グループに購読者を追加する。
// 追加以前に発行されたイベントは配信されない（バックログなし）。
// 購読者は購読登録の後にスナップショットを取得することで欠落なく同期できる。
func (h *Hub) Subscribe(weekID string) *Subscriber {
	ch := make(chan Event, h.bufferSize)
	sub := &Subscriber{
		ID:     uuid.New().String(),
		WeekID: weekID,
		C:      ch,
		ch:     ch,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.subs[weekID]
	if !ok {
		group = make(map[*Subscriber]struct{})
		h.subs[weekID] = group
	}
	group[sub] = struct{}{}
	h.total++
	h.metrics.SetSubscriberCount(h.total)

	return sub
}

// Unsubscribe は購読を解除し、購読者のチャネルを閉じる。
// 冪等。未登録の購読者に対しては何もしない。
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.subs[sub.WeekID]
	if !ok {
		return
	}
	if _, ok := group[sub]; !ok {
		return
	}

	delete(group, sub)
	if len(group) == 0 {
		delete(h.subs, sub.WeekID)
	}
	h.total--
	h.metrics.SetSubscriberCount(h.total)

	// publishはロック下でのみ送信するため、ここでのcloseと競合しない
	close(sub.ch)
}

// PublishPartUpdate は1パートの状態変化を週の全購読者に配信する。
// 呼び出しはコミット後に行うこと。配信はブロックしない。
func (h *Hub) PublishPartUpdate(weekID string, part *model.Part) {
	h.publish(weekID, Event{
		Type:   EventPartUpdate,
		WeekID: weekID,
		Part:   part,
	})
}

// PublishWeekReset は週リセットを全パートのスナップショット付きで配信する。
func (h *Hub) PublishWeekReset(weekID string, parts []*model.Part) {
	h.publish(weekID, Event{
		Type:   EventWeekReset,
		WeekID: weekID,
		Parts:  parts,
	})
}

// publish はイベントを配信グループ全員にノンブロッキングで送信する。
// バッファが満杯の購読者へのイベントは破棄される（遅い購読者が
// コミット済みトランザクションの後続を詰まらせないため）。
// 破棄された購読者はスナップショット再取得で追いつける。
func (h *Hub) publish(weekID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[weekID] {
		select {
		case sub.ch <- ev:
		default:
			h.metrics.RecordEventDropped()
		}
	}
}

// SubscriberCount は指定週の現在の購読者数を返す。
func (h *Hub) SubscriberCount(weekID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[weekID])
}
