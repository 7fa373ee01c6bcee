package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/partban/internal/broadcast"
	"github.com/hitoshi/partban/internal/model"
)

// sseHeartbeatInterval はSSE接続維持のためのコメント送信間隔。
const sseHeartbeatInterval = 30 * time.Second

// WeekServiceInterface は週ハンドラーが必要とするサービスインターフェース。
type WeekServiceInterface interface {
	// Resolve は週キーから週と全パートを冪等に取得する（未知のキーは作成）。
	Resolve(ctx context.Context, key string) (*model.WeekSnapshot, error)
	// Snapshot は週IDから最新のスナップショットを取得する。
	Snapshot(ctx context.Context, weekID string) (*model.WeekSnapshot, error)
}

// Broadcaster は購読の登録・解除のインターフェース。
// broadcast.Hubの部分集合として定義する。
type Broadcaster interface {
	Subscribe(weekID string) *broadcast.Subscriber
	Unsubscribe(sub *broadcast.Subscriber)
}

// WeekHandler は週の取得とライブ購読のHTTPハンドラー。
type WeekHandler struct {
	weeks WeekServiceInterface
	hub   Broadcaster
}

// NewWeekHandler はWeekHandlerを生成する。
func NewWeekHandler(weeks WeekServiceInterface, hub Broadcaster) *WeekHandler {
	return &WeekHandler{
		weeks: weeks,
		hub:   hub,
	}
}

// eventPayload はSSEで配信するイベントのJSON形式。
type eventPayload struct {
	Type   string         `json:"type"`
	WeekID string         `json:"week_id"`
	Part   *partResponse  `json:"part,omitempty"`
	Parts  []partResponse `json:"parts,omitempty"`
}

// ResolveWeek は週とその全パートを返す。未知のキーは作成される。
// GET /api/weeks/{key}
func (h *WeekHandler) ResolveWeek(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	snap, err := h.weeks.Resolve(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWeekResponse(snap))
}

// Events は週の状態変化をServer-Sent Eventsで配信する。
// GET /api/weeks/{key}/events
//
// 照合規約: 購読登録をスナップショット取得より先に行う。
// 登録とスナップショットの間にコミットされた変更はスナップショットに
// 含まれるかイベントとして届くかのどちらかであり、取りこぼしは起きない。
// 最初のイベントとして全パートのスナップショットを送る。
func (h *WeekHandler) Events(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	snap, err := h.weeks.Resolve(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	weekID := snap.Week.ID

	// 1. 先に購読を登録する
	sub := h.hub.Subscribe(weekID)
	defer h.hub.Unsubscribe(sub)

	// 2. 登録後にスナップショットを取得する（happens-after）
	fresh, err := h.weeks.Snapshot(r.Context(), weekID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// 3. 最初のイベントはスナップショット
	if err := writeSSEEvent(w, toSnapshotPayload(weekID, fresh.Parts)); err != nil {
		return
	}
	flusher.Flush()

	slog.Info("subscriber connected",
		slog.String("week_id", weekID),
		slog.String("subscriber_id", sub.ID),
	)

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	// 4. 以降は差分イベントのみを配信する
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, toEventPayload(ev)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent は1件のイベントをSSE形式で書き込む。
func writeSSEEvent(w http.ResponseWriter, payload eventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", payload.Type, data)
	return err
}

// toSnapshotPayload は全パートスナップショットのイベントを生成する。
func toSnapshotPayload(weekID string, parts []*model.Part) eventPayload {
	out := make([]partResponse, 0, len(parts))
	for _, p := range parts {
		out = append(out, toPartResponse(p))
	}
	return eventPayload{
		Type:   string(broadcast.EventSnapshot),
		WeekID: weekID,
		Parts:  out,
	}
}

// toEventPayload はハブのイベントをJSON形式に変換する。
func toEventPayload(ev broadcast.Event) eventPayload {
	payload := eventPayload{
		Type:   string(ev.Type),
		WeekID: ev.WeekID,
	}
	if ev.Part != nil {
		pr := toPartResponse(ev.Part)
		payload.Part = &pr
	}
	if ev.Parts != nil {
		out := make([]partResponse, 0, len(ev.Parts))
		for _, p := range ev.Parts {
			out = append(out, toPartResponse(p))
		}
		payload.Parts = out
	}
	return payload
}
