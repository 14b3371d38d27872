package internal

import (
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   同一套房間邏輯如何同時服務「推送」與「輪詢」兩種投遞模型？
//
// 核心挑戰：
//   1. 語義一致：房間邏輯不能知道對面是 WebSocket 還是 HTTP 輪詢
//   2. 順序保證：單一接收者的事件必須按序到達（跨接收者不保證）
//   3. 資源回收：輪詢玩家可能一去不回，佇列不能無限增長
//
// 設計方案：
//   ✅ Sink 介面 - 投遞的最小能力：把一個事件交給一個玩家，fire-and-forget
//   ✅ 每玩家 FIFO 佇列 - 輪詢端的緩衝，讀取時原子地「全取並清空」
//   ✅ 深度上限 + 閒置回收 - 丟最舊事件、太久沒輪詢整個回收

// Sink 把事件投遞給某個玩家。投遞是 fire-and-forget：
// 底層通道不可寫時事件被丟棄，不向房間邏輯回報錯誤。
type Sink interface {
	Send(event Event)
}

// pendingQueue 單一玩家的待取事件佇列
type pendingQueue struct {
	events    []Event
	lastDrain time.Time
}

// QueueStore 輪詢傳輸的佇列倉庫。
// 以 playerId 為鍵，獨立於 Room 存在：玩家被移出房間後，
// 佇列仍保留到顯式清除或閒置回收為止。
type QueueStore struct {
	mu       sync.Mutex
	queues   map[string]*pendingQueue
	maxDepth int
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewQueueStore 創建佇列倉庫。maxDepth 為單一佇列的深度上限。
func NewQueueStore(maxDepth int, logger *slog.Logger) *QueueStore {
	return &QueueStore{
		queues:   make(map[string]*pendingQueue),
		maxDepth: maxDepth,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Sink 回傳投遞到指定玩家佇列的 Sink
func (s *QueueStore) Sink(playerID string) Sink {
	return &queueSink{store: s, playerID: playerID}
}

// queueSink 輪詢變體的投遞實現：追加到玩家的待取佇列
type queueSink struct {
	store    *QueueStore
	playerID string
}

func (q *queueSink) Send(event Event) {
	q.store.push(q.playerID, event)
}

// Register 為玩家預建空佇列，從現在起開始計算閒置時間
func (s *QueueStore) Register(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queues[playerID]; !exists {
		s.queues[playerID] = &pendingQueue{lastDrain: time.Now()}
	}
}

// push 追加事件。超過深度上限時丟棄最舊的事件：
// 新事件（回合變更、對手離開）比舊的瞄準預覽更值得保留。
func (s *QueueStore) push(playerID string, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, exists := s.queues[playerID]
	if !exists {
		queue = &pendingQueue{lastDrain: time.Now()}
		s.queues[playerID] = queue
	}

	if len(queue.events) >= s.maxDepth {
		dropped := queue.events[0]
		queue.events = queue.events[1:]
		s.logger.Warn("佇列已滿，丟棄最舊事件",
			"player_id", playerID,
			"dropped_type", dropped.Kind())
	}

	queue.events = append(queue.events, event)
}

// Drain 原子地取出並清空玩家的所有待取事件。
// 未知玩家回傳空序列（而非 nil，序列化為 JSON 的 []）。
func (s *QueueStore) Drain(playerID string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, exists := s.queues[playerID]
	if !exists {
		return []Event{}
	}

	events := queue.events
	queue.events = nil
	queue.lastDrain = time.Now()

	if events == nil {
		return []Event{}
	}
	return events
}

// Remove 清除玩家的佇列（顯式離開時呼叫）
func (s *QueueStore) Remove(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, playerID)
}

// Len 回傳玩家目前的待取事件數（測試與監控用）
func (s *QueueStore) Len(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if queue, exists := s.queues[playerID]; exists {
		return len(queue.events)
	}
	return 0
}

// StartReaper 啟動閒置回收。超過 idleTimeout 沒有輪詢的玩家，
// 其佇列被整個移除，並透過 onIdle 通知呼叫端把玩家移出房間。
// 這補上了「單一被遺棄的佔位者永遠不會被回收」的缺口：
// 清掃器只移除零人房間，而輪詢傳輸沒有斷線偵測。
func (s *QueueStore) StartReaper(interval, idleTimeout time.Duration, onIdle func(playerID string)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, playerID := range s.reapIdle(idleTimeout) {
					onIdle(playerID)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// reapIdle 移除閒置過久的佇列並回傳其玩家 ID
func (s *QueueStore) reapIdle(idleTimeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []string
	cutoff := time.Now().Add(-idleTimeout)
	for playerID, queue := range s.queues {
		if queue.lastDrain.Before(cutoff) {
			delete(s.queues, playerID)
			reaped = append(reaped, playerID)
			s.logger.Info("回收閒置玩家佇列",
				"player_id", playerID,
				"pending", len(queue.events))
		}
	}
	return reaped
}

// Stop 停止閒置回收
func (s *QueueStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
