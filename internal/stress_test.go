package internal_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStress_ConcurrentRoomCreation 測試併發創建房間：房間碼不得碰撞
func TestStress_ConcurrentRoomCreation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	registry := newTestRegistry(t)

	const (
		numGoroutines     = 50
		roomsPerGoroutine = 20
	)

	var (
		wg    sync.WaitGroup
		codes sync.Map
		total int32
	)

	start := time.Now()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			for j := 0; j < roomsPerGoroutine; j++ {
				playerID := internal.GeneratePlayerID()
				room, _ := registry.Create(playerID, fmt.Sprintf("玩家_%d_%d", goroutineID, j), &captureSink{})
				codes.Store(room.Code, true)
				atomic.AddInt32(&total, 1)
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)

	unique := 0
	codes.Range(func(_, _ any) bool {
		unique++
		return true
	})

	t.Logf("併發創建房間結果:")
	t.Logf("  總房間數: %d", total)
	t.Logf("  唯一房間碼: %d", unique)
	t.Logf("  耗時: %v", duration)
	t.Logf("  速率: %.2f rooms/sec", float64(total)/duration.Seconds())

	assert.Equal(t, int32(numGoroutines*roomsPerGoroutine), total)
	assert.Equal(t, int(total), unique)
	assert.Equal(t, int(total), registry.RoomCount())
}

// TestStress_ConcurrentTurnEnd 測試雙方併發搶回合：
// 房間鎖保證每次翻轉原子，雙方收到的 turn_change 數量一致
func TestStress_ConcurrentTurnEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	const (
		numRooms       = 20
		flipsPerPlayer = 50
	)

	var wg sync.WaitGroup

	type session struct {
		room  *internal.Room
		sink1 *captureSink
		sink2 *captureSink
	}

	sessions := make([]session, numRooms)
	for i := range sessions {
		room, s1, s2 := newStartedRoom(t)
		sessions[i] = session{room: room, sink1: s1, sink2: s2}
	}

	start := time.Now()

	for _, s := range sessions {
		for slot := 1; slot <= 2; slot++ {
			wg.Add(1)
			go func(room *internal.Room, slot int) {
				defer wg.Done()
				for j := 0; j < flipsPerPlayer; j++ {
					room.EndTurn(slot, internal.TurnEndAction{})
				}
			}(s.room, slot)
		}
	}

	wg.Wait()
	duration := time.Since(start)

	totalFlips := 0
	for _, s := range sessions {
		count1 := len(s.sink1.Events())
		count2 := len(s.sink2.Events())

		// 每次翻轉廣播給雙方，兩邊數量必然一致
		require.Equal(t, count1, count2)
		require.Equal(t, 2*flipsPerPlayer, count1)

		// 回合值始終合法
		turn := s.room.CurrentTurn()
		require.True(t, turn == 1 || turn == 2, "回合值非法: %d", turn)

		totalFlips += count1
	}

	t.Logf("併發回合翻轉結果:")
	t.Logf("  房間數: %d", numRooms)
	t.Logf("  總翻轉數: %d", totalFlips)
	t.Logf("  耗時: %v", duration)
	t.Logf("  速率: %.2f flips/sec", float64(totalFlips)/duration.Seconds())
}

// TestStress_QueueChurn 測試佇列高頻入隊與輪詢：事件不遺失不重複
func TestStress_QueueChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	store := internal.NewQueueStore(100000, testLogger())
	defer store.Stop()

	const (
		numPlayers      = 20
		eventsPerPlayer = 500
	)

	var (
		wg      sync.WaitGroup
		drained int64
	)

	start := time.Now()

	for i := 0; i < numPlayers; i++ {
		playerID := fmt.Sprintf("player_%d", i)
		store.Register(playerID)
		sink := store.Sink(playerID)

		// 生產者：持續入隊
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPlayer; j++ {
				sink.Send(internal.NewOpponentLeft())
			}
		}()

		// 消費者：模擬輪詢，入隊與取空交錯
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			seen := 0
			for seen < eventsPerPlayer {
				batch := store.Drain(playerID)
				seen += len(batch)
				atomic.AddInt64(&drained, int64(len(batch)))
			}
		}(playerID)
	}

	wg.Wait()
	duration := time.Since(start)

	t.Logf("佇列高頻輪詢結果:")
	t.Logf("  玩家數: %d", numPlayers)
	t.Logf("  總事件數: %d", numPlayers*eventsPerPlayer)
	t.Logf("  取出事件數: %d", drained)
	t.Logf("  耗時: %v", duration)
	t.Logf("  速率: %.2f events/sec", float64(drained)/duration.Seconds())

	assert.Equal(t, int64(numPlayers*eventsPerPlayer), drained)
	for i := 0; i < numPlayers; i++ {
		assert.Zero(t, store.Len(fmt.Sprintf("player_%d", i)))
	}
}
