package internal_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsEnv 推送傳輸的測試環境
type wsEnv struct {
	server   *httptest.Server
	registry *internal.Registry
	hub      *internal.Hub
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()

	registry := internal.NewRegistry(time.Hour, testLogger())
	hub := internal.NewHub(registry, testLogger())

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
		registry.Stop()
	})

	return &wsEnv{server: server, registry: registry, hub: hub}
}

// dial 建立一條 WebSocket 連線
func (e *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent 讀取下一個事件（2 秒超時視為測試失敗）
func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

// createRoom 發 create_room 並回傳房間碼
func createRoomWS(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "create_room", "name": name}))
	event := readEvent(t, conn)
	require.Equal(t, "room_created", event["type"])
	return event["roomCode"].(string)
}

// startedPair 建立一個已開局的房間，回傳 (創建者連線, 加入者連線)
func startedPair(t *testing.T, env *wsEnv) (*websocket.Conn, *websocket.Conn, string) {
	t.Helper()

	creator := env.dial(t)
	joiner := env.dial(t)
	code := createRoomWS(t, creator, "小明")

	require.NoError(t, joiner.WriteJSON(map[string]any{
		"type": "join_room", "roomCode": code, "name": "小華",
	}))

	require.Equal(t, "room_joined", readEvent(t, joiner)["type"])
	require.Equal(t, "game_start", readEvent(t, joiner)["type"])
	require.Equal(t, "opponent_joined", readEvent(t, creator)["type"])
	require.Equal(t, "game_start", readEvent(t, creator)["type"])

	return creator, joiner, code
}

// TestHub_CreateRoom 測試連線後創建房間
func TestHub_CreateRoom(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "create_room", "name": "小明"}))

	event := readEvent(t, conn)
	assert.Equal(t, "room_created", event["type"])
	assert.Len(t, event["roomCode"], 6)
	assert.EqualValues(t, 1, event["playerNumber"])
	assert.Equal(t, 1, env.registry.RoomCount())
}

// TestHub_JoinFlow 測試加入流程的事件順序：確認先於開局
func TestHub_JoinFlow(t *testing.T) {
	env := newWSEnv(t)

	creator := env.dial(t)
	joiner := env.dial(t)
	code := createRoomWS(t, creator, "小明")

	require.NoError(t, joiner.WriteJSON(map[string]any{
		"type": "join_room", "roomCode": code, "name": "小華",
	}))

	// 加入者：room_joined 先到，game_start 後到
	joined := readEvent(t, joiner)
	require.Equal(t, "room_joined", joined["type"])
	assert.Equal(t, code, joined["roomCode"])
	assert.EqualValues(t, 2, joined["playerNumber"])
	assert.Equal(t, "小明", joined["opponentName"])

	start := readEvent(t, joiner)
	require.Equal(t, "game_start", start["type"])
	assert.EqualValues(t, 1, start["currentTurn"])
	assert.Equal(t, "小明", start["player1Name"])
	assert.Equal(t, "小華", start["player2Name"])

	// 先到者：對手加入 → 遊戲開始
	opponent := readEvent(t, creator)
	require.Equal(t, "opponent_joined", opponent["type"])
	assert.Equal(t, "小華", opponent["opponentName"])
	require.Equal(t, "game_start", readEvent(t, creator)["type"])
}

// TestHub_JoinErrors 測試加入失敗：錯誤只回給肇事者，連線保持開啟
func TestHub_JoinErrors(t *testing.T) {
	env := newWSEnv(t)

	t.Run("room not found", func(t *testing.T) {
		conn := env.dial(t)
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "join_room", "roomCode": "ZZZZZZ", "name": "小華",
		}))

		event := readEvent(t, conn)
		assert.Equal(t, "error", event["type"])
		assert.Equal(t, "Room not found", event["message"])

		// 連線仍可用：同一條連線隨後創建房間成功
		createRoomWS(t, conn, "小華")
	})

	t.Run("room is full", func(t *testing.T) {
		_, _, code := startedPair(t, env)

		third := env.dial(t)
		require.NoError(t, third.WriteJSON(map[string]any{
			"type": "join_room", "roomCode": code, "name": "小強",
		}))

		event := readEvent(t, third)
		assert.Equal(t, "error", event["type"])
		assert.Equal(t, "Room is full", event["message"])
	})
}

// TestHub_ShootGating 測試擊球的回合限制。
// 「沒收到」用同連線的 FIFO 順序驗證：違規擊球之後發一則聊天，
// 對手收到的下一個事件必須直接是聊天。
func TestHub_ShootGating(t *testing.T) {
	env := newWSEnv(t)
	creator, joiner, _ := startedPair(t, env)

	// 開局輪到玩家 1，玩家 2 的擊球被丟棄
	require.NoError(t, joiner.WriteJSON(map[string]any{
		"type": "shoot", "direction": map[string]float64{"x": 1, "y": 0}, "power": 0.8,
	}))
	require.NoError(t, joiner.WriteJSON(map[string]any{
		"type": "chat", "message": "換我了嗎？",
	}))

	event := readEvent(t, creator)
	require.Equal(t, "chat", event["type"])
	assert.Equal(t, "換我了嗎？", event["message"])

	// 玩家 1 在自己的回合擊球，對手收到
	require.NoError(t, creator.WriteJSON(map[string]any{
		"type": "shoot", "direction": map[string]float64{"x": 0, "y": 1}, "power": 0.5,
	}))

	shot := readEvent(t, joiner)
	require.Equal(t, "opponent_shot", shot["type"])
	assert.EqualValues(t, 0.5, shot["power"])
}

// TestHub_TurnEndBroadcast 測試回合結束廣播給雙方
func TestHub_TurnEndBroadcast(t *testing.T) {
	env := newWSEnv(t)
	creator, joiner, _ := startedPair(t, env)

	require.NoError(t, creator.WriteJSON(map[string]any{
		"type":          "turn_end",
		"ballPositions": []map[string]any{{"number": 8, "x": 0.5, "y": 0.3}},
		"scores":        map[string]int{"1": 1, "2": 0},
	}))

	for _, conn := range []*websocket.Conn{creator, joiner} {
		event := readEvent(t, conn)
		require.Equal(t, "turn_change", event["type"])
		assert.EqualValues(t, 2, event["currentTurn"])
		assert.NotNil(t, event["ballPositions"])
	}
}

// TestHub_AimRelay 測試瞄準轉發：不受回合限制
func TestHub_AimRelay(t *testing.T) {
	env := newWSEnv(t)
	creator, joiner, _ := startedPair(t, env)

	// 玩家 2 不在自己的回合也能瞄準
	require.NoError(t, joiner.WriteJSON(map[string]any{
		"type": "aim_update", "aiming": true,
		"direction": map[string]float64{"x": 0.6, "y": -0.8}, "power": 0.3,
	}))

	event := readEvent(t, creator)
	require.Equal(t, "opponent_aim", event["type"])
	assert.Equal(t, true, event["aiming"])
	assert.EqualValues(t, 0.3, event["power"])
}

// TestHub_Disconnect 測試斷線即離開：對手收到通知，連線計數下降
func TestHub_Disconnect(t *testing.T) {
	env := newWSEnv(t)
	creator, joiner, _ := startedPair(t, env)

	require.NoError(t, joiner.Close())

	event := readEvent(t, creator)
	assert.Equal(t, "opponent_left", event["type"])

	require.Eventually(t, func() bool {
		return env.hub.ConnCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 房間還在（剩一人），最後一人斷線後房間刪除
	assert.Equal(t, 1, env.registry.RoomCount())
	require.NoError(t, creator.Close())
	require.Eventually(t, func() bool {
		return env.registry.RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestHub_MalformedIgnored 測試亂格式與未知動作：丟棄但連線保持開啟
func TestHub_MalformedIgnored(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("這不是 JSON")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "teleport_ball"}))

	// 連線仍可用
	createRoomWS(t, conn, "小明")
}

// TestHub_ActionsBeforeRoom 測試入房前的遊戲動作：忽略，不崩潰
func TestHub_ActionsBeforeRoom(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "shoot", "power": 0.5}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "rematch"}))

	createRoomWS(t, conn, "小明")
}
