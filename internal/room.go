package internal

import (
	"fmt"
	"log/slog"
	"sync"
)

// 系統設計問題：
//   兩名玩家的即時對戰會話如何追蹤回合歸屬並轉發事件，
//   且在推送與輪詢兩種傳輸層上維持完全相同的可觀察語義？
//
// 核心挑戰：
//   1. 狀態管理：等待 → 對戰中（回合交替）→ 再戰循環
//   2. 並發控制：兩端同時加入、同時回報回合結束
//   3. 啞中繼：伺服器不驗證球位與分數，信任客戶端回報
//   4. 扇出規則：每個動作有明確的接收者集合（雙方 / 僅對手 / 僅請求者）
//
// 設計方案：
//   ✅ 每房間互斥鎖 - 「檢查容量再加入」與「回合翻轉」原子化
//   ✅ 槽位即回合身份 - slot 1/2 同時是座位號與回合指示
//   ✅ Sink 注入 - 房間邏輯不知道傳輸層的存在
//   ✅ 先改狀態再投遞 - 狀態變更順序確定，跨玩家投遞順序不保證

// MaxPlayers 每房間玩家數上限
const MaxPlayers = 2

// Player 房間內的玩家。由其所屬的 Room 獨佔持有，離開時移除。
type Player struct {
	ID   string
	Name string
	Slot int // 1 或 2，同時是回合身份

	sink Sink
}

// Room 遊戲房間（會話）
//
// 不變量：
//   - players 長度 ∈ {0,1,2}，每個槽位至多一名玩家
//   - started 在第二名玩家到來時設為 true，之後永不重置（斷線也不重置）
//   - currentTurn 僅在 started 時有意義
//   - rematchVotes ⊆ 目前玩家的槽位，雙方都投過票或任一玩家離開時清空
type Room struct {
	Code string

	mu           sync.Mutex
	players      []*Player
	currentTurn  int
	started      bool
	rematchVotes map[int]bool
	logger       *slog.Logger
}

// NewRoom 創建空房間
func NewRoom(code string, logger *slog.Logger) *Room {
	return &Room{
		Code:         code,
		rematchVotes: make(map[int]bool),
		logger:       logger,
	}
}

// AddPlayer 加入玩家。
//
// 第一名玩家佔槽位 1；第二名玩家補上空著的槽位，房間到齊時
// started=true、currentTurn=1，並在鎖內按序投遞：
//   - room_joined 給加入者（經 ack；推送端即連線本身，輪詢端以回應本體代替，傳 nil）
//   - opponent_joined 給槽位 1
//   - game_start 給雙方
//
// 滿房回傳錯誤且不改動玩家列表，由傳輸層轉成 error 事件 / 回應。
func (r *Room) AddPlayer(playerID, playerName string, sink Sink, ack Sink) (*Player, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= MaxPlayers {
		return nil, "", fmt.Errorf("Room is full")
	}

	// 佔用空著的槽位：對手離開後補位的玩家可能拿到槽位 1
	slot := 1
	if len(r.players) == 1 && r.players[0].Slot == 1 {
		slot = 2
	}

	player := &Player{
		ID:   playerID,
		Name: playerName,
		Slot: slot,
		sink: sink,
	}
	r.players = append(r.players, player)

	opponentName := ""
	if len(r.players) == MaxPlayers {
		opponent := r.players[0]
		opponentName = opponent.Name

		// 兩人到齊：開局（或補位重開），回合歸槽位 1
		r.started = true
		r.currentTurn = 1

		if ack != nil {
			ack.Send(NewRoomJoined(r.Code, slot, opponentName))
		}
		opponent.sink.Send(NewOpponentJoined(playerName))

		p1Name, p2Name := player.Name, opponent.Name
		if opponent.Slot == 1 {
			p1Name, p2Name = opponent.Name, player.Name
		}
		start := NewGameStart(r.currentTurn, p1Name, p2Name)
		for _, p := range r.players {
			p.sink.Send(start)
		}

		r.logger.Info("遊戲開始",
			"room_code", r.Code,
			"player1", p1Name,
			"player2", p2Name)
	}

	return player, opponentName, nil
}

// RemovePlayer 移除指定槽位的玩家。
// 清空再戰投票，通知留下的玩家 opponent_left（若有人留下）。
// 回傳房間是否因此變空（呼叫端負責從註冊表刪除空房間）。
func (r *Room) RemovePlayer(slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for i, p := range r.players {
		if p.Slot == slot {
			r.players = append(r.players[:i], r.players[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return len(r.players) == 0
	}

	r.rematchVotes = make(map[int]bool)

	for _, p := range r.players {
		p.sink.Send(NewOpponentLeft())
	}

	r.logger.Info("玩家離開房間",
		"room_code", r.Code,
		"slot", slot,
		"remaining", len(r.players))

	return len(r.players) == 0
}

// Aim 轉發瞄準預覽給對手。
// 不檢查回合：預覽是盡力而為的即時回饋，搶拍的預覽無害。
func (r *Room) Aim(from int, action AimUpdateAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sendToOthers(from, NewOpponentAim(action.Aiming, action.Direction, action.Power))
}

// Shoot 轉發擊球給對手。
// 回合限制只在這裡：shoot 是唯一有遊戲狀態後果的動作。
// 不是自己的回合時靜默忽略（兩種傳輸層同一政策）。
func (r *Room) Shoot(from int, action ShootAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.currentTurn != from {
		r.logger.Debug("忽略非回合擊球",
			"room_code", r.Code,
			"slot", from,
			"current_turn", r.currentTurn)
		return
	}

	r.sendToOthers(from, NewOpponentShot(action.Direction, action.Power))
}

// EndTurn 翻轉回合並向雙方廣播桌面狀態。
// 無條件翻轉、先到先贏：伺服器信任最先回報 turn_end 的客戶端。
func (r *Room) EndTurn(from int, action TurnEndAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	if r.currentTurn == 1 {
		r.currentTurn = 2
	} else {
		r.currentTurn = 1
	}

	change := NewTurnChange(r.currentTurn, action.BallPositions, action.Scores, action.Pocketed)
	for _, p := range r.players {
		p.sink.Send(change)
	}
}

// PocketBall 轉發進球通知給對手
func (r *Room) PocketBall(from int, action BallPocketedAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sendToOthers(from, NewBallPocketed(action.BallNumber))
}

// EndGame 向雙方廣播遊戲結束。
// 房間不進入終態也不自動刪除：留在原地接受再戰投票，直到清空。
func (r *Room) EndGame(from int, action GameOverAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	over := NewGameOver(action.Winner)
	for _, p := range r.players {
		p.sink.Send(over)
	}
}

// Rematch 記錄再戰投票。
// 雙方都投過票時清空投票、回合重置為 1，向雙方廣播 rematch_start；
// 否則僅向對手發 rematch_request。
func (r *Room) Rematch(from int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rematchVotes[from] = true

	if len(r.rematchVotes) >= MaxPlayers && len(r.players) == MaxPlayers {
		r.rematchVotes = make(map[int]bool)
		r.currentTurn = 1

		start := NewRematchStart(r.currentTurn)
		for _, p := range r.players {
			p.sink.Send(start)
		}

		r.logger.Info("再戰開始", "room_code", r.Code)
		return
	}

	r.sendToOthers(from, NewRematchRequest())
}

// Chat 轉發聊天訊息給對手（不回音給發送者）
func (r *Room) Chat(from int, action ChatAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sendToOthers(from, NewChat(action.Message, from))
}

// sendToOthers 投遞給指定槽位以外的所有玩家。呼叫端須持有鎖。
func (r *Room) sendToOthers(excludeSlot int, event Event) {
	for _, p := range r.players {
		if p.Slot != excludeSlot {
			p.sink.Send(event)
		}
	}
}

// FindPlayer 依玩家 ID 查找
func (r *Room) FindPlayer(playerID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if p.ID == playerID {
			return p, true
		}
	}
	return nil, false
}

// PlayerCount 目前玩家數
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// CurrentTurn 目前回合的槽位（僅在 Started 時有意義）
func (r *Room) CurrentTurn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTurn
}

// Started 兩人是否曾到齊（斷線不重置）
func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// RematchVoteCount 目前的再戰票數（測試用）
func (r *Room) RematchVoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rematchVotes)
}
