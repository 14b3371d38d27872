package internal

import (
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// roomCodeAlphabet 房間碼字元集：排除易混淆的 0/O/1/I。
// 6 碼、32 字元，單次碰撞機率約 1/32^6，重試迴圈期望次數 ~1。
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// roomCodeLength 房間碼長度
const roomCodeLength = 6

// Registry 房間註冊表：持有房間碼到 Room 的映射。
//
// 並發紀律：
//   - 單一 RWMutex 保護兩個 map；「產生碼、檢查、插入」在寫鎖內原子完成，
//     保證任一時刻存活房間的碼全域唯一（刪除後允許重用）
//   - playerRoom 只服務輪詢傳輸：推送傳輸以連線身份關聯，不經過這裡
type Registry struct {
	rooms      map[string]*Room  // roomCode -> Room
	playerRoom map[string]string // playerID -> roomCode（輪詢玩家索引）
	mu         sync.RWMutex
	logger     *slog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewRegistry 創建註冊表並啟動空房間清掃
func NewRegistry(sweepInterval time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
		logger:     logger,
		stopCh:     make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sweepLoop(sweepInterval)

	return r
}

// Create 創建新房間並讓創建者佔槽位 1。
// 回傳的房間碼保證在插入瞬間於存活房間中唯一。
func (r *Registry) Create(playerID, playerName string, sink Sink) (*Room, *Player) {
	r.mu.Lock()

	var code string
	for {
		code = generateRoomCode()
		if _, taken := r.rooms[code]; !taken {
			break
		}
	}

	room := NewRoom(code, r.logger)
	r.rooms[code] = room
	r.mu.Unlock()

	// 碼已在鎖內佔住，新房間必定是空的，第一人入座不會失敗
	player, _, _ := room.AddPlayer(playerID, playerName, sink, nil)

	r.logger.Info("房間已創建",
		"room_code", code,
		"player_name", playerName)

	return room, player
}

// Get 依房間碼查找（大小寫不敏感）
func (r *Registry) Get(code string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[strings.ToUpper(code)]
	return room, exists
}

// Delete 移除房間並清掉其中玩家的輪詢索引
func (r *Registry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[code]
	if !exists {
		return
	}
	delete(r.rooms, code)

	for playerID, roomCode := range r.playerRoom {
		if roomCode == code {
			delete(r.playerRoom, playerID)
		}
	}

	r.logger.Info("房間已移除", "room_code", room.Code)
}

// BindPlayer 記錄輪詢玩家所在的房間
func (r *Registry) BindPlayer(playerID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playerRoom[playerID] = code
}

// UnbindPlayer 清除輪詢玩家的房間索引
func (r *Registry) UnbindPlayer(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.playerRoom, playerID)
}

// PlayerRoom 查詢輪詢玩家所在的房間碼
func (r *Registry) PlayerRoom(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, exists := r.playerRoom[playerID]
	return code, exists
}

// RoomCount 存活房間數（測試與監控用）
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SweepEmpty 移除所有零人房間。
// 這是安全網：正常路徑上最後一名玩家離開時房間就被顯式刪除，
// 清掃只兜住沒走到刪除的房間（輪詢玩家從未乾淨地回來）。
func (r *Registry) SweepEmpty() {
	r.mu.RLock()
	var toRemove []string
	for code, room := range r.rooms {
		if room.PlayerCount() == 0 {
			toRemove = append(toRemove, code)
		}
	}
	r.mu.RUnlock()

	for _, code := range toRemove {
		r.Delete(code)
		r.logger.Info("清掃空房間", "room_code", code)
	}
}

// sweepLoop 固定間隔執行空房間清掃
func (r *Registry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.SweepEmpty()
		case <-r.stopCh:
			return
		}
	}
}

// Stop 停止清掃迴圈
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// generateRoomCode 從無歧義字元集抽 6 碼。
// 唯一性由 Create 的「檢查再插入」保證，這裡只負責均勻抽樣。
func generateRoomCode() string {
	b := make([]byte, roomCodeLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand 讀取失敗極罕見，退回時間種子避免整個服務掛掉
		seed := time.Now().UnixNano()
		for i := range b {
			b[i] = byte(seed >> (i * 8))
		}
	}
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}

// GeneratePlayerID 產生不可猜測的玩家識別符。
// 只作為輪詢傳輸的關聯令牌（推送傳輸以連線身份關聯）。
// 碰撞防範靠構造本身（128 位隨機），不查表：系統沒有全域玩家註冊表。
func GeneratePlayerID() string {
	return uuid.NewString()
}
