package internal

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   推送傳輸：一條長連線承載一名玩家的全部動作與事件。
//
// 核心挑戰：
//   1. 連線即身份：連上時不屬於任何房間，create/join 之後連線就是投遞目標
//   2. 心跳機制：檢測死連接（54s Ping / 60s 超時，避開代理的 60s 閾值）
//   3. 斷線即離開：讀取迴圈結束立刻觸發 leave 語義，無條件
//   4. 投遞不阻塞：緩衝 channel + 滿了就丟，慢客戶端不拖累房間
//
// 設計方案：
//   ✅ Hub 集中管理連線，Conn 實現 Sink - 房間邏輯經同一介面投遞
//   ✅ readPump / writePump 各一條 goroutine - gorilla/websocket 標準形
//   ✅ 亂格式靜默丟棄、未知動作顯式忽略 - 連線保持開啟

const (
	// writeWait 單次寫入的期限
	writeWait = 10 * time.Second

	// pongWait 未收到任何訊息（含 Pong）的最長容忍時間
	pongWait = 60 * time.Second

	// pingPeriod Ping 間隔，必須小於 pongWait（留網路往返餘量）
	pingPeriod = 54 * time.Second
)

// Hub 推送傳輸的連線中心
type Hub struct {
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]bool
}

// Conn 一條玩家連線。實現 Sink：連線身份就是投遞目標。
type Conn struct {
	hub *Hub
	ws  *websocket.Conn

	send      chan Event
	closeOnce sync.Once

	// room/player 只在 readPump goroutine 內讀寫；
	// unregister 在 readPump 的 defer 中執行，同一條 goroutine，無需加鎖。
	room   *Room
	player *Player
}

// NewHub 創建推送傳輸 Hub
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 跨域全開，與輪詢端的 CORS 政策一致
				return true
			},
		},
		conns: make(map[*Conn]bool),
	}
}

// ServeWS 升級 HTTP 連線為 WebSocket 並啟動讀寫迴圈
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := &Conn{
		hub:  h,
		ws:   ws,
		send: make(chan Event, 64),
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	h.logger.Info("WebSocket 連線建立", "remote", ws.RemoteAddr().String())

	go conn.writePump()
	go conn.readPump()
}

// Send 投遞事件給這條連線。fire-and-forget：
// 緩衝滿時丟棄，不向房間邏輯回報，也不重試。
func (c *Conn) Send(event Event) {
	select {
	case c.send <- event:
	default:
		c.hub.logger.Warn("連線緩衝區滿，丟棄事件",
			"remote", c.ws.RemoteAddr().String(),
			"event_type", event.Kind())
	}
}

// readPump 讀取客戶端動作。迴圈結束（任何原因的斷線）
// 即觸發 leave 語義：移出房間、通知對手、空房間刪除。
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(64 * 1024)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"remote", c.ws.RemoteAddr().String())
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleMessage(data)
	}
}

// writePump 把事件序列化後寫出，並定期發送 Ping
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解碼一條訊息並套用到核心。
// 亂格式靜默丟棄（連線保持開啟）；未知動作顯式忽略。
func (c *Conn) handleMessage(data []byte) {
	action, err := ParseAction(data)
	if err != nil {
		if errors.Is(err, ErrUnknownAction) {
			c.hub.logger.Debug("忽略未知動作", "error", err)
		} else {
			c.hub.logger.Debug("丟棄亂格式訊息", "error", err)
		}
		return
	}

	switch a := action.(type) {
	case *CreateRoomAction:
		if c.room != nil {
			c.hub.logger.Debug("已在房間內，忽略 create_room")
			return
		}
		room, player := c.hub.registry.Create(GeneratePlayerID(), a.Name, c)
		c.room, c.player = room, player
		c.Send(NewRoomCreated(room.Code, player.Slot))

	case *JoinRoomAction:
		if c.room != nil {
			c.hub.logger.Debug("已在房間內，忽略 join_room")
			return
		}
		room, exists := c.hub.registry.Get(a.RoomCode)
		if !exists {
			c.Send(NewError("Room not found"))
			return
		}
		// 連線既是 sink 也是 ack：room_joined 先於 game_start 入隊
		player, _, err := room.AddPlayer(GeneratePlayerID(), a.Name, c, c)
		if err != nil {
			c.Send(NewError("Room is full"))
			return
		}
		c.room, c.player = room, player

	case *AimUpdateAction:
		if c.room != nil {
			c.room.Aim(c.player.Slot, *a)
		}
	case *ShootAction:
		if c.room != nil {
			c.room.Shoot(c.player.Slot, *a)
		}
	case *TurnEndAction:
		if c.room != nil {
			c.room.EndTurn(c.player.Slot, *a)
		}
	case *BallPocketedAction:
		if c.room != nil {
			c.room.PocketBall(c.player.Slot, *a)
		}
	case *GameOverAction:
		if c.room != nil {
			c.room.EndGame(c.player.Slot, *a)
		}
	case *RematchAction:
		if c.room != nil {
			c.room.Rematch(c.player.Slot)
		}
	case *ChatAction:
		if c.room != nil {
			c.room.Chat(c.player.Slot, *a)
		}
	}
}

// unregister 斷線收尾。順序很重要：
// 先把玩家移出房間（房間鎖保證沒有併發扇出還握著這個 sink），
// 再關閉 send channel 讓 writePump 退出。
func (h *Hub) unregister(c *Conn) {
	if c.room != nil {
		if empty := c.room.RemovePlayer(c.player.Slot); empty {
			h.registry.Delete(c.room.Code)
		}
		c.room, c.player = nil, nil
	}

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.send)
	})

	h.logger.Info("WebSocket 連線結束", "remote", c.ws.RemoteAddr().String())
}

// Stop 關閉所有連線。只關底層 socket，
// 讓各自的 readPump 走正常的 unregister 收尾路徑。
func (h *Hub) Stop() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.ws.Close()
	}

	h.logger.Info("WebSocket Hub 已停止")
}

// ConnCount 目前連線數（測試與監控用）
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
