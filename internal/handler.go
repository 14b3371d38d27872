package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// 系統設計問題：
//   輪詢傳輸：無狀態請求如何映射到同一套房間語義？
//
// 核心挑戰：
//   1. 無連線身份：每個請求用 roomCode + playerId 顯式定位
//   2. 出站緩衝：事件先進每玩家佇列，GET /poll 原子地全取並清空
//   3. 無斷線偵測：只能靠顯式 /leave 與閒置回收，其餘交給清掃
//
// 設計方案：
//   ✅ 扁平路徑、camelCase 欄位 - 線上契約即介面
//   ✅ CORS 全開 + OPTIONS 預檢 - 瀏覽器客戶端直連
//   ✅ 錯誤全部本地可恢復 - 400/404 回 {error}，絕不影響其他會話

// Handler 輪詢傳輸的 HTTP 處理器
type Handler struct {
	registry *Registry
	store    *QueueStore
	logger   *slog.Logger
}

// NewHandler 創建輪詢處理器
func NewHandler(registry *Registry, store *QueueStore, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// Routes 設定路由。整條鏈：CORS → 日誌 → panic 恢復 → mux。
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /create", h.createRoom)
	mux.HandleFunc("POST /join", h.joinRoom)
	mux.HandleFunc("POST /aim", h.aim)
	mux.HandleFunc("POST /shoot", h.shoot)
	mux.HandleFunc("POST /turn_end", h.turnEnd)
	mux.HandleFunc("POST /ball_pocketed", h.ballPocketed)
	mux.HandleFunc("POST /game_over", h.gameOver)
	mux.HandleFunc("POST /rematch", h.rematch)
	mux.HandleFunc("POST /chat", h.chat)
	mux.HandleFunc("POST /leave", h.leave)
	mux.HandleFunc("GET /poll", h.poll)

	mux.HandleFunc("GET /{$}", h.health)
	mux.HandleFunc("GET /health", h.health)

	// 其餘路徑一律 404 {error}
	mux.HandleFunc("/", h.notFound)

	return h.cors(h.loggerMiddleware(h.recoverer(mux)))
}

// 請求結構（欄位名是線上契約的一部分）

type createRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

// actionRequest 所有遊戲中動作共用的定位欄位
type actionRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type aimRequest struct {
	actionRequest
	AimUpdateAction
}

type shootRequest struct {
	actionRequest
	ShootAction
}

type turnEndRequest struct {
	actionRequest
	TurnEndAction
}

type ballPocketedRequest struct {
	actionRequest
	BallPocketedAction
}

type gameOverRequest struct {
	actionRequest
	GameOverAction
}

type chatRequest struct {
	actionRequest
	ChatAction
}

// createRoom POST /create
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}

	playerID := GeneratePlayerID()
	h.store.Register(playerID)

	room, player := h.registry.Create(playerID, req.Name, h.store.Sink(playerID))
	h.registry.BindPlayer(playerID, room.Code)

	h.jsonResponse(w, map[string]any{
		"success":      true,
		"playerId":     playerID,
		"roomCode":     room.Code,
		"playerNumber": player.Slot,
	}, http.StatusOK)
}

// joinRoom POST /join
func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, exists := h.registry.Get(req.RoomCode)
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusBadRequest)
		return
	}

	playerID := GeneratePlayerID()
	h.store.Register(playerID)

	// 加入者的確認走回應本體，不進佇列（ack 傳 nil）；
	// game_start 照常進雙方佇列。
	player, opponentName, err := room.AddPlayer(playerID, req.Name, h.store.Sink(playerID), nil)
	if err != nil {
		h.store.Remove(playerID)
		h.errorResponse(w, "Room is full", http.StatusBadRequest)
		return
	}
	h.registry.BindPlayer(playerID, room.Code)

	h.jsonResponse(w, map[string]any{
		"success":      true,
		"playerId":     playerID,
		"roomCode":     room.Code,
		"playerNumber": player.Slot,
		"opponentName": opponentName,
	}, http.StatusOK)
}

// aim POST /aim
func (h *Handler) aim(w http.ResponseWriter, r *http.Request) {
	var req aimRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req.actionRequest)
	if !ok {
		return
	}

	room.Aim(player.Slot, req.AimUpdateAction)
	h.success(w)
}

// shoot POST /shoot（回合限制在 Room 內統一執行，兩種傳輸同政策）
func (h *Handler) shoot(w http.ResponseWriter, r *http.Request) {
	var req shootRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req.actionRequest)
	if !ok {
		return
	}

	room.Shoot(player.Slot, req.ShootAction)
	h.success(w)
}

// turnEnd POST /turn_end
func (h *Handler) turnEnd(w http.ResponseWriter, r *http.Request) {
	var req turnEndRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req.actionRequest)
	if !ok {
		return
	}

	room.EndTurn(player.Slot, req.TurnEndAction)
	h.success(w)
}

// ballPocketed POST /ball_pocketed
func (h *Handler) ballPocketed(w http.ResponseWriter, r *http.Request) {
	var req ballPocketedRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req.actionRequest)
	if !ok {
		return
	}

	room.PocketBall(player.Slot, req.BallPocketedAction)
	h.success(w)
}

// gameOver POST /game_over
func (h *Handler) gameOver(w http.ResponseWriter, r *http.Request) {
	var req gameOverRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req.actionRequest)
	if !ok {
		return
	}

	room.EndGame(player.Slot, req.GameOverAction)
	h.success(w)
}

// rematch POST /rematch
func (h *Handler) rematch(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req)
	if !ok {
		return
	}

	room.Rematch(player.Slot)
	h.success(w)
}

// chat POST /chat
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req.actionRequest)
	if !ok {
		return
	}

	room.Chat(player.Slot, req.ChatAction)
	h.success(w)
}

// leave POST /leave
func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, player, ok := h.resolve(w, req)
	if !ok {
		return
	}

	h.removeFromRoom(room, player)
	h.store.Remove(player.ID)

	h.success(w)
}

// poll GET /poll?playerId=ID — 原子地取空該玩家的佇列
func (h *Handler) poll(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		h.errorResponse(w, "Missing playerId", http.StatusBadRequest)
		return
	}

	h.jsonResponse(w, map[string]any{
		"messages": h.store.Drain(playerID),
	}, http.StatusOK)
}

// health GET / 與 GET /health
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// notFound 未知路徑
func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, "Not found", http.StatusNotFound)
}

// ReapIdlePlayer 閒置回收的回呼：佇列已被移除，
// 這裡把玩家移出房間（通知對手），補上輪詢傳輸沒有斷線偵測的缺口。
func (h *Handler) ReapIdlePlayer(playerID string) {
	code, exists := h.registry.PlayerRoom(playerID)
	if !exists {
		return
	}
	room, exists := h.registry.Get(code)
	if !exists {
		h.registry.UnbindPlayer(playerID)
		return
	}
	player, exists := room.FindPlayer(playerID)
	if !exists {
		h.registry.UnbindPlayer(playerID)
		return
	}

	h.logger.Info("移除閒置的輪詢玩家",
		"player_id", playerID,
		"room_code", code)
	h.removeFromRoom(room, player)
}

// removeFromRoom 共用的離開路徑：移出房間、空房間刪除、清索引
func (h *Handler) removeFromRoom(room *Room, player *Player) {
	if empty := room.RemovePlayer(player.Slot); empty {
		h.registry.Delete(room.Code)
	}
	h.registry.UnbindPlayer(player.ID)
}

// resolve 依 roomCode + playerId 定位房間與玩家，失敗時寫好錯誤回應
func (h *Handler) resolve(w http.ResponseWriter, req actionRequest) (*Room, *Player, bool) {
	room, exists := h.registry.Get(req.RoomCode)
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusBadRequest)
		return nil, nil, false
	}
	player, exists := room.FindPlayer(req.PlayerID)
	if !exists {
		h.errorResponse(w, "Room not found", http.StatusBadRequest)
		return nil, nil, false
	}
	return room, player, true
}

// decode 解析請求本體，失敗時回 400 {error}
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.errorResponse(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// success 標準成功回應
func (h *Handler) success(w http.ResponseWriter) {
	h.jsonResponse(w, map[string]any{"success": true}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{"error": message}, status)
}

// cors 跨域全開：任何來源可直連，OPTIONS 預檢直接放行
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	})
}

// recoverer panic 恢復中間件：任何請求的失敗都只影響它自己
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
