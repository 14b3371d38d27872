package internal

import "encoding/json"

// 系統設計問題：
//   伺服器推給客戶端的事件如何建模，才能在兩種傳輸層上保持相同語義？
//
// 核心挑戰：
//   1. 線上格式是契約：扁平 JSON `{type, ...fields}`，欄位名固定（camelCase）
//   2. 封閉集合：事件種類有限且已知，不應該出現「漏接」的事件
//   3. 中繼透明：球的位置、分數等遊戲資料伺服器不解讀，原樣轉發
//
// 設計方案：
//   ✅ 封閉標籤聯合（tagged union）- 每種事件一個 struct，建構函數設定 type
//   ✅ json.RawMessage - 遊戲資料原封不動轉發（dumb relay）
//   ✅ Event 介面只有一個未導出方法 - 集合在套件外不可擴展

// EventType 事件類型標籤
type EventType string

const (
	EventRoomCreated    EventType = "room_created"
	EventRoomJoined     EventType = "room_joined"
	EventOpponentJoined EventType = "opponent_joined"
	EventGameStart      EventType = "game_start"
	EventOpponentAim    EventType = "opponent_aim"
	EventOpponentShot   EventType = "opponent_shot"
	EventTurnChange     EventType = "turn_change"
	EventBallPocketed   EventType = "ball_pocketed"
	EventGameOver       EventType = "game_over"
	EventRematchRequest EventType = "rematch_request"
	EventRematchStart   EventType = "rematch_start"
	EventOpponentLeft   EventType = "opponent_left"
	EventChat           EventType = "chat"
	EventError          EventType = "error"
)

// Event 伺服器推給客戶端的事件。
// 集合是封閉的：只有本檔案內的型別實現此介面。
type Event interface {
	Kind() EventType
}

// RoomCreatedEvent 房間創建成功，發給創建者
type RoomCreatedEvent struct {
	Type         EventType `json:"type"`
	RoomCode     string    `json:"roomCode"`
	PlayerNumber int       `json:"playerNumber"`
}

// RoomJoinedEvent 加入成功，發給加入者
type RoomJoinedEvent struct {
	Type         EventType `json:"type"`
	RoomCode     string    `json:"roomCode"`
	PlayerNumber int       `json:"playerNumber"`
	OpponentName string    `json:"opponentName"`
}

// OpponentJoinedEvent 對手加入，發給先到的玩家
type OpponentJoinedEvent struct {
	Type         EventType `json:"type"`
	OpponentName string    `json:"opponentName"`
}

// GameStartEvent 兩人到齊，遊戲開始，發給雙方
type GameStartEvent struct {
	Type        EventType `json:"type"`
	CurrentTurn int       `json:"currentTurn"`
	Player1Name string    `json:"player1Name"`
	Player2Name string    `json:"player2Name"`
}

// OpponentAimEvent 對手瞄準預覽（僅轉發，不檢查回合）
type OpponentAimEvent struct {
	Type      EventType       `json:"type"`
	Aiming    bool            `json:"aiming"`
	Direction json.RawMessage `json:"direction,omitempty"`
	Power     float64         `json:"power"`
}

// OpponentShotEvent 對手擊球
type OpponentShotEvent struct {
	Type      EventType       `json:"type"`
	Direction json.RawMessage `json:"direction,omitempty"`
	Power     float64         `json:"power"`
}

// TurnChangeEvent 回合交換，附帶客戶端回報的桌面狀態
type TurnChangeEvent struct {
	Type          EventType       `json:"type"`
	CurrentTurn   int             `json:"currentTurn"`
	BallPositions json.RawMessage `json:"ballPositions,omitempty"`
	Scores        json.RawMessage `json:"scores,omitempty"`
	Pocketed      json.RawMessage `json:"pocketed,omitempty"`
}

// BallPocketedEvent 對手進球
type BallPocketedEvent struct {
	Type       EventType `json:"type"`
	BallNumber int       `json:"ballNumber"`
}

// GameOverEvent 遊戲結束（伺服器不驗證勝負，原樣廣播）
type GameOverEvent struct {
	Type   EventType       `json:"type"`
	Winner json.RawMessage `json:"winner,omitempty"`
}

// RematchRequestEvent 對手請求再來一局
type RematchRequestEvent struct {
	Type EventType `json:"type"`
}

// RematchStartEvent 雙方都同意，重新開局
type RematchStartEvent struct {
	Type        EventType `json:"type"`
	CurrentTurn int       `json:"currentTurn"`
}

// OpponentLeftEvent 對手離開
type OpponentLeftEvent struct {
	Type EventType `json:"type"`
}

// ChatEvent 聊天訊息
type ChatEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	From    int       `json:"from"`
}

// ErrorEvent 可恢復的錯誤，只發給肇事的請求者
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func (e RoomCreatedEvent) Kind() EventType    { return EventRoomCreated }
func (e RoomJoinedEvent) Kind() EventType     { return EventRoomJoined }
func (e OpponentJoinedEvent) Kind() EventType { return EventOpponentJoined }
func (e GameStartEvent) Kind() EventType      { return EventGameStart }
func (e OpponentAimEvent) Kind() EventType    { return EventOpponentAim }
func (e OpponentShotEvent) Kind() EventType   { return EventOpponentShot }
func (e TurnChangeEvent) Kind() EventType     { return EventTurnChange }
func (e BallPocketedEvent) Kind() EventType   { return EventBallPocketed }
func (e GameOverEvent) Kind() EventType       { return EventGameOver }
func (e RematchRequestEvent) Kind() EventType { return EventRematchRequest }
func (e RematchStartEvent) Kind() EventType   { return EventRematchStart }
func (e OpponentLeftEvent) Kind() EventType   { return EventOpponentLeft }
func (e ChatEvent) Kind() EventType           { return EventChat }
func (e ErrorEvent) Kind() EventType          { return EventError }

// 建構函數負責填入 type 標籤，呼叫端不需要（也不應該）自己設定。

func NewRoomCreated(code string, slot int) RoomCreatedEvent {
	return RoomCreatedEvent{Type: EventRoomCreated, RoomCode: code, PlayerNumber: slot}
}

func NewRoomJoined(code string, slot int, opponentName string) RoomJoinedEvent {
	return RoomJoinedEvent{Type: EventRoomJoined, RoomCode: code, PlayerNumber: slot, OpponentName: opponentName}
}

func NewOpponentJoined(name string) OpponentJoinedEvent {
	return OpponentJoinedEvent{Type: EventOpponentJoined, OpponentName: name}
}

func NewGameStart(turn int, p1, p2 string) GameStartEvent {
	return GameStartEvent{Type: EventGameStart, CurrentTurn: turn, Player1Name: p1, Player2Name: p2}
}

func NewOpponentAim(aiming bool, direction json.RawMessage, power float64) OpponentAimEvent {
	return OpponentAimEvent{Type: EventOpponentAim, Aiming: aiming, Direction: direction, Power: power}
}

func NewOpponentShot(direction json.RawMessage, power float64) OpponentShotEvent {
	return OpponentShotEvent{Type: EventOpponentShot, Direction: direction, Power: power}
}

func NewTurnChange(turn int, balls, scores, pocketed json.RawMessage) TurnChangeEvent {
	return TurnChangeEvent{Type: EventTurnChange, CurrentTurn: turn, BallPositions: balls, Scores: scores, Pocketed: pocketed}
}

func NewBallPocketed(ballNumber int) BallPocketedEvent {
	return BallPocketedEvent{Type: EventBallPocketed, BallNumber: ballNumber}
}

func NewGameOver(winner json.RawMessage) GameOverEvent {
	return GameOverEvent{Type: EventGameOver, Winner: winner}
}

func NewRematchRequest() RematchRequestEvent {
	return RematchRequestEvent{Type: EventRematchRequest}
}

func NewRematchStart(turn int) RematchStartEvent {
	return RematchStartEvent{Type: EventRematchStart, CurrentTurn: turn}
}

func NewOpponentLeft() OpponentLeftEvent {
	return OpponentLeftEvent{Type: EventOpponentLeft}
}

func NewChat(message string, from int) ChatEvent {
	return ChatEvent{Type: EventChat, Message: message, From: from}
}

func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}
