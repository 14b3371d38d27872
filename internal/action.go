package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 客戶端發給伺服器的動作，同樣是封閉標籤聯合。
// 解析分兩步：先讀 type 標籤，再按標籤解碼對應的 struct。
// 未知標籤明確拒絕（ErrUnknownAction），而不是 switch 默默漏接。

var (
	// ErrMalformedMessage 訊息不是合法 JSON 或缺少 type 標籤
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownAction type 標籤不在已知動作集合內
	ErrUnknownAction = errors.New("unknown action")
)

// ActionType 動作類型標籤
type ActionType string

const (
	ActionCreateRoom   ActionType = "create_room"
	ActionJoinRoom     ActionType = "join_room"
	ActionAimUpdate    ActionType = "aim_update"
	ActionShoot        ActionType = "shoot"
	ActionTurnEnd      ActionType = "turn_end"
	ActionBallPocketed ActionType = "ball_pocketed"
	ActionGameOver     ActionType = "game_over"
	ActionRematch      ActionType = "rematch"
	ActionChat         ActionType = "chat"
)

// Action 客戶端動作
type Action interface {
	Kind() ActionType
}

// CreateRoomAction 創建房間
type CreateRoomAction struct {
	Name string `json:"name"`
}

// JoinRoomAction 加入房間
type JoinRoomAction struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

// AimUpdateAction 瞄準預覽（純轉發）
type AimUpdateAction struct {
	Aiming    bool            `json:"aiming"`
	Direction json.RawMessage `json:"direction"`
	Power     float64         `json:"power"`
}

// ShootAction 擊球（受回合限制）
type ShootAction struct {
	Direction json.RawMessage `json:"direction"`
	Power     float64         `json:"power"`
}

// TurnEndAction 回合結束，附帶客戶端回報的桌面狀態
type TurnEndAction struct {
	BallPositions json.RawMessage `json:"ballPositions"`
	Scores        json.RawMessage `json:"scores"`
	Pocketed      json.RawMessage `json:"pocketed"`
}

// BallPocketedAction 進球通知
type BallPocketedAction struct {
	BallNumber int `json:"ballNumber"`
}

// GameOverAction 遊戲結束通知（伺服器信任客戶端回報的勝負）
type GameOverAction struct {
	Winner json.RawMessage `json:"winner"`
}

// RematchAction 請求再來一局
type RematchAction struct{}

// ChatAction 聊天訊息
type ChatAction struct {
	Message string `json:"message"`
}

func (a CreateRoomAction) Kind() ActionType   { return ActionCreateRoom }
func (a JoinRoomAction) Kind() ActionType     { return ActionJoinRoom }
func (a AimUpdateAction) Kind() ActionType    { return ActionAimUpdate }
func (a ShootAction) Kind() ActionType        { return ActionShoot }
func (a TurnEndAction) Kind() ActionType      { return ActionTurnEnd }
func (a BallPocketedAction) Kind() ActionType { return ActionBallPocketed }
func (a GameOverAction) Kind() ActionType     { return ActionGameOver }
func (a RematchAction) Kind() ActionType      { return ActionRematch }
func (a ChatAction) Kind() ActionType         { return ActionChat }

// ParseAction 解析一條客戶端訊息。
// 回傳 ErrMalformedMessage（非 JSON / 缺 type）或 ErrUnknownAction（未知標籤）。
func ParseAction(data []byte) (Action, error) {
	var envelope struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	decode := func(dst Action) (Action, error) {
		// dst 必須是指標才能填值，呼叫處一律傳 &struct{}
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return dst, nil
	}

	switch envelope.Type {
	case ActionCreateRoom:
		return decode(&CreateRoomAction{})
	case ActionJoinRoom:
		return decode(&JoinRoomAction{})
	case ActionAimUpdate:
		return decode(&AimUpdateAction{})
	case ActionShoot:
		return decode(&ShootAction{})
	case ActionTurnEnd:
		return decode(&TurnEndAction{})
	case ActionBallPocketed:
		return decode(&BallPocketedAction{})
	case ActionGameOver:
		return decode(&GameOverAction{})
	case ActionRematch:
		return decode(&RematchAction{})
	case ActionChat:
		return decode(&ChatAction{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, envelope.Type)
	}
}
