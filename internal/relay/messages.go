package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/collabdraw/collabdraw/internal/types"
)

// Kind discriminates the envelope payload. Receivers dispatch purely on
// this field; the payload shape is untyped at the boundary and must be
// decoded through the helpers below before use.
type Kind string

const (
	KindConnectionReady Kind = "CONNECTION_READY"
	KindUserJoined      Kind = "USER_JOINED"
	KindUserLeft        Kind = "USER_LEFT"
	KindDraw            Kind = "DRAW"
	KindEraser          Kind = "ERASER"
	KindSignal          Kind = "SIGNAL"
	KindVideoStarted    Kind = "VIDEO_STARTED"
	KindExistingShapes  Kind = "EXISTING_SHAPES"
)

// Envelope is the wire unit exchanged over a room socket, JSON-encoded.
// Field names match what the web client sends.
type Envelope struct {
	Type         Kind                `json:"type"`
	UserId       string              `json:"userId"`
	UserName     string              `json:"userName,omitempty"`
	RoomId       string              `json:"roomId"`
	Message      *string             `json:"message"`
	Timestamp    string              `json:"timestamp,omitempty"`
	Participants []types.Participant `json:"participants"`
	Id           string              `json:"id,omitempty"`
	ConnectionId string              `json:"connectionId,omitempty"`
	IsOwner      bool                `json:"isOwner,omitempty"`
	Payload      json.RawMessage     `json:"payload,omitempty"`
}

// Signal is the payload of a SIGNAL envelope: an opaque WebRTC session
// description or ICE candidate addressed from one peer.
type Signal struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// ReadyInfo is the payload of a CONNECTION_READY envelope.
type ReadyInfo struct {
	IsGuest         bool `json:"isGuest"`
	IsAuthenticated bool `json:"isAuthenticated"`
}

// DecodeStroke validates and extracts the stroke carried by a DRAW
// envelope.
func DecodeStroke(e *Envelope) (types.Stroke, error) {
	var s types.Stroke
	if e.Type != KindDraw {
		return s, fmt.Errorf("envelope kind %q carries no stroke", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return s, fmt.Errorf("decode stroke payload: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// DecodeSignal extracts the signaling pair carried by a SIGNAL envelope.
func DecodeSignal(e *Envelope) (Signal, error) {
	var sig Signal
	if e.Type != KindSignal {
		return sig, fmt.Errorf("envelope kind %q carries no signal", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &sig); err != nil {
		return sig, fmt.Errorf("decode signal payload: %w", err)
	}
	if sig.From == "" {
		return sig, fmt.Errorf("signal payload missing sender")
	}
	return sig, nil
}

// strokePointCount reports the number of points in a DRAW envelope's
// payload without requiring the full stroke to validate.
func strokePointCount(e *Envelope) int {
	var partial struct {
		Points []types.Point `json:"points"`
	}
	if err := json.Unmarshal(e.Payload, &partial); err != nil {
		return 0
	}
	return len(partial.Points)
}

func NewConnectionReady(roomId, connectionId string, user types.User, isOwner, isAuthenticated bool) *Envelope {
	payload, _ := json.Marshal(ReadyInfo{
		IsGuest:         user.IsGuest,
		IsAuthenticated: isAuthenticated,
	})

	return &Envelope{
		Type:         KindConnectionReady,
		UserId:       user.Id,
		UserName:     user.Name,
		RoomId:       roomId,
		Timestamp:    Now(),
		ConnectionId: connectionId,
		IsOwner:      isOwner,
		Payload:      payload,
	}
}

func NewUserJoined(roomId string, user types.User) *Envelope {
	return &Envelope{
		Type:      KindUserJoined,
		UserId:    user.Id,
		UserName:  user.Name,
		RoomId:    roomId,
		Timestamp: Now(),
	}
}

func NewUserLeft(roomId string, user types.User) *Envelope {
	return &Envelope{
		Type:      KindUserLeft,
		UserId:    user.Id,
		UserName:  user.Name,
		RoomId:    roomId,
		Timestamp: Now(),
	}
}

func NewVideoStarted(roomId, ownerId, ownerName string) *Envelope {
	return &Envelope{
		Type:      KindVideoStarted,
		UserId:    ownerId,
		UserName:  ownerName,
		RoomId:    roomId,
		Timestamp: Now(),
	}
}

func Now() string {
	return time.Now().UTC().Round(time.Millisecond).Format(time.RFC3339Nano)
}
