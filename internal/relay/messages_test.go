package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/collabdraw/collabdraw/internal/types"
)

func TestDecodeStroke(t *testing.T) {
	stroke := types.Stroke{
		Id:     "stroke-1",
		Type:   types.ToolPencil,
		Points: []types.Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
		Color:  "#23ab2b",
		Width:  2,
	}
	payload, err := json.Marshal(stroke)
	assert.NoError(t, err, "expected stroke to marshal")

	tcases := []struct {
		name    string
		env     *Envelope
		wantErr bool
	}{
		{
			name: "valid drawing event",
			env:  &Envelope{Type: KindDraw, Payload: payload},
		},
		{
			name:    "wrong kind",
			env:     &Envelope{Type: KindSignal, Payload: payload},
			wantErr: true,
		},
		{
			name:    "malformed payload",
			env:     &Envelope{Type: KindDraw, Payload: json.RawMessage(`{"points":`)},
			wantErr: true,
		},
		{
			name:    "stroke fails validation",
			env:     &Envelope{Type: KindDraw, Payload: json.RawMessage(`{"id":"s","type":"pencil","points":[]}`)},
			wantErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeStroke(tc.env)
			if tc.wantErr {
				assert.Error(t, err, "expected decode to fail")
				return
			}
			assert.NoError(t, err, "expected decode to succeed")
			assert.Equal(t, stroke, decoded, "expected decoded stroke to match")
		})
	}
}

func TestDecodeSignal(t *testing.T) {
	t.Run("valid signal", func(t *testing.T) {
		env := &Envelope{
			Type:    KindSignal,
			Payload: json.RawMessage(`{"from":"conn-1","data":{"type":"offer"}}`),
		}
		sig, err := DecodeSignal(env)
		assert.NoError(t, err, "expected decode to succeed")
		assert.Equal(t, "conn-1", sig.From, "expected sender connection id to match")
		assert.JSONEq(t, `{"type":"offer"}`, string(sig.Data), "expected signal data to pass through opaquely")
	})

	t.Run("missing sender", func(t *testing.T) {
		env := &Envelope{Type: KindSignal, Payload: json.RawMessage(`{"data":{}}`)}
		_, err := DecodeSignal(env)
		assert.Error(t, err, "expected decode to fail without sender")
	})

	t.Run("wrong kind", func(t *testing.T) {
		env := &Envelope{Type: KindDraw, Payload: json.RawMessage(`{"from":"c"}`)}
		_, err := DecodeSignal(env)
		assert.Error(t, err, "expected decode to fail on non-signal envelope")
	})
}

func Test_strokePointCount(t *testing.T) {
	tcases := []struct {
		name    string
		payload string
		count   int
	}{
		{
			name:    "two points",
			payload: `{"points":[{"x":1,"y":2},{"x":3,"y":4}]}`,
			count:   2,
		},
		{
			name:    "no points",
			payload: `{"points":[]}`,
			count:   0,
		},
		{
			name:    "unparseable payload",
			payload: `not json`,
			count:   0,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			env := &Envelope{Type: KindDraw, Payload: json.RawMessage(tc.payload)}
			assert.Equal(t, tc.count, strokePointCount(env), "expected point count to match")
		})
	}
}

func TestNewConnectionReady(t *testing.T) {
	user := types.User{Id: "guest-abc", Name: "Guest", IsGuest: true}
	env := NewConnectionReady("room-1", "conn-1", user, false, false)

	assert.Equal(t, KindConnectionReady, env.Type, "expected connection-ready kind")
	assert.Equal(t, "room-1", env.RoomId, "expected room id to match")
	assert.Equal(t, "conn-1", env.ConnectionId, "expected connection id to match")
	assert.Equal(t, user.Id, env.UserId, "expected user id to match")
	assert.False(t, env.IsOwner, "expected guest not to be owner")
	assert.NotEmpty(t, env.Timestamp, "expected timestamp to be set")

	var info ReadyInfo
	assert.NoError(t, json.Unmarshal(env.Payload, &info), "expected ready payload to parse")
	assert.True(t, info.IsGuest, "expected guest flag in payload")
	assert.False(t, info.IsAuthenticated, "expected unauthenticated flag in payload")
}

func TestEnvelopeWireFormat(t *testing.T) {
	env := NewUserJoined("room-1", types.User{Id: "user-1", Name: "alice"})

	bytes, err := json.Marshal(env)
	assert.NoError(t, err, "expected envelope to marshal")

	var wire map[string]any
	assert.NoError(t, json.Unmarshal(bytes, &wire), "expected envelope JSON to parse")
	assert.Equal(t, "USER_JOINED", wire["type"], "expected wire kind to match")
	assert.Equal(t, "user-1", wire["userId"], "expected wire user id field name")
	assert.Equal(t, "alice", wire["userName"], "expected wire user name field name")
	assert.Equal(t, "room-1", wire["roomId"], "expected wire room id field name")
	assert.Contains(t, wire, "message", "expected message field to be present even when null")
}
