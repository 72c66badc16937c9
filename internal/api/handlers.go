package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/collabdraw/collabdraw/internal/auth"
	"github.com/collabdraw/collabdraw/internal/relay"
	"github.com/collabdraw/collabdraw/internal/types"
)

type GuestTokenResponse struct {
	Token   string `json:"token"`
	GuestId string `json:"guestId"`
}

type AppendStrokeRequest struct {
	RoomId string       `json:"roomId"`
	Stroke types.Stroke `json:"stroke"`
}

type ListStrokesResponse struct {
	Strokes []types.Stroke `json:"strokes"`
}

func (s *BoardApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// serveWs upgrades the socket and hands it to the relay. The two
// connection parameters ride on the initial request: the room id and an
// optional bearer token. An absent or unverifiable token yields a freshly
// minted guest identity.
func (s *BoardApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	roomId := r.URL.Query().Get("roomId")
	token := r.URL.Query().Get("token")

	if roomId == "" {
		relay.CloseConn(conn, websocket.ClosePolicyViolation, "missing room id")
		return
	}

	var user types.User
	var isAuthenticated bool
	if identity, err := s.verifyConnectToken(token); err == nil {
		user = types.User{
			Id:      identity.UserId,
			Name:    identity.UserName,
			IsGuest: auth.IsGuestId(identity.UserId),
		}
		isAuthenticated = !user.IsGuest
	} else {
		if token != "" {
			s.log.Printf("token verification failed, admitting as guest: %v", err)
		}
		identity := auth.NewGuestIdentity()
		user = types.User{Id: identity.UserId, Name: identity.UserName, IsGuest: true}
	}

	client := relay.NewClient(relay.NewConnectionId(), user, isAuthenticated, roomId, conn, s.rs, s.log, s.stats)

	s.rs.Register(client)
	go client.Write()
	go client.Read()
}

func (s *BoardApp) verifyConnectToken(token string) (*auth.Identity, error) {
	if token == "" {
		return nil, http.ErrNoCookie
	}
	return auth.VerifyToken(s.signingKey, token)
}

// guestToken issues a short-lived token for anonymous participants.
func (s *BoardApp) guestToken(w http.ResponseWriter, _ *http.Request) {
	token, guestId, err := auth.IssueGuestToken(s.signingKey)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, GuestTokenResponse{Token: token, GuestId: guestId})
}

func (s *BoardApp) listStrokes(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	strokes, err := s.store.ListStrokesByRoom(roomId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ListStrokesResponse{Strokes: strokes})
}

func (s *BoardApp) appendStroke(w http.ResponseWriter, r *http.Request) {
	var req AppendStrokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || req.Stroke.Validate() != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.store.AppendStroke(req.RoomId, req.Stroke); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, map[string]bool{"success": true})
}

func (s *BoardApp) deleteStroke(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("roomId")
	strokeId := r.URL.Query().Get("strokeId")
	if roomId == "" || strokeId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.store.DeleteStrokeById(roomId, strokeId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *BoardApp) health(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Ping(); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
