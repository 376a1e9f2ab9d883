package server

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"

	"duox/internal/game"
)

type clientMessage struct {
	Type    string `json:"type"`
	Vehicle string `json:"vehicle"`
	Seed    string `json:"seed"`
}

// gameWebSocketHandler subscribes the connection to round events and
// accepts seed submissions. All writes go through the hub client.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	log := s.log.With("user_id", userID)
	log.Debug("websocket connected")

	// the handler must not return before the writer is done with conn
	client := s.hub.RegisterClient(conn, userID, game.WSMessage{Type: game.EventInitialState, Data: s.round.Snapshot()})
	defer s.hub.UnregisterClient(client)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug("websocket read ended", "error", err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug("ignoring malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case "seed":
			if userID == "anonymous" {
				client.SendJSON(game.WSMessage{Type: game.EventSeedResult, Data: seedResponse{
					RoundID:            s.round.RoundID(),
					Vehicle:            game.VehicleKind(msg.Vehicle),
					ContributionResult: game.ContributionResult{Reason: game.RejectAnonymous},
				}})
				continue
			}
			client.SendJSON(game.WSMessage{Type: game.EventSeedResult, Data: s.contribute(userID, msg.Vehicle, msg.Seed)})

		case "ping":
			client.SendJSON(game.WSMessage{Type: game.EventPong})
		}
	}
}
