package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"duox/internal/game"
	"duox/internal/logger"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		addr    = flag.String("addr", "localhost:8080", "server host:port")
		userID  = flag.String("user", "", "user id; required to contribute a seed")
		vehicle = flag.String("vehicle", string(game.VehicleMatatu), "vehicle to contribute to")
		seed    = flag.String("seed", "", "client seed fragment to submit when betting opens")
		minMult = flag.Float64("min", 1, "server minimum multiplier, for verification")
		maxMult = flag.Float64("max", 1000, "server maximum multiplier, for verification")
	)
	flag.Parse()

	logger.Init("info", false)
	log := logger.Component("spectate")

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	if *userID != "" {
		u.RawQuery = url.Values{"user_id": {*userID}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("dial failed", "url", u.String(), "error", err)
	}
	defer conn.Close()
	log.Info("connected", "url", u.String())

	s := &spectator{
		log:     log,
		conn:    conn,
		vehicle: *vehicle,
		seed:    *seed,
		bounds:  game.FairnessConfig{MinMultiplier: *minMult, MaxMultiplier: *maxMult},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Info("connection closed", "error", err)
				return
			}
			var ev event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Warn("skipping malformed frame", "error", err)
				continue
			}
			s.handle(ev)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-quit:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		<-done
	}
}

type spectator struct {
	log     *slog.Logger
	conn    *websocket.Conn
	vehicle string
	seed    string
	bounds  game.FairnessConfig
}

func (s *spectator) handle(ev event) {
	switch ev.Type {
	case game.EventHashedServerSeed:
		var p game.HashedServerSeedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			s.log.Warn("skipping malformed event", "type", ev.Type, "error", err)
			return
		}
		s.log.Info("betting open", "round_id", p.RoundID, "commitments", p.Seeds)
		if s.seed != "" {
			msg := map[string]string{"type": "seed", "vehicle": s.vehicle, "seed": s.seed}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Warn("submit seed", "error", err)
			}
		}

	case game.EventSeedResult:
		s.log.Info("seed result", "result", string(ev.Data))

	case game.EventPreparing:
		s.log.Info("preparing")

	case game.EventEnd:
		var p game.EndPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			s.log.Warn("skipping malformed event", "type", ev.Type, "error", err)
			return
		}
		for kind, rec := range p.Fairness {
			v, err := game.VerifyRecord(rec, s.bounds)
			s.log.Info("crashed", "round_id", p.RoundID, "vehicle", kind, "multiplier", rec.FinalMultiplier,
				"server_seed", rec.ServerSeed, "client_seed", rec.ClientSeed, "verified", err == nil && v.Valid())
		}
	}
}
