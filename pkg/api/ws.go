package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
)

const (
	// wsQueueCapacity bounds each dashboard subscriber's bus queue
	wsQueueCapacity = 256

	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the dashboard is served from a different origin in development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection, sends the bootstrap envelope with
// current descriptors and incidents, then streams bus events until the
// client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.WSClientsConnected.Inc()
	defer metrics.WSClientsConnected.Dec()

	bootstrap := map[string]interface{}{
		"type":       "bootstrap",
		"containers": s.registry.Snapshot(),
		"incidents":  s.store.List(),
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(bootstrap); err != nil {
		return
	}

	sub := s.bus.Subscribe(nil, wsQueueCapacity)
	defer sub.Close()

	// reader goroutine: we never expect client messages, but reading is
	// required to notice closes and process pong frames
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-sub.C:
			envelope, err := flatten(ev)
			if err != nil {
				s.logger.Warn().Err(err).Str("topic", ev.Topic).Msg("event not serializable")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, envelope); err != nil {
				return
			}
		}
	}
}

// flatten builds the wire envelope {type: <topic>, ...payload}
func flatten(ev bus.Event) ([]byte, error) {
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}

	doc := make(map[string]interface{})
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["type"] = ev.Topic
	doc["seq"] = ev.Seq
	return json.Marshal(doc)
}
