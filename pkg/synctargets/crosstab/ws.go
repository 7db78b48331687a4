package crosstab

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/weapon/pkg/elog"
)

var log = elog.ForComponent("sync/crosstab")

// upgrader uses generous buffers and permissive CORS since this is a
// loopback signalling channel, not a public API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a WebSocket and relays every Signal broadcast on
// hub to the connection until it closes. One subscriber is registered per
// connection and unregistered on disconnect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, signals := h.Register()
	defer h.Unregister(id)
	log.Debugf("ws subscriber %d connected from %s", id, r.RemoteAddr)

	// Drain inbound frames so ping/close control frames are handled and the
	// connection is detected as dead once the peer disappears.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for sig := range signals {
		if err := conn.WriteJSON(sig); err != nil {
			log.Debugf("ws subscriber %d write failed: %v", id, err)
			return
		}
	}
}
