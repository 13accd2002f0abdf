// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS enforced upstream of the game server, not here
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SocketClient is a middleman between a WebSocket connection and the Hub.
// Grounded near-verbatim on server/socket_client.go; the only behavioral
// change is routing log output through *zap.Logger instead of the
// standard library's log package.
type SocketClient struct {
	ClientData
	conn *websocket.Conn
	send chan Outbound
	once sync.Once
	log  *zap.Logger
}

func NewSocketClient(conn *websocket.Conn, log *zap.Logger) *SocketClient {
	return &SocketClient{
		conn: conn,
		send: make(chan Outbound, 16), // ~3s of 200ms position batches before destruction
		log:  log,
	}
}

func (client *SocketClient) Close() {
	close(client.send)
}

func (client *SocketClient) Data() *ClientData {
	return &client.ClientData
}

func (client *SocketClient) Destroy() {
	client.once.Do(func() {
		hub := client.Hub
		select {
		case hub.unregister <- client:
		default:
			go func() { hub.unregister <- client }()
		}
		_ = client.conn.Close()
	})
}

func (client *SocketClient) Init() {
	go client.writePump()
	go client.readPump()
}

func (client *SocketClient) Send(out Outbound) {
	select {
	case client.send <- out:
	default:
		// Slow consumer; drop the connection rather than stall the hub.
		client.Destroy()
	}
}

func (client *SocketClient) readPump() {
	defer client.Destroy()
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, r, err := client.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				client.log.Debug("socket closed unexpectedly", zap.Error(err))
			}
			break
		}

		var message Message
		if err := json.NewDecoder(r).Decode(&message); err != nil {
			client.log.Warn("malformed inbound message", zap.Error(err))
			break
		}

		if invalid, ok := message.Data.(InvalidInbound); ok {
			client.log.Debug("unknown inbound message type", zap.String("type", string(invalid.messageType)))
			continue
		}

		client.Hub.inbound <- SignedInbound{Client: client, Inbound: message.Data.(Inbound)}
	}
}

func (client *SocketClient) writePump() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			client.log.Debug("writePump recovered", zap.Any("panic", r))
		}
		pingTicker.Stop()
		client.Destroy()
	}()

	for {
		select {
		case out, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}

			w, err := client.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				panic(err)
			}
			if err := json.NewEncoder(w).Encode(Message{Data: out}); err != nil {
				client.log.Warn("encode error", zap.Error(err))
				panic(err)
			}
			if err := w.Close(); err != nil {
				panic(err)
			}
		case <-pingTicker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
