package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Send buffer size per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is served to the bundled web UI from any host name the node
	// is reachable under.
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{ProtocolProtobuf, ProtocolJSON},
}

// Client represents a WebSocket client connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	groups   map[string]bool
	logger   *zap.Logger
	protocol string // ProtocolProtobuf or ProtocolJSON
}

// HandleWS upgrades the request and registers the connection. Groups listed
// in the comma-separated "groups" query parameter are joined immediately.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	connID := uuid.New().String()

	// Negotiate subprotocol - check what client requested
	protocol := ProtocolJSON
	var responseHeader http.Header
	for _, proto := range websocket.Subprotocols(r) {
		if proto == ProtocolProtobuf || proto == ProtocolJSON {
			protocol = proto
			responseHeader = http.Header{"Sec-WebSocket-Protocol": {proto}}
			break
		}
	}

	h.logger.Debug("websocket subprotocol negotiated",
		zap.String("protocol", protocol),
		zap.Strings("requested", websocket.Subprotocols(r)),
	)

	// Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		connID:   connID,
		groups:   make(map[string]bool),
		logger:   h.logger,
		protocol: protocol,
	}

	client.send <- client.buildConnected()

	if !h.add(client) {
		_ = conn.Close()
		return
	}

	if groups := r.URL.Query().Get("groups"); groups != "" {
		for _, group := range strings.Split(groups, ",") {
			group = strings.TrimSpace(group)
			if validGroups[group] {
				h.JoinGroup(client, group)
			}
		}
	}

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	// Determine message type based on protocol
	msgType := websocket.BinaryMessage
	if c.protocol == ProtocolJSON {
		msgType = websocket.TextMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(msgType, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming upstream message.
func (c *Client) handleMessage(data []byte) {
	// Parse based on protocol
	var msg any
	var err error
	if c.protocol == ProtocolJSON {
		msg, err = parseUpstreamMessageJSON(data)
	} else {
		msg, err = parseUpstreamMessage(data)
	}

	if err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.connID),
			zap.String("protocol", c.protocol),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case *joinGroupRequest:
		ok := validGroups[m.group]
		if ok {
			c.hub.JoinGroup(c, m.group)
		} else {
			c.logger.Debug("invalid group name",
				zap.String("connID", c.connID),
				zap.String("group", m.group),
			)
		}
		if m.ackID != nil {
			c.hub.deliver(c, c.buildAck(*m.ackID, ok))
		}

	case *leaveGroupRequest:
		c.hub.LeaveGroup(c, m.group)
		if m.ackID != nil {
			c.hub.deliver(c, c.buildAck(*m.ackID, true))
		}

	case *pingRequest:
		c.hub.deliver(c, c.buildPong())
	}
}

func (c *Client) buildConnected() []byte {
	if c.protocol == ProtocolJSON {
		return buildConnectedMessageJSON(c.connID)
	}
	return buildConnectedMessage(c.connID)
}

// buildAck creates an ack message in the correct format for this client's protocol.
func (c *Client) buildAck(ackID uint64, success bool) []byte {
	if c.protocol == ProtocolJSON {
		return buildAckMessageJSON(ackID, success)
	}
	return buildAckMessage(ackID, success)
}

// buildPong creates a pong message in the correct format for this client's protocol.
func (c *Client) buildPong() []byte {
	if c.protocol == ProtocolJSON {
		return buildPongMessageJSON()
	}
	return buildPongMessage()
}

// dataFrame picks the frame matching this client's protocol.
func (c *Client) dataFrame(f *Frames) []byte {
	if c.protocol == ProtocolJSON {
		return f.JSON
	}
	return f.Protobuf
}
