package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

const (
	ActionJoin  = "join"
	ActionLeave = "leave"

	MessageJoined = "joined"
	MessageLeft   = "left"
	MessageError  = "error"
)

// ChannelRequest is what a client sends to join or leave its channel.
type ChannelRequest struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub upgrades HTTP requests into websocket sessions for the registry.
type Hub struct {
	registry   *Registry
	bufferSize int
}

func NewHub(registry *Registry, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{registry: registry, bufferSize: bufferSize}
}

// ServeWS upgrades the request for the already authenticated userID. The
// session becomes reachable once the client joins its own channel.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Error upgrading websocket connection: %v", err)
		return
	}

	client := &Client{
		id:       uuid.NewString(),
		userID:   userID,
		registry: h.registry,
		conn:     conn,
		send:     make(chan []byte, h.bufferSize),
		done:     make(chan struct{}),
	}
	log.WithFields(log.Fields{"user": userID, "session": client.id}).Info("Client connected")

	go client.writePump()
	go client.readPump()
}

// Client is a websocket Session. The send buffer is never closed; done
// signals shutdown to both pumps and to pending Send calls.
type Client struct {
	id       string
	userID   string
	registry *Registry
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Send(ctx context.Context, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error happened in JSON marshal. Err: %s", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.registry.Leave(c)
	})
}

func (c *Client) reply(msgType, channel string, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	c.Send(ctx, Message{
		Type:      msgType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
		log.WithFields(log.Fields{"user": c.userID, "session": c.id}).Info("Client disconnected")
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
				log.Warnf("Websocket connection error: %v", err)
			}
			return
		}

		var request ChannelRequest
		if err := json.Unmarshal(message, &request); err != nil {
			c.reply(MessageError, "", "invalid message")
			continue
		}
		c.handleRequest(request)
	}
}

func (c *Client) handleRequest(request ChannelRequest) {
	own := Channel(c.userID)
	if request.Channel != own {
		log.WithFields(log.Fields{
			"user":    c.userID,
			"channel": request.Channel,
		}).Warn("Client tried to use a foreign channel")
		c.reply(MessageError, request.Channel, "channel not allowed")
		return
	}

	switch request.Action {
	case ActionJoin:
		c.registry.Join(c.userID, c)
		c.reply(MessageJoined, own, nil)
	case ActionLeave:
		c.registry.Leave(c)
		c.reply(MessageLeft, own, nil)
	default:
		c.reply(MessageError, own, "unknown action")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
