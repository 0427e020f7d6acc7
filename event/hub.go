package event

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

// Hub 管理 WebSocket 连接并向所有客户端广播事件
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	log        zerolog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// envelope WebSocket 消息格式：{"event": ..., "payload": ...}
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// NewHub 创建事件广播中心
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log,
	}
}

// Run 主循环，需要作为 goroutine 启动
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 慢客户端直接断开，不阻塞广播
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Emit 实现 Sink：序列化后广播。没有客户端时消息被丢弃。
func (h *Hub) Emit(event string, payload any) {
	msg, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("事件序列化失败")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Str("event", event).Msg("事件广播缓冲已满，丢弃")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 与 API 层的 CORS 策略一致，放开跨域
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS 把 HTTP 连接升级为 WebSocket 并注册到 Hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket 升级失败")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, clientSendSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump 只负责探测断连，入站消息全部丢弃
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
