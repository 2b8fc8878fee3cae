package live

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message 推送给浏览器的消息
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type scopedMessage struct {
	scope string
	data  []byte
}

// Hub 维护在线连接，按可见范围广播
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan scopedMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub checkOrigin 为空时只允许同源
func NewHub(checkOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan scopedMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log: log.Named("live"),
	}
}

// Run 事件循环，Stop 之后返回
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("remote", client.remote), zap.String("scope", client.scope))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.scope != msg.scope {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					h.log.Warn("client send buffer full, removing", zap.String("remote", client.remote))
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.log.Debug("client unregistered", zap.String("remote", client.remote))
	}
}

// Stop 关闭所有连接并结束 Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast 向指定范围的连接推送 {type, payload}
func (h *Hub) Broadcast(scope, kind string, payload interface{}) {
	data, err := json.Marshal(Message{Type: kind, Payload: payload})
	if err != nil {
		h.log.Error("marshal broadcast failed", zap.String("type", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- scopedMessage{scope: scope, data: data}:
	case <-h.done:
	}
}

// ClientCount 在线连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS 升级连接并注册到 scope
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, scope string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 16),
		scope:  scope,
		remote: r.RemoteAddr,
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	go client.writePump()
	go client.readPump()
	return nil
}
