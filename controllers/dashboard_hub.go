package controllers

import (
	"cobranca/services"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DashboardMessage сообщение клиенту
type DashboardMessage struct {
	Type    string              `json:"type"`
	Payload *services.Dashboard `json:"payload"`
}

type hubClient struct {
	hub    *DashboardHub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// DashboardHub рассылает пересчитанный дашборд всем подключенным клиентам
type DashboardHub struct {
	dashboard *services.DashboardService
	logger    *zap.Logger

	clients    map[*hubClient]bool
	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan []byte
	done       chan struct{}
}

// NewDashboardHub создает хаб; рассылка начинается после Run
func NewDashboardHub(dashboard *services.DashboardService, logger *zap.Logger) *DashboardHub {
	return &DashboardHub{
		dashboard:  dashboard,
		logger:     logger,
		clients:    make(map[*hubClient]bool),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

func encodeDashboard(d *services.Dashboard) ([]byte, error) {
	return json.Marshal(DashboardMessage{Type: "dashboard", Payload: d})
}

// publish вызывается DashboardService после каждого пересчета
func (h *DashboardHub) publish(d *services.Dashboard) {
	msg, err := encodeDashboard(d)
	if err != nil {
		h.logger.Error("failed to marshal dashboard", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		// очередь полна: следующий пересчет все равно принесет полный снимок
		h.logger.Warn("dashboard broadcast dropped")
	}
}

// Run обслуживает клиентов до отмены ctx
func (h *DashboardHub) Run(ctx context.Context) {
	unsubscribe := h.dashboard.Subscribe(h.publish)
	defer unsubscribe()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("dashboard client registered", zap.Uint("user_id", client.userID), zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.logger.Debug("dashboard client unregistered", zap.Uint("user_id", client.userID))

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// ServeWS подключает клиента; первым сообщением идет текущий снимок
func (h *DashboardHub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection to WebSocket", zap.Error(err))
		return
	}

	client := &hubClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
	}

	if snapshot := h.dashboard.Snapshot(); snapshot != nil {
		if msg, err := encodeDashboard(snapshot); err == nil {
			client.send <- msg
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump читает соединение только ради close и pong
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected websocket close error", zap.Error(err))
			}
			return
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("failed to write message to websocket", zap.Error(err))
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
