package websocket

import (
	"encoding/json"
	"sync"
	"time"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Hub keeps the connected portal clients, grouped by family, and pushes
// messages to every connection of a family.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}

	mutex    sync.RWMutex
	families map[uint]map[*Client]struct{}
}

// Client is one websocket connection of a family user.
type Client struct {
	familyID uint
	userID   uint
	send     chan []byte
}

// Message is the envelope written to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		families:   make(map[uint]map[*Client]struct{}),
	}
}

// Run processes registrations until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			set, ok := h.families[client.familyID]
			if !ok {
				set = make(map[*Client]struct{})
				h.families[client.familyID] = set
			}
			set[client] = struct{}{}
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{"family_id": client.familyID, "user_id": client.userID}).Debug("websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{"family_id": client.familyID, "user_id": client.userID}).Debug("websocket client disconnected")

		case <-h.stop:
			h.mutex.Lock()
			for _, set := range h.families {
				for client := range set {
					h.remove(client)
				}
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Stop ends Run and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.stop)
}

// remove must be called with the write lock held.
func (h *Hub) remove(client *Client) {
	set, ok := h.families[client.familyID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.families, client.familyID)
	}
}

// BroadcastToFamily sends message to every connection of a family and
// reports how many received it. Slow clients are dropped.
func (h *Hub) BroadcastToFamily(familyID uint, message interface{}) int {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Error marshaling WebSocket message")
		return 0
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	sent := 0
	for client := range h.families[familyID] {
		select {
		case client.send <- data:
			sent++
		default:
			h.remove(client)
		}
	}
	return sent
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, set := range h.families {
		n += len(set)
	}
	return n
}

func newClient(familyID, userID uint) *Client {
	return &Client{familyID: familyID, userID: userID, send: make(chan []byte, sendBuffer)}
}

// ServeFiberWS registers the connection and blocks until it closes.
func (h *Hub) ServeFiberWS(c *fiberws.Conn, familyID, userID uint) {
	client := newClient(familyID, userID)
	h.register <- client

	go h.fiberWritePump(client, c)
	// Run read pump inline to avoid passing the Fiber connection across goroutines
	h.fiberReadPump(client, c)
}

func (h *Hub) fiberWritePump(client *Client, c *fiberws.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.WriteMessage(fiberws.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("family_id", client.familyID).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) fiberReadPump(client *Client, c *fiberws.Conn) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.stop:
		}
		c.Close()
	}()

	c.SetReadLimit(maxMessageSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("family_id", client.familyID).Warn("websocket closed unexpectedly")
			}
			return
		}
		// Clients only listen; inbound frames are ignored.
	}
}
