// Package hub fans run records out to websocket clients.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/lgr"
)

// writeWait bounds a single send so a stalled client cannot hold the hub.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Service struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

func New() *Service {
	return &Service{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until Close.
func (h *Service) Run() {
	for {
		select {
		case <-h.done:
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			lgr.Logger.Info("websocket client connected", slog.Int("clients", h.ClientCount()))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			lgr.Logger.Info("websocket client disconnected", slog.Int("clients", h.ClientCount()))

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					lgr.Logger.Warn("websocket send failed", slog.Any("error", err))
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until the client goes away.
func (h *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Reads only detect the disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish lets the hub act as a run publisher. It never waits on clients:
// when the queue is full the run is dropped for websocket listeners.
func (h *Service) Publish(run model.RunRecord) error {
	message, err := json.Marshal(run)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		lgr.Logger.Warn("websocket queue full, run dropped", slog.String("id", run.ID))
	}
	return nil
}

func (h *Service) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Service) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	return nil
}
