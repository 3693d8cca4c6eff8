// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

// WSMessage is the envelope of every message on the live feed.
type WSMessage struct {
	Type      string    `json:"type"` // "sample", "state", "error", "pong"
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan WSMessage
}

// Hub fans pipeline events out to websocket clients. It is a sampling.Observer;
// a client that cannot keep up misses messages instead of blocking the pipeline.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*wsClient
	upgrader websocket.Upgrader
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) OnSampleRecorded(rec sampling.Record) {
	h.broadcast(WSMessage{Type: "sample", Timestamp: time.Now(), Data: rec})
}

func (h *Hub) OnError(err error) {
	h.broadcast(WSMessage{Type: "error", Timestamp: time.Now(), Error: err.Error()})
}

func (h *Hub) OnStateChanged(st sampling.Status) {
	h.broadcast(WSMessage{Type: "state", Timestamp: time.Now(), Data: st})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("web: ws client %s connected (total: %d)", c.id, n)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("web: ws client %s disconnected (total: %d)", c.id, n)
}

// HandleWS upgrades the request and streams hub messages to the client.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("web: ws upgrade error: %v", err)
		return
	}
	client := &wsClient{
		id:   c.ClientIP() + "-" + uuid.NewString()[:8],
		conn: conn,
		send: make(chan WSMessage, 256),
	}
	h.register(client)

	go h.readPump(client)
	go writePump(client)
}

// readPump answers pings and unregisters the client when the connection goes away.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("web: ws read error: %v", err)
			}
			return
		}
		if msg.Type == "ping" {
			h.mu.RLock()
			select {
			case c.send <- WSMessage{Type: "pong", Timestamp: time.Now()}:
			default:
			}
			h.mu.RUnlock()
		}
	}
}

func writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("web: ws write error: %v", err)
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// NewRouter returns the HTTP control surface of l.
func NewRouter(l *Logger, hub *Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	api := r.Group("/api/streams")
	{
		api.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, l.Status())
		})
		api.GET("/:id", func(c *gin.Context) {
			st, err := l.StatusOf(c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, st)
		})
		api.POST("/:id/start", func(c *gin.Context) {
			control(c, l, l.StartStream)
		})
		api.POST("/:id/stop", func(c *gin.Context) {
			control(c, l, l.StopStream)
		})
		api.POST("/:id/flush", func(c *gin.Context) {
			control(c, l, l.ColdStart)
		})
	}

	r.GET("/ws", hub.HandleWS)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(l.Registry(), promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func control(c *gin.Context, l *Logger, op func(string) error) {
	id := c.Param("id")
	if err := op(id); err != nil {
		writeError(c, err)
		return
	}
	st, err := l.StatusOf(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownStream):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnsupported):
		status = http.StatusNotImplemented
	case sampling.KindOf(err) == sampling.KindStorageUnavailable:
		status = http.StatusServiceUnavailable
	case sampling.KindOf(err) == sampling.KindConfiguration:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": sampling.KindOf(err).String()})
}

// ServeWeb serves handler on addr until ctx is done.
func ServeWeb(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
