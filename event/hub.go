package event

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Hub serves bus events to WebSocket dashboard clients. Each client gets its
// own bus subscription, so one slow dashboard cannot stall another.
type Hub struct {
	bus      *Bus
	logger   logger.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// HubOption configures a Hub.
type HubOption interface {
	apply(*Hub)
}

type hubOptFunc func(*Hub)

func (f hubOptFunc) apply(h *Hub) { f(h) }

// WithHubLogger overrides the hub logger.
func WithHubLogger(l logger.Logger) HubOption {
	return hubOptFunc(func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	})
}

func NewHub(bus *Bus, opts ...HubOption) *Hub {
	hub := &Hub{
		bus:    bus,
		logger: logger.GetLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt.apply(hub)
	}

	return hub
}

// Router builds the HTTP routes: GET /healthz and GET /ws.
func (h *Hub) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet},
		AllowHeaders:    []string{"Origin", "Content-Type"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "subscribers": h.bus.SubscriberCount()})
	})
	router.GET("/ws", h.handleWS)

	return router
}

// Start serves the hub on addr and blocks until the server stops.
func (h *Hub) Start(addr string) error {
	h.server = &http.Server{Addr: addr, Handler: h.Router()}
	h.logger.Info("event hub listening", "addr", addr)

	err := h.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Close shuts the HTTP server down, if it was started.
func (h *Hub) Close(ctx context.Context) error {
	if h.server == nil {
		return nil
	}

	return h.server.Shutdown(ctx)
}

func (h *Hub) handleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id, events := h.bus.Subscribe()
	h.logger.Info("dashboard client connected", "client", id.String(), "remote", conn.RemoteAddr().String())

	go h.writeLoop(conn, id, events)
	go h.readLoop(conn, id)
}

// writeLoop forwards bus events to the client and keeps the connection alive
// with pings. It owns all writes on the connection.
func (h *Hub) writeLoop(conn *websocket.Conn, id uuid.UUID, events <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("dashboard client write failed", "client", id.String(), "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames, services pong deadlines, and tears the
// subscription down when the client goes away.
func (h *Hub) readLoop(conn *websocket.Conn, id uuid.UUID) {
	defer func() {
		h.bus.Unsubscribe(id)
		conn.Close()
		h.logger.Info("dashboard client disconnected", "client", id.String())
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
