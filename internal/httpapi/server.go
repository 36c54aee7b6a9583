// Package httpapi serves the daemon's published surface to local UI
// projections: the current snapshot, the feed connectivity, a manual
// refresh trigger and a websocket stream of snapshot publications. It is
// read-only with respect to the remote service; status writes go through
// the board, not through here.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/civicgrid/complaintd/internal/model"
	intsync "github.com/civicgrid/complaintd/internal/sync"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The listener binds to loopback; projections are local processes.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server exposes the projection API over a local HTTP listener.
type Server struct {
	engine *intsync.Engine
	state  *connstate.Machine
	bus    *bus.Bus
	logger *zap.Logger
	srv    *http.Server
}

// NewServer builds the router and binds it to addr.
func NewServer(addr string, engine *intsync.Engine, state *connstate.Machine, b *bus.Bus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, state: state, bus: b, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/v1/status", s.getStatus)
	r.GET("/v1/complaints", s.listComplaints)
	r.POST("/v1/refresh", s.refresh)
	r.GET("/v1/stream", s.stream)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until Stop. Blocks.
func (s *Server) Start() error {
	s.logger.Info("projection api listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("projection api stopping")
	return s.srv.Shutdown(ctx)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":      s.state.Current(),
		"attempt":    s.state.Attempt(),
		"complaints": len(s.engine.Snapshot()),
	})
}

func (s *Server) listComplaints(c *gin.Context) {
	list := s.engine.Snapshot()

	if raw := c.Query("status"); raw != "" {
		st := model.Status(raw)
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + raw})
			return
		}
		filtered := list[:0:0]
		for _, cmp := range list {
			if cmp.Status == st {
				filtered = append(filtered, cmp)
			}
		}
		list = filtered
	}
	if list == nil {
		list = []model.Complaint{}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Server) refresh(c *gin.Context) {
	if err := s.engine.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaints": len(s.engine.Snapshot())})
}

// streamMsg is one message on the /v1/stream websocket.
type streamMsg struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// stream upgrades to a websocket and pushes every snapshot publication and
// connectivity change to the client, starting with the current snapshot.
func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	events, cancel := s.bus.Subscribe("", 32)

	done := make(chan struct{})
	go func() {
		// Drain the client side; its close ends the write loop below.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cancel()
		defer func() { _ = conn.Close() }()

		write := func(msg streamMsg) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			return conn.WriteJSON(msg) == nil
		}

		if !write(streamMsg{Type: "snapshot", Data: s.engine.Snapshot()}) {
			return
		}

		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case evt := <-events:
				var msg streamMsg
				switch evt.Kind {
				case "snapshot.published":
					msg = streamMsg{Type: "snapshot", Data: evt.Payload}
				case "conn.status_changed":
					msg = streamMsg{Type: "connectivity", Data: evt.Payload}
				default:
					continue
				}
				if !write(msg) {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
}
