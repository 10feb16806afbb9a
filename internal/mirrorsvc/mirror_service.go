// Package mirrorsvc streams headset events to websocket clients, for dashboards and debugging
// tools running next to the engine.
package mirrorsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// EventSource is implemented by *headsetsvc.Service.
type EventSource interface {
	Subscribe(ctx context.Context, types ...xrapi.EventType) <-chan headsetsvc.EventMessage
	Status() []headsetsvc.DeviceStatus
}

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type Service struct {
	log      *zap.Logger
	addr     string
	source   EventSource
	upgrader websocket.Upgrader
	clients  *xsync.MapOf[string, time.Time]
	ready    chan struct{}
}

func New(log *zap.Logger, addr string, source EventSource) *Service {
	return &Service{
		log:    log,
		addr:   addr,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		clients: xsync.NewMapOf[string, time.Time](),
		ready:   make(chan struct{}),
	}
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start serves until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	close(s.ready)
	s.log.Info("Service started", zap.Stringer("addr", ln.Addr()))
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Clients returns the number of connected websocket clients.
func (s *Service) Clients() int {
	return s.clients.Size()
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := s.source.Status()
	if status == nil {
		status = []headsetsvc.DeviceStatus{}
	}
	err := json.NewEncoder(w).Encode(status)
	if err != nil {
		s.log.Error("failed to encode status", zap.Error(err))
	}
}

// handleEvents upgrades the request and streams every event as a JSON text message. Connected
// devices are replayed first so a client sees the current state.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	remote := conn.RemoteAddr().String()
	s.clients.Store(remote, time.Now())
	defer s.clients.Delete(remote)
	log := s.log.With(zap.String("remote", remote))
	log.Info("Client connected")

	events := s.source.Subscribe(ctx)

	// reader detects the close handshake
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, st := range s.source.Status() {
		err := s.write(conn, xrapi.Event{
			Type:    xrapi.EventConnected,
			Device:  st.Device,
			Profile: st.Profile,
			Source:  st.Source,
		})
		if err != nil {
			log.Debug("Client gone", zap.Error(err))
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Client disconnected")
			return
		case <-ping.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			if err != nil {
				log.Debug("Client gone", zap.Error(err))
				return
			}
		case msg := <-events:
			if err := s.write(conn, msg.Message); err != nil {
				log.Debug("Client gone", zap.Error(err))
				return
			}
		}
	}
}

func (s *Service) write(conn *websocket.Conn, e xrapi.Event) error {
	err := conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err != nil {
		return err
	}
	return conn.WriteJSON(e)
}
