package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server hosts the voice websocket endpoint plus health/status routes and,
// optionally, the static web client.
type Server struct {
	addr      string
	tlsCert   string
	tlsKey    string
	staticDir string
	deps      Deps
	logger    *zap.SugaredLogger
}

// NewServerOptions contains options for creating a new Server.
type NewServerOptions struct {
	Addr      string
	TLSCert   string
	TLSKey    string
	StaticDir string
	Deps      Deps
	Logger    *zap.SugaredLogger
}

// NewServer creates a new Server.
func NewServer(opts NewServerOptions) *Server {
	return &Server{
		addr:      opts.Addr,
		tlsCert:   opts.TLSCert,
		tlsKey:    opts.TLSKey,
		staticDir: opts.StaticDir,
		deps:      opts.Deps,
		logger:    opts.Logger,
	}
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	r := mux.NewRouter()
	r.HandleFunc("/voice", s.handleVoice)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/status", s.handleStatus)
	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}

	server := &http.Server{Addr: s.addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var err error
	if s.tlsCert != "" {
		s.logger.Infof("voice server listening on %s with TLS", s.addr)
		err = server.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		s.logger.Infof("voice server listening on %s", s.addr)
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("voice server closed")
		return nil
	}
	return err
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	go s.serveConn(wsConn)
}

// serveConn runs the read loop for one client. Control messages and audio
// frames are handled inline; one slow handler never blocks other
// connections, each of which has its own goroutine.
func (s *Server) serveConn(wsConn *websocket.Conn) {
	transport := newWSTransport(wsConn)

	conn, err := NewConn(s.deps, transport)
	if err != nil {
		s.logger.Errorf("connection setup failed: %v", err)
		wsConn.Close()
		return
	}
	defer func() {
		conn.HandleClose()
		wsConn.Close()
	}()

	for {
		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debugf("read error from %s: %v", transport.RemoteAddr(), err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			conn.HandleText(data)
		case websocket.BinaryMessage:
			conn.HandleBinary(data)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	linked := 0
	all := s.deps.Sessions.AllSessions()
	for _, sess := range all {
		if sess.Linked() {
			linked++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": len(all),
		"linked":   linked,
	})
}
