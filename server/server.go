package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/soundbeats/api"
	"github.com/wfunc/soundbeats/auth"
	"github.com/wfunc/soundbeats/instance"
	"github.com/wfunc/soundbeats/logger"
	"github.com/wfunc/soundbeats/monitor"
	"github.com/wfunc/soundbeats/network"
	sbrpc "github.com/wfunc/soundbeats/rpc"
	"github.com/wfunc/soundbeats/session"
)

const maxBodyBytes = 1 << 20

// Server hosts the websocket and HTTP command channels.
type Server struct {
	addr           string
	upgrader       websocket.Upgrader
	router         chi.Router
	httpServer     *http.Server
	sessionManager *session.Manager
	instances      *instance.Manager
	dispatcher     *api.Dispatcher
	auth           *auth.Service
	monitor        *monitor.Monitor
	rpcServer      *sbrpc.Server
	heartbeat      time.Duration

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	closeOnce    sync.Once
}

type Option func(*Server)

// WithRPC starts and stops rpcServer together with the HTTP listener.
func WithRPC(rpcServer *sbrpc.Server) Option {
	return func(s *Server) { s.rpcServer = rpcServer }
}

// WithHeartbeat pings websocket clients every interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) { s.heartbeat = interval }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Server) { s.monitor = m }
}

func NewServer(addr string, dispatcher *api.Dispatcher, instances *instance.Manager, authService *auth.Service, sessions *session.Manager, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:           addr,
		sessionManager: sessions,
		instances:      instances,
		dispatcher:     dispatcher,
		auth:           authService,
		ctx:            ctx,
		cancel:         cancel,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.monitor.Handler())
	r.Get("/api/websocket", s.handleWebSocket)
	r.Group(func(r chi.Router) {
		r.Use(s.requireCaller)
		r.Post("/api/commands/{namespace}/{command}", s.handleCommand)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	logger.Log.Infof("Soundbeats server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting work, closes every session and waits for
// in-flight HTTP requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.shutdownChan)
		s.cancel()
	})
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	s.sessionManager.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"sessions":  s.sessionManager.Count(),
		"instances": s.instances.Count(),
	})
}

type callerKey struct{}

// bearerToken reads the Authorization header, then the access_token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func (s *Server) authenticate(r *http.Request) (auth.Caller, error) {
	token := bearerToken(r)
	if token == "" {
		return auth.Caller{}, auth.ErrInvalidToken
	}
	return s.auth.Verify(token)
}

func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, network.NewError(0, api.CodeUnauthorized, err.Error()))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	caller, _ := r.Context().Value(callerKey{}).(auth.Caller)
	name := chi.URLParam(r, "namespace") + "/" + chi.URLParam(r, "command")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, network.NewError(0, api.CodeInvalidArgument, err.Error()))
		return
	}
	var raw json.RawMessage
	if len(strings.TrimSpace(string(body))) > 0 {
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, network.NewError(0, api.CodeInvalidArgument, "body is not valid JSON"))
			return
		}
		raw = body
	}

	result, apiErr := s.dispatcher.Execute(r.Context(), caller, name, raw)
	if apiErr != nil {
		writeJSON(w, statusFor(apiErr.Code), network.NewError(0, apiErr.Code, apiErr.Message))
		return
	}
	writeJSON(w, http.StatusOK, network.NewResult(0, result))
}

func statusFor(code string) int {
	switch code {
	case api.CodeInvalidArgument:
		return http.StatusBadRequest
	case api.CodeUnauthorized:
		return http.StatusForbidden
	case api.CodeNotFound, api.CodeTeamNotFound, api.CodeUnknownCommand:
		return http.StatusNotFound
	case api.CodeNoActiveGame, api.CodeNoActiveRound:
		return http.StatusConflict
	case api.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugw("write response failed", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, network.NewError(0, api.CodeUnauthorized, err.Error()))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), caller)
}

func (s *Server) handleConnection(conn network.Connection, caller auth.Caller) {
	sess := session.NewSession(uuid.New().String(), conn, caller)
	s.sessionManager.Add(sess)
	s.monitor.IncSessions()
	if s.heartbeat > 0 {
		conn.SetHeartbeat(s.heartbeat)
	}

	logger.Log.Infof("New connection from %s, session ID: %s, user: %s", conn.RemoteAddr(), sess.ID, caller.UserID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.ID)
		s.sessionManager.Remove(sess.ID)
		s.monitor.DecSessions()
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			sess.Touch()
			s.handleMessage(sess, caller, data)
		}
	}
}

type subscribeArgs struct {
	api.Base
}

// handleMessage answers one websocket frame. Commands run on their own
// goroutine so a slow playback call does not stall the connection.
func (s *Server) handleMessage(sess *session.Session, caller auth.Caller, data []byte) {
	req, err := network.ParseRequest(data)
	if err != nil {
		sess.Send(network.NewError(0, api.CodeInvalidArgument, "malformed message"))
		return
	}

	switch req.Type {
	case network.MsgTypePing:
		sess.Send(&network.Response{ID: req.ID, Type: network.MsgTypePong, Success: true})
	case api.Prefix + api.CmdSubscribe:
		var args subscribeArgs
		if err := json.Unmarshal(req.Args, &args); err != nil {
			sess.Send(network.NewError(req.ID, api.CodeInvalidArgument, err.Error()))
			return
		}
		id := args.InstanceID
		if id == "" {
			id = args.ConfigEntryID
		}
		if id != "" {
			if _, ok := s.instances.Get(id); !ok {
				sess.Send(network.NewError(req.ID, api.CodeNotFound, "Configuration entry not found"))
				return
			}
		}
		sess.Subscribe(id)
		sess.Send(network.NewResult(req.ID, api.SuccessResult{Success: true}))
	default:
		go func() {
			result, apiErr := s.dispatcher.Execute(s.ctx, caller, req.Type, req.Args)
			if apiErr != nil {
				sess.Send(network.NewError(req.ID, apiErr.Code, apiErr.Message))
				return
			}
			sess.Send(network.NewResult(req.ID, result))
		}()
	}
}
