package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/quietfocus/quietfocus"
	"github.com/quietfocus/quietfocus/internal/procid"
)

const (
	// maxConns bounds concurrent connections; this is a single-user
	// localhost surface, not a public API.
	maxConns = 16

	defaultPushInterval = time.Second
)

// StateSnapshot is the wire form of the engine state served to
// presentation layers.
type StateSnapshot struct {
	ForegroundPID   uint32                     `json:"foreground_pid"`
	ForegroundKnown bool                       `json:"foreground_known"`
	MutingEnabled   bool                       `json:"muting_enabled"`
	MutedCount      int                        `json:"muted_count"`
	Sessions        []quietfocus.AppAudioState `json:"sessions"`
}

// ConfigView is the wire form of the mutable policy.
type ConfigView struct {
	MutingEnabled  bool     `json:"muting_enabled"`
	ExcludedApps   []string `json:"excluded_apps"`
	AlwaysMuted    []string `json:"always_muted_apps"`
	PollIntervalMS uint64   `json:"poll_interval_ms"`
}

// Server exposes engine state over HTTP and websocket.
type Server struct {
	engine      *quietfocus.Engine
	broadcaster *Broadcaster
	logger      *slog.Logger
	httpServer  *http.Server
	listener    net.Listener
}

// NewServer creates a status server for the engine. pushInterval
// controls how often websocket clients receive snapshots; zero means
// one second.
func NewServer(engine *quietfocus.Engine, pushInterval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if pushInterval <= 0 {
		pushInterval = defaultPushInterval
	}
	s := &Server{engine: engine, logger: logger}
	s.broadcaster = NewBroadcaster(s.Snapshot, pushInterval, logger)
	return s
}

// Snapshot assembles the current engine state.
func (s *Server) Snapshot() StateSnapshot {
	res := s.engine.LastResult()
	return StateSnapshot{
		ForegroundPID:   res.ForegroundPID,
		ForegroundKnown: res.ForegroundKnown,
		MutingEnabled:   s.engine.Store().MutingEnabled(),
		MutedCount:      s.engine.MutedCount(),
		Sessions:        s.engine.ActiveSessions(),
	}
}

// Routes returns the HTTP handler for the status surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/unmute-all", s.handleUnmuteAll)
	return mux
}

// Start listens on addr and serves in the background. The listener is
// capped with a connection limit.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = netutil.LimitListener(lis, maxConns)
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("status server stopped", "err", err)
		}
	}()
	s.logger.Info("status server listening", "addr", lis.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// Localhost-only surface; the listener address is the boundary.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", "err", err)
		return
	}
	id := s.broadcaster.Add(conn)
	if id == "" {
		// Broadcaster already closed; Add tore the connection down.
		return
	}
	// Drain the connection; clients only receive.
	go func() {
		defer s.broadcaster.Remove(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Snapshot())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, ConfigView{
			MutingEnabled:  store.MutingEnabled(),
			ExcludedApps:   store.Excluded(),
			AlwaysMuted:    store.AlwaysMuted(),
			PollIntervalMS: uint64(store.PollInterval() / time.Millisecond),
		})
	case http.MethodPut:
		var view ConfigView
		if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.applyConfig(store, view)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// applyConfig reconciles the submitted view against the store. Newly
// excluded apps that the engine muted are unmuted on the next tick.
func (s *Server) applyConfig(store *quietfocus.Store, view ConfigView) {
	store.SetMutingEnabled(view.MutingEnabled)
	store.SetPollInterval(view.PollIntervalMS)

	for _, name := range diff(store.Excluded(), view.ExcludedApps) {
		store.RemoveExcluded(name)
	}
	for _, name := range view.ExcludedApps {
		store.AddExcluded(name)
	}
	for _, name := range diff(store.AlwaysMuted(), view.AlwaysMuted) {
		store.RemoveAlwaysMuted(name)
	}
	for _, name := range view.AlwaysMuted {
		store.AddAlwaysMuted(name)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.ForceRefresh(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnmuteAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.UnmuteAll()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// diff returns the names in have that are absent from want, comparing
// case-insensitively like the policy does.
func diff(have, want []string) []string {
	wanted := make(map[string]struct{}, len(want))
	for _, n := range want {
		wanted[procid.Normalize(n)] = struct{}{}
	}
	var out []string
	for _, n := range have {
		if _, ok := wanted[procid.Normalize(n)]; !ok {
			out = append(out, n)
		}
	}
	return out
}
