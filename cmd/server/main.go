package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miretskiy/rollingtuner/integration"
	"github.com/miretskiy/rollingtuner/simulator"
	"github.com/miretskiy/rollingtuner/tuner"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// ClientMessage is a dashboard command: start, pause, reset or config_update.
type ClientMessage struct {
	Type   string              `json:"type"`
	Config *integration.Config `json:"config,omitempty"`
}

// ServerMessage is pushed to the dashboard. Type selects which fields are set.
type ServerMessage struct {
	Type    string              `json:"type"`
	Running *bool               `json:"running,omitempty"`
	Config  *integration.Config `json:"config,omitempty"`
	Report  *tuner.Report       `json:"report,omitempty"`
	Metrics *simulator.Metrics  `json:"metrics,omitempty"`
	State   *snapshot           `json:"state,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

type server struct {
	logger   log.Logger
	cfg      integration.Config
	interval time.Duration
	prom     *promMetrics
	gatherer prometheus.Gatherer
	quit     func()
}

func newServer(logger log.Logger, cfg integration.Config, interval time.Duration, quit func()) *server {
	reg := prometheus.NewRegistry()
	return &server{
		logger:   logger,
		cfg:      cfg,
		interval: interval,
		prom:     newPromMetrics(reg),
		gatherer: reg,
		quit:     quit,
	}
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHome)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/quitquitquit", s.quitHandler)
	return mux
}

func (s *server) observer() tuner.Observer {
	logObs := tuner.LogObserver{Logger: s.logger}
	return tuner.ObserverFunc(func(r tuner.Report, applyErr error) {
		logObs.Observe(r, applyErr)
		s.prom.Observe(r, applyErr)
	})
}

// uiUpdateLoop runs one tuning round per tick while the client has the loop
// started, and streams the result.
func (s *server) uiUpdateLoop(conn *safeConn, state *simState) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-state.stopCh:
			level.Debug(s.logger).Log("msg", "UI update loop stopping")
			return
		case <-ticker.C:
			report, snap, metrics, ok := state.round()
			if !ok {
				continue
			}
			if err := conn.WriteJSON(ServerMessage{Type: "report", Report: &report, Metrics: metrics}); err != nil {
				level.Warn(s.logger).Log("msg", "sending report", "err", err)
				return
			}
			if err := conn.WriteJSON(ServerMessage{Type: "state", State: &snap}); err != nil {
				level.Warn(s.logger).Log("msg", "sending state", "err", err)
				return
			}
		}
	}
}

func (s *server) sendStatus(conn *safeConn, state *simState) error {
	running := state.isRunning()
	cfg := state.config()
	return conn.WriteJSON(ServerMessage{Type: "status", Running: &running, Config: &cfg})
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		level.Warn(s.logger).Log("msg", "upgrading connection", "err", err)
		return
	}
	defer conn.Close()

	sc := &safeConn{Conn: conn}
	logger := log.With(s.logger, "remote", r.RemoteAddr)
	level.Info(logger).Log("msg", "client connected")

	state, err := newSimState(s.cfg, s.observer(), s.prom)
	if err != nil {
		level.Error(logger).Log("msg", "creating closed loop", "err", err)
		_ = sc.WriteJSON(ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	state.loop.Sim.LogEvent = func(msg string) {
		level.Debug(logger).Log("msg", msg)
	}

	if err := s.sendStatus(sc, state); err != nil {
		level.Warn(logger).Log("msg", "sending status", "err", err)
		return
	}

	go s.uiUpdateLoop(sc, state)
	defer state.stop()

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				level.Warn(logger).Log("msg", "reading message", "err", err)
			}
			break
		}
		level.Debug(logger).Log("msg", "received command", "type", msg.Type)

		var cmdErr error
		switch msg.Type {
		case "start":
			state.start()
		case "pause":
			state.pause()
		case "reset":
			cmdErr = state.reset()
		case "config_update":
			if msg.Config == nil {
				cmdErr = fmt.Errorf("config_update without config")
				break
			}
			cmdErr = state.updateConfig(*msg.Config)
		default:
			cmdErr = fmt.Errorf("unknown command %q", msg.Type)
		}

		if cmdErr != nil {
			level.Warn(logger).Log("msg", "command failed", "type", msg.Type, "err", cmdErr)
			if err := sc.WriteJSON(ServerMessage{Type: "error", Error: cmdErr.Error()}); err != nil {
				break
			}
			continue
		}
		if err := s.sendStatus(sc, state); err != nil {
			break
		}
	}

	level.Info(logger).Log("msg", "client disconnected")
}

func (s *server) serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"service":   "rollingtuner",
		"websocket": "/ws",
		"metrics":   "/metrics",
		"config":    s.cfg,
	}); err != nil {
		level.Warn(s.logger).Log("msg", "writing status", "err", err)
	}
}

func (s *server) quitHandler(w http.ResponseWriter, r *http.Request) {
	level.Info(s.logger).Log("msg", "shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Server shutting down...")
	s.quit()
}

func newLogger(lvl string) (log.Logger, error) {
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("invalid log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "JSON or YAML file with sim and tuner sections")
	interval := flag.Duration("ui.interval", 500*time.Millisecond, "wall-clock time between tuning rounds")
	logLevel := flag.String("log.level", "info", "debug, info, warn or error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := integration.DefaultConfig()
	if *configPath != "" {
		if cfg, err = integration.LoadConfig(*configPath); err != nil {
			level.Error(logger).Log("msg", "loading config", "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(logger, cfg, *interval, stop)
	httpServer := &http.Server{Addr: *addr, Handler: srv.handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	level.Info(logger).Log("msg", "server starting", "addr", *addr, "policy", cfg.Tuner.Policy)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "server failed", "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "server stopped")
}
