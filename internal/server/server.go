// Package server exposes one interlock to the driving computer over gRPC
// and to the bridge loop, serializing both behind a single lock.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"google.golang.org/grpc"

	"github.com/ppiankov/cangate/internal/api"
	"github.com/ppiankov/cangate/internal/audit"
	"github.com/ppiankov/cangate/internal/config"
	"github.com/ppiankov/cangate/internal/dispatch"
	"github.com/ppiankov/cangate/internal/journal"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
)

// unknownMode stands in for mode names that do not parse, so they take the
// same fallback path as unknown mode numbers.
const unknownMode = safety.Mode(0xFFFF)

// Config holds server configuration.
type Config struct {
	// ConfigPath is the cangate YAML file; empty means the default path.
	ConfigPath string
	// Listen overrides the configured listen address.
	Listen string
	Logger *slog.Logger
	// Clock overrides the interlock timestamp source.
	Clock safety.Clock
}

// Server owns one interlock. It satisfies bridge.Gate and serves the
// cangate.v1.Interlock RPCs.
type Server struct {
	mu         sync.Mutex
	il         *safety.Interlock
	appCfg     *config.Config
	configHash string
	session    string

	auditLog *audit.Log
	journal  *journal.Journal
	log      *slog.Logger
	cfg      Config

	grpcServer *grpc.Server
}

// New loads configuration, opens the audit log and journal, and builds the
// interlock in the configured mode.
func New(cfg Config) (*Server, error) {
	appCfg, hash, err := config.LoadWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		appCfg:     appCfg,
		configHash: hash,
		session:    journal.NewSessionID(),
		log:        logger,
		cfg:        cfg,
	}

	if appCfg.Journal != "" {
		s.journal, err = journal.Open(appCfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		s.session = s.journal.Session()
	}

	if appCfg.AuditLog != "" {
		s.auditLog, err = audit.Open(appCfg.AuditLog)
		if err != nil {
			s.closeJournal()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		s.auditLog.SetSyncEvery(appCfg.AuditSyncEvery)
	}

	s.il, err = s.newInterlock(appCfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.grpcServer = grpc.NewServer()
	api.RegisterInterlockServer(s.grpcServer, rpcService{s})
	return s, nil
}

func (s *Server) newInterlock(appCfg *config.Config) (*safety.Interlock, error) {
	opts := []safety.Option{safety.WithObserver(s.observe)}
	if s.cfg.Clock != nil {
		opts = append(opts, safety.WithClock(s.cfg.Clock))
	}
	il, err := dispatch.NewInterlock(appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to select safety mode: %w", err)
	}
	return il, nil
}

// observe runs under s.mu, from inside interlock calls.
func (s *Server) observe(tr safety.Transition) {
	s.log.Info("engagement transition",
		"mode", tr.Mode.String(),
		"cause", tr.Cause,
		"controls_allowed", tr.ControlsAllowed,
		"relay_malfunction", tr.RelayMalfunction,
	)
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(tr); err != nil {
		s.log.Warn("journal write failed", "err", err)
	}
}

// Serve listens on the configured address. Blocks until stopped.
func (s *Server) Serve() error {
	addr := s.cfg.Listen
	if addr == "" {
		addr = s.appCfg.Listen
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.Info("serving", "addr", lis.Addr().String(), "session", s.session)
	return s.grpcServer.Serve(lis)
}

// ServeOn serves on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Close releases the audit log and journal.
func (s *Server) Close() error {
	var errs []error
	if s.auditLog != nil {
		errs = append(errs, s.auditLog.Close())
	}
	errs = append(errs, s.closeJournal())
	return errors.Join(errs...)
}

func (s *Server) closeJournal() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

// AppConfig returns the configuration in effect.
func (s *Server) AppConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appCfg
}

// Session returns the id stamped on audit entries and journal rows.
func (s *Server) Session() string { return s.session }

// Rx feeds a frame received on a car bus.
func (s *Server) Rx(f model.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.il.Rx(f)
	if !ok {
		s.record(string(model.HookRx), f, ok, nil, "invalid")
	}
	return ok
}

// Tx gates a frame the driving computer wants to send. The decision is
// audited under the lock; fsync is batched by audit_sync_every.
func (s *Server) Tx(f model.Frame, longitudinalAllowed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.il.Tx(f, longitudinalAllowed)
	reason := ""
	if !ok {
		reason = s.denyReason()
	}
	s.record(string(model.HookTx), f, ok, nil, reason)
	return ok
}

// Fwd returns the relay destination for a frame received on bus.
func (s *Server) Fwd(bus int, f model.Frame) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.il.Fwd(bus, f)
	if dst != model.NoForward {
		s.record(string(model.HookFwd), f, true, audit.Forward(dst), "")
	}
	return dst
}

func (s *Server) denyReason() string {
	switch {
	case s.il.RelayMalfunction():
		return "relay malfunction"
	case !s.il.ControlsAllowed():
		return "controls not allowed"
	}
	return "rejected by " + s.il.Mode().String()
}

// record runs under s.mu.
func (s *Server) record(hook string, f model.Frame, ok bool, dest *int, reason string) {
	if s.auditLog == nil {
		return
	}
	err := s.auditLog.Record(audit.AuditEntry{
		SessionID:       s.session,
		Hook:            hook,
		Frame:           audit.RecordFrame(f),
		Decision:        string(model.DecisionOf(ok)),
		Dest:            dest,
		Reason:          reason,
		Mode:            s.il.Mode().String(),
		ControlsAllowed: s.il.ControlsAllowed(),
		ConfigHash:      s.configHash,
	})
	if err != nil {
		s.log.Warn("audit write failed", "hook", hook, "err", err)
	}
}

// SetSafetyMode selects a mode by name or number. Unknown modes fall back
// to nooutput and return an error.
func (s *Server) SetSafetyMode(name string, param int16) error {
	mode, err := safety.ParseMode(name)
	if err != nil {
		mode = unknownMode
		if n, perr := strconv.ParseUint(name, 10, 16); perr == nil {
			mode = safety.Mode(n)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.il.SetSafetyMode(mode, param)
	reason := fmt.Sprintf("mode=%s param=%d", name, param)
	if err != nil {
		reason = err.Error()
	}
	s.record(audit.HookSetSafetyMode, model.Frame{}, err == nil, nil, reason)
	return err
}

// SetRelay asserts the relay malfunction flag.
func (s *Server) SetRelay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.il.SetRelayMalfunction()
	s.record(audit.HookRelay, model.Frame{}, false, nil, "relay malfunction reported")
}

// InterlockStatus reports the interlock status.
func (s *Server) InterlockStatus() safety.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.il.Status()
}

// ReloadConfig re-reads the configuration file. When it changed, a fresh
// interlock is built in the configured mode and swapped in, which also
// drops engagement.
func (s *Server) ReloadConfig() error {
	appCfg, hash, err := config.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if hash == s.configHash {
		return nil
	}
	il, err := s.newInterlock(appCfg)
	if err != nil {
		return err
	}
	s.il = il
	s.appCfg = appCfg
	if s.auditLog != nil {
		s.auditLog.SetSyncEvery(appCfg.AuditSyncEvery)
	}
	s.configHash = hash
	s.record(audit.HookReload, model.Frame{}, true, nil, "config reloaded")
	return nil
}
