package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ppiankov/cangate/internal/api"
	"github.com/ppiankov/cangate/internal/audit"
	"github.com/ppiankov/cangate/internal/journal"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

type fixture struct {
	srv     *Server
	conn    *grpc.ClientConn
	dir     string
	cfgPath string
	now     *atomic.Uint32
}

func writeConfig(t *testing.T, dir, mode string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := "mode: " + mode + "\n" +
		"audit_log: " + filepath.Join(dir, "audit.jsonl") + "\n" +
		"journal: " + filepath.Join(dir, "journal.db") + "\n" +
		"variants:\n  mitsubishi:\n    engagement: always\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// newFixture starts a server over an in-memory listener.
func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()
	dir := t.TempDir()
	fx := &fixture{dir: dir, cfgPath: writeConfig(t, dir, mode), now: new(atomic.Uint32)}

	srv, err := New(Config{
		ConfigPath: fx.cfgPath,
		Clock:      func() uint32 { return fx.now.Load() },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fx.srv = srv

	lis := bufconn.Listen(1 << 20)
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}
	fx.conn = conn

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		srv.Close()
	})
	return fx
}

func (fx *fixture) transmit(t *testing.T, f model.Frame) bool {
	t.Helper()
	out := new(wrapperspb.BoolValue)
	if err := fx.conn.Invoke(context.Background(), api.MethodTransmit, api.TransmitStruct(f, false), out); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	return out.GetValue()
}

func (fx *fixture) receive(t *testing.T, f model.Frame) bool {
	t.Helper()
	out := new(wrapperspb.BoolValue)
	if err := fx.conn.Invoke(context.Background(), api.MethodReceive, api.FrameStruct(f), out); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return out.GetValue()
}

func (fx *fixture) status(t *testing.T) safety.Status {
	t.Helper()
	out := new(structpb.Struct)
	if err := fx.conn.Invoke(context.Background(), api.MethodStatus, &emptypb.Empty{}, out); err != nil {
		t.Fatalf("Status: %v", err)
	}
	var st safety.Status
	if err := api.FromStruct(out, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestTransmitGatedByEngagement(t *testing.T) {
	fx := newFixture(t, "mitsubishi")

	if fx.transmit(t, mitsubishi.EncodeLKAS(10, 0, 0)) {
		t.Error("transmit before any rx should be denied")
	}
	if !fx.receive(t, mitsubishi.EncodeEPSTorque(0)) {
		t.Fatal("EPS frame should be valid")
	}
	fx.now.Store(10000)
	if !fx.transmit(t, mitsubishi.EncodeLKAS(10, 0, 1)) {
		t.Error("in-limit torque should be allowed once engaged")
	}
	if fx.transmit(t, mitsubishi.EncodeLKAS(1600, 0, 2)) {
		t.Error("torque over the absolute bound should be denied")
	}

	st := fx.status(t)
	if st.ModeName != "mitsubishi" || !st.State.ControlsAllowed {
		t.Errorf("status = %+v", st)
	}
	if st.Counters.TxAllowed != 1 || st.Counters.TxDenied != 2 {
		t.Errorf("counters = %+v", st.Counters)
	}
	if st.State.Torque.Last != 10 {
		t.Errorf("applied torque = %d, want 10", st.State.Torque.Last)
	}
}

func TestNoOutputDeniesEverything(t *testing.T) {
	fx := newFixture(t, "nooutput")
	fx.receive(t, mitsubishi.EncodeEPSTorque(0))
	if fx.transmit(t, mitsubishi.EncodeLKAS(0, 0, 0)) {
		t.Error("nooutput should deny transmit")
	}
}

func TestForwardRPC(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	out := new(wrapperspb.Int32Value)
	if err := fx.conn.Invoke(context.Background(), api.MethodForward, api.FrameStruct(mitsubishi.EncodeEPSTorque(0)), out); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out.GetValue() != model.NoForward {
		t.Errorf("forward = %d, want %d", out.GetValue(), model.NoForward)
	}
}

func TestTransmitInvalidArgument(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	req, _ := structpb.NewStruct(map[string]any{"bus": 9, "addr": 0x399})
	err := fx.conn.Invoke(context.Background(), api.MethodTransmit, req, new(wrapperspb.BoolValue))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestSetSafetyModeRPC(t *testing.T) {
	fx := newFixture(t, "nooutput")

	out := new(structpb.Struct)
	if err := fx.conn.Invoke(context.Background(), api.MethodSetSafetyMode, api.ModeStruct("mitsubishi", 50), out); err != nil {
		t.Fatalf("SetSafetyMode: %v", err)
	}
	var st safety.Status
	if err := api.FromStruct(out, &st); err != nil {
		t.Fatal(err)
	}
	if st.ModeName != "mitsubishi" || st.Param != 50 {
		t.Errorf("status = %+v", st)
	}
}

func TestSetSafetyModeUnknownFallsBack(t *testing.T) {
	fx := newFixture(t, "mitsubishi")

	for _, name := range []string{"bogus", "77"} {
		err := fx.conn.Invoke(context.Background(), api.MethodSetSafetyMode, api.ModeStruct(name, 0), new(structpb.Struct))
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("%s: code = %v, want InvalidArgument", name, status.Code(err))
		}
	}
	st := fx.status(t)
	if st.ModeName != "nooutput" {
		t.Errorf("mode = %s, want nooutput", st.ModeName)
	}
	if st.Counters.ModeErrors != 2 {
		t.Errorf("mode errors = %d, want 2", st.Counters.ModeErrors)
	}
}

func TestRelayMalfunctionRPC(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	fx.receive(t, mitsubishi.EncodeEPSTorque(0))

	if err := fx.conn.Invoke(context.Background(), api.MethodSetRelayMalfunction, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		t.Fatalf("SetRelayMalfunction: %v", err)
	}
	fx.receive(t, mitsubishi.EncodeEPSTorque(0))
	if fx.transmit(t, mitsubishi.EncodeLKAS(0, 0, 0)) {
		t.Error("transmit must be denied while relay malfunction is set")
	}
	st := fx.status(t)
	if !st.State.RelayMalfunction || st.State.ControlsAllowed {
		t.Errorf("state = %+v", st.State)
	}
}

func TestAuditChainAndJournal(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	fx.transmit(t, mitsubishi.EncodeLKAS(10, 0, 0))
	fx.receive(t, mitsubishi.EncodeEPSTorque(0))
	fx.transmit(t, mitsubishi.EncodeLKAS(10, 0, 1))
	session := fx.srv.Session()

	fx.conn.Close()
	fx.srv.GracefulStop()
	if err := fx.srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	auditPath := filepath.Join(fx.dir, "audit.jsonl")
	if vr := audit.Verify(auditPath); !vr.Valid || vr.Lines != 2 {
		t.Errorf("verify = %+v, want 2 valid lines", vr)
	}
	res, err := audit.Session(auditPath, audit.SessionFilter{SessionID: session})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.AllowCount != 1 || res.Summary.TxDenied != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Entries[0].Reason != "controls not allowed" {
		t.Errorf("deny reason = %q", res.Entries[0].Reason)
	}

	j, err := journal.Open(filepath.Join(fx.dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	entries, err := j.List(session, 0)
	if err != nil {
		t.Fatal(err)
	}
	// init in nooutput, init in mitsubishi, engagement on first rx
	if len(entries) != 3 {
		t.Fatalf("journal entries = %d, want 3", len(entries))
	}
	if last := entries[2]; !last.ControlsAllowed || last.Cause != safety.CauseRx {
		t.Errorf("last entry = %+v", last)
	}
}

func TestReloadConfig(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	fx.receive(t, mitsubishi.EncodeEPSTorque(0))

	if err := fx.srv.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig unchanged: %v", err)
	}
	if !fx.status(t).State.ControlsAllowed {
		t.Error("reload of an unchanged file should keep engagement")
	}

	writeConfig(t, fx.dir, "nooutput")
	if err := fx.srv.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	st := fx.status(t)
	if st.ModeName != "nooutput" || st.State.ControlsAllowed {
		t.Errorf("status after reload = %+v", st)
	}
	if fx.srv.AppConfig().Mode != "nooutput" {
		t.Errorf("config mode = %q", fx.srv.AppConfig().Mode)
	}
}

func TestReloadConfigRejectsInvalid(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	if err := os.WriteFile(fx.cfgPath, []byte("mode: warp\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fx.srv.ReloadConfig(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if fx.status(t).ModeName != "mitsubishi" {
		t.Error("failed reload must keep the running mode")
	}
}

func TestConcurrentTransmit(t *testing.T) {
	fx := newFixture(t, "mitsubishi")
	fx.receive(t, mitsubishi.EncodeEPSTorque(0))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := new(wrapperspb.BoolValue)
			err := fx.conn.Invoke(context.Background(), api.MethodTransmit, api.TransmitStruct(mitsubishi.EncodeLKAS(0, 0, 0), false), out)
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent transmit: %v", err)
	}
	if st := fx.status(t); st.Counters.TxAllowed+st.Counters.TxDenied != 50 || st.Counters.Reentrant != 0 {
		t.Errorf("counters = %+v", st.Counters)
	}
}

func TestReloaderPicksUpChange(t *testing.T) {
	fx := newFixture(t, "mitsubishi")

	r, err := NewReloader(fx.srv, []string{fx.cfgPath, filepath.Join(fx.dir, "missing.yaml")})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	if len(r.Paths()) != 1 {
		t.Errorf("watched = %v, want only the existing file", r.Paths())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	writeConfig(t, fx.dir, "nooutput")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fx.srv.AppConfig().Mode == "nooutput" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("mode after reload = %q, want nooutput", fx.srv.AppConfig().Mode)
}
