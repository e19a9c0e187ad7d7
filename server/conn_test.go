package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"wsiorpc/internal/wire"
	"wsiorpc/internal/wsierr"
	"wsiorpc/internal/wstest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func newTestConn(t *testing.T) (*Conn, wstest_peer) {
	t.Helper()
	server, peer := wstest.Pipe()
	c := newConn("c1", &ClientInfo{Name: "test"}, server, 16, 16, nil, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.send.Run(ctx)
	go c.dispatch(ctx)
	return c, wstest_peer{peer}
}

type wstest_peer struct {
	tr interface {
		Recv(ctx context.Context) ([]byte, error)
		Send(ctx context.Context, data []byte) error
	}
}

func (p wstest_peer) sendFrame(t *testing.T, f wire.Frame) {
	t.Helper()
	data, err := wire.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.tr.Send(context.Background(), data); err != nil {
		t.Fatal(err)
	}
}

func (p wstest_peer) recvFrame(t *testing.T) wire.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := p.tr.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f, err := wire.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestConnDeliversNotifyProcedure(t *testing.T) {
	c, peer := newTestConn(t)
	peer.sendFrame(t, wire.Notify("ping", []byte("hi")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	proc, err := c.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if proc.Kind != KindNotify || proc.Event != "ping" || string(proc.Payload) != "hi" {
		t.Errorf("proc = %+v", proc)
	}

	if err := proc.Answer(ctx, []byte("nope")); !errors.Is(err, wsierr.ErrNotACall) {
		t.Fatalf("Answer on a Notify: err = %v, want ErrNotACall", err)
	}
}

func TestConnCallAnswerRoundTrip(t *testing.T) {
	c, peer := newTestConn(t)
	peer.sendFrame(t, wire.Request(42, "echo", []byte("hello")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	proc, err := c.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if proc.Kind != KindCall || proc.Event != "echo" {
		t.Fatalf("proc = %+v", proc)
	}
	if err := proc.Answer(ctx, []byte("hello-back")); err != nil {
		t.Fatal(err)
	}

	resp := peer.recvFrame(t)
	if resp.Op != wire.OpResponse || resp.ID != 42 || string(resp.Payload) != "hello-back" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestConnResetAbortsSpawnedTask(t *testing.T) {
	c, peer := newTestConn(t)
	peer.sendFrame(t, wire.Request(7, "slow", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	proc, err := c.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cancelled := make(chan struct{})
	proc.SpawnAndAbortOnReset(func(taskCtx context.Context) {
		<-taskCtx.Done()
		close(cancelled)
	})

	peer.sendFrame(t, wire.Reset(7))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not aborted on Reset")
	}
}

func TestConnDoubleAnswerIsDoubleSend(t *testing.T) {
	c, peer := newTestConn(t)
	peer.sendFrame(t, wire.Request(1, "once", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	proc, err := c.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := proc.Answer(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}
	err = proc.Answer(ctx, []byte("b"))
	if !errors.Is(err, wsierr.ErrDoubleSend) {
		t.Fatalf("err = %v, want ErrDoubleSend", err)
	}
}

func TestConnCloseEndsRecv(t *testing.T) {
	c, _ := newTestConn(t)
	c.Close("test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Recv(ctx)
	if !errors.Is(err, wsierr.ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
}

func TestConnRejectsRequestByAuthorizer(t *testing.T) {
	server, peer := wstest.Pipe()
	denyAll := func(info *ClientInfo, event string) bool { return false }
	c := newConn("c1", &ClientInfo{Name: "test"}, server, 16, 16, nil, denyAll, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.send.Run(ctx)
	go c.dispatch(ctx)
	p := wstest_peer{peer}

	p.sendFrame(t, wire.Request(9, "restricted", nil))

	resp := p.recvFrame(t)
	if resp.Op != wire.OpResponse || resp.ID != 9 {
		t.Fatalf("resp = %+v, want an immediate Response(9, ...)", resp)
	}
	if string(resp.Payload) != wsierr.ErrForbidden.Error() {
		t.Errorf("payload = %q, want forbidden message", resp.Payload)
	}
}

func TestConnRejectsRequestByRateLimiter(t *testing.T) {
	server, peer := wstest.Pipe()
	limiter := rate.NewLimiter(0, 0) // never allows a request through
	c := newConn("c1", &ClientInfo{Name: "test"}, server, 16, 16, limiter, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.send.Run(ctx)
	go c.dispatch(ctx)
	p := wstest_peer{peer}

	p.sendFrame(t, wire.Request(3, "busy", nil))

	resp := p.recvFrame(t)
	if resp.Op != wire.OpResponse || resp.ID != 3 {
		t.Fatalf("resp = %+v, want an immediate Response(3, ...)", resp)
	}
	if string(resp.Payload) != wsierr.ErrRateLimited.Error() {
		t.Errorf("payload = %q, want rate-limited message", resp.Payload)
	}
}
