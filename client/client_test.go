package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"wsiorpc/internal/eventstream"
	"wsiorpc/internal/pending"
	"wsiorpc/internal/sender"
	"wsiorpc/internal/wire"
	"wsiorpc/internal/wsierr"
	"wsiorpc/internal/wstest"
)

func newTestClient(t *testing.T) (*Client, interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, data []byte) error
}) {
	t.Helper()
	clientTr, serverTr := wstest.Pipe()

	c := defaultClient("ws://test")
	c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c.pending = pending.New()
	c.events = eventstream.New(c.eventQueueCap)
	c.tr = clientTr
	c.send = sender.New(clientTr, c.sendQueueCap, c.logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.send.Run(ctx)
	go c.dispatch(ctx)

	return c, serverTr
}

func sendFrame(t *testing.T, tr interface {
	Send(ctx context.Context, data []byte) error
}, f wire.Frame) {
	t.Helper()
	data, err := wire.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(context.Background(), data); err != nil {
		t.Fatal(err)
	}
}

func recvFrame(t *testing.T, tr interface {
	Recv(ctx context.Context) ([]byte, error)
}) wire.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := tr.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f, err := wire.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestClientCallReceivesResponse(t *testing.T) {
	c, server := newTestClient(t)

	done := make(chan struct{})
	var payload []byte
	var callErr error
	go func() {
		payload, callErr = c.Call(context.Background(), "echo", []byte("hi"))
		close(done)
	}()

	req := recvFrame(t, server)
	if req.Op != wire.OpRequest || req.Event != "echo" || string(req.Payload) != "hi" {
		t.Fatalf("req = %+v", req)
	}
	sendFrame(t, server, wire.Response(req.ID, []byte("hi-back")))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Call never returned")
	}
	if callErr != nil {
		t.Fatal(callErr)
	}
	if string(payload) != "hi-back" {
		t.Errorf("payload = %q", payload)
	}
}

func TestClientCallCancellationSendsReset(t *testing.T) {
	c, server := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.Call(ctx, "slow", nil)
		close(done)
	}()

	req := recvFrame(t, server)
	cancel()

	reset := recvFrame(t, server)
	if reset.Op != wire.OpReset || reset.ID != req.ID {
		t.Fatalf("reset = %+v, want Reset(%d)", reset, req.ID)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Call never returned after cancellation")
	}
	if !errors.Is(callErr, wsierr.ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", callErr)
	}
}

func TestClientCallCancellationCarriesCauseVerbatim(t *testing.T) {
	c, server := newTestClient(t)

	cause := errors.New("TimeOut!")
	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.Call(ctx, "slow", nil)
		close(done)
	}()

	recvFrame(t, server)
	cancel(cause)
	recvFrame(t, server) // Reset

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Call never returned after cancellation")
	}
	if !errors.Is(callErr, wsierr.ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", callErr)
	}
	if !errors.Is(callErr, cause) {
		t.Fatalf("err = %v, want to wrap the caller-supplied cause %v verbatim", callErr, cause)
	}
	if !strings.Contains(callErr.Error(), "TimeOut!") {
		t.Fatalf("err = %q, want it to contain the caller-supplied reason text", callErr.Error())
	}
}

func TestClientOnReceivesNotify(t *testing.T) {
	c, server := newTestClient(t)

	stream, err := c.On("ping")
	if err != nil {
		t.Fatal(err)
	}

	sendFrame(t, server, wire.Notify("ping", []byte("pong")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, err := stream.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "pong" {
		t.Errorf("payload = %q", payload)
	}
}

func TestClientSecondOnIsAlreadySubscribed(t *testing.T) {
	c, _ := newTestClient(t)

	if _, err := c.On("x"); err != nil {
		t.Fatal(err)
	}
	_, err := c.On("x")
	if !errors.Is(err, wsierr.ErrAlreadySubscribed) {
		t.Fatalf("err = %v, want ErrAlreadySubscribed", err)
	}
}

func TestClientRemoveEventUnblocksStream(t *testing.T) {
	c, _ := newTestClient(t)
	stream, err := c.On("x")
	if err != nil {
		t.Fatal(err)
	}

	if !c.RemoveEvent("x") {
		t.Error("RemoveEvent = false, want true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = stream.Recv(ctx)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestClientStatusReportsPendingAndEvents(t *testing.T) {
	c, server := newTestClient(t)

	if _, err := c.On("news"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		c.Call(context.Background(), "work", nil)
		close(done)
	}()

	req := recvFrame(t, server)

	deadline := time.Now().Add(2 * time.Second)
	for len(c.Status().PendingIDs) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pending id never observed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	st := c.Status()
	if len(st.PendingIDs) != 1 || st.PendingIDs[0] != req.ID {
		t.Errorf("PendingIDs = %v, want [%d]", st.PendingIDs, req.ID)
	}
	if len(st.ActiveEventNames) != 1 || st.ActiveEventNames[0] != "news" {
		t.Errorf("ActiveEventNames = %v, want [news]", st.ActiveEventNames)
	}

	sendFrame(t, server, wire.Response(req.ID, nil))
	<-done
}

func TestClientCloseDrainsOutstandingCall(t *testing.T) {
	c, _ := newTestClient(t)

	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.Call(context.Background(), "never", nil)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Call never returned after Close")
	}
	if !errors.Is(callErr, wsierr.ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", callErr)
	}
}
