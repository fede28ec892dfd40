package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type wsServer struct {
	*httptest.Server
	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		// Drain client writes so the connection stays open.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) push(t *testing.T, f *Frame) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no connection to push on")
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.conns[len(s.conns)-1].Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatal(err)
	}
}

func waitConnected(t *testing.T, c *WSClient) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("client never connected")
}

func TestConnectAndOnConnect(t *testing.T) {
	srv := newWSServer(t)
	c := NewWSClient(srv.url(), nil, zap.NewNop())

	connected := make(chan struct{}, 1)
	c.OnConnect = func() { connected <- struct{}{} }
	c.Start(context.Background())
	defer c.Stop()

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("OnConnect not invoked")
	}
	if !c.IsConnected() {
		t.Error("IsConnected should be true")
	}
}

func TestIncomingFrameReachesHandler(t *testing.T) {
	srv := newWSServer(t)

	frames := make(chan *Frame, 1)
	c := NewWSClient(srv.url(), nil, zap.NewNop())
	c.SetHandler(func(f *Frame) { frames <- f })
	c.Start(context.Background())
	defer c.Stop()
	waitConnected(t, c)

	srv.push(t, &Frame{ID: "f1", Action: ActionCreateMessage, Data: json.RawMessage(`{"k":1}`)})

	select {
	case f := <-frames:
		if f.ID != "f1" || f.Action != ActionCreateMessage {
			t.Errorf("frame = %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:0", nil, zap.NewNop())
	err := c.Send(context.Background(), NewAck("m1", "READ"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestSendDeliversFrame(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, data, err := conn.Read(r.Context())
		if err == nil {
			received <- data
		}
	}))
	defer srv.Close()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil, zap.NewNop())
	c.Start(context.Background())
	defer c.Stop()
	waitConnected(t, c)

	if err := c.Send(context.Background(), NewAck("m1", "DELIVERED")); err != nil {
		t.Fatal(err)
	}
	select {
	case data := <-received:
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatal(err)
		}
		if f.Action != ActionAcknowledgeReceipt {
			t.Errorf("action = %s", f.Action)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("frame never received")
	}
}
