package p2p

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"privacypool/internal/poolerr"
)

type echoPayload struct {
	Content string `json:"content"`
}

// Helper to start a prover-side node behind an httptest server.
func setupTestNode(t *testing.T, handlers map[string]HandlerFunc) (*Node, *httptest.Server) {
	t.Helper()
	node := NewNode("prover", "127.0.0.1:0", zerolog.Nop())
	for msgType, h := range handlers {
		node.RegisterHandler(msgType, h)
	}
	srv := httptest.NewServer(node.Handler())
	t.Cleanup(func() {
		srv.Close()
		node.cancel()
	})
	return node, srv
}

func testDialer(url string) *Dialer {
	return NewDialer("controller", ChannelURL(url), 10*time.Millisecond, 3, zerolog.Nop())
}

func TestRequestResponse(t *testing.T) {
	_, srv := setupTestNode(t, map[string]HandlerFunc{
		TypeGenerateProof: func(ctx context.Context, link *Link, msg Message) {
			var in echoPayload
			if err := msg.Decode(&in); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if err := link.SendPayload(ctx, TypeProofResponse, msg.RequestID, "prover", echoPayload{Content: "re: " + in.Content}); err != nil {
				t.Errorf("reply: %v", err)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	link, err := testDialer(srv.URL).Dial(ctx)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer link.Close()
	if link.Peer() != ChannelURL(srv.URL) {
		t.Errorf("Peer() = %q, want %q", link.Peer(), ChannelURL(srv.URL))
	}

	if err := link.SendPayload(ctx, TypeGenerateProof, "req-1", "controller", echoPayload{Content: "hello"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msg, err := link.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if msg.Type != TypeProofResponse || msg.RequestID != "req-1" || msg.SenderID != "prover" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	var out echoPayload
	if err := msg.Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Content != "re: hello" {
		t.Errorf("got %q", out.Content)
	}
}

func TestUnknownTypeIsIgnored(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	_, srv := setupTestNode(t, map[string]HandlerFunc{
		TypeGenerateProof: func(ctx context.Context, link *Link, msg Message) {
			mu.Lock()
			seen = append(seen, msg.RequestID)
			mu.Unlock()
			_ = link.SendPayload(ctx, TypeProofResponse, msg.RequestID, "prover", nil)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	link, err := testDialer(srv.URL).Dial(ctx)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer link.Close()

	if err := link.Send(ctx, Message{Type: "bogus", RequestID: "x"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := link.Send(ctx, Message{Type: TypeGenerateProof, RequestID: "y"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msg, err := link.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if msg.RequestID != "y" {
		t.Fatalf("expected reply to y, got %q", msg.RequestID)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "y" {
		t.Errorf("handler saw %v", seen)
	}
}

func TestDialProverUnavailable(t *testing.T) {
	// Reserve a port and release it so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	d := NewDialer("controller", ChannelURL(addr), 20*time.Millisecond, 3, zerolog.Nop())
	start := time.Now()
	_, err = d.Dial(context.Background())
	if !errors.Is(err, poolerr.ErrProverUnavailable) {
		t.Fatalf("expected ProverUnavailable, got %v", err)
	}
	// Two waits between three attempts.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("gave up after %v, expected at least two dial intervals", elapsed)
	}
}

func TestDialWaitsForProver(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	node := NewNode("prover", addr, zerolog.Nop())
	go func() {
		time.Sleep(60 * time.Millisecond)
		if err := node.StartServer(nil); err != nil {
			t.Errorf("StartServer failed: %v", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		node.Shutdown(ctx)
	}()

	d := NewDialer("controller", ChannelURL(addr), 25*time.Millisecond, 20, zerolog.Nop())
	link, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	link.Close()
}

func TestReceiveHonoursContext(t *testing.T) {
	_, srv := setupTestNode(t, nil)
	link, err := testDialer(srv.URL).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := link.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestChannelURL(t *testing.T) {
	cases := map[string]string{
		"localhost:8090":            "ws://localhost:8090/proof-channel",
		"http://127.0.0.1:1234":     "ws://127.0.0.1:1234/proof-channel",
		"https://prover.example/":   "wss://prover.example/proof-channel",
		"ws://host:1/proof-channel": "ws://host:1/proof-channel",
	}
	for in, want := range cases {
		if got := ChannelURL(in); got != want {
			t.Errorf("ChannelURL(%q) = %q, want %q", in, got, want)
		}
	}
}
