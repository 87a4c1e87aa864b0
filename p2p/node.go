// node.go - Prover node and controller dialer.

package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"privacypool/internal/metrics"
	"privacypool/internal/poolerr"
)

// ChannelPath is the HTTP path upgraded to the proof channel.
const ChannelPath = "/proof-channel"

// HandlerFunc processes one message received on link.
type HandlerFunc func(ctx context.Context, link *Link, msg Message)

// Node is the listening end of the proof channel. Each accepted connection is
// read in its own goroutine and every message is dispatched to the handler
// registered for its type.
type Node struct {
	ID      string
	Address string

	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewNode creates a node that will listen on address.
func NewNode(id, address string, log zerolog.Logger) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		ID:      id,
		Address: address,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		handlers: make(map[string]HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "p2p").Str("node", id).Logger(),
	}
}

// RegisterHandler routes messages of msgType to h.
func (n *Node) RegisterHandler(msgType string, h HandlerFunc) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.handlers[msgType] = h
}

// Handler returns the node's HTTP handler, serving the channel at ChannelPath.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ChannelPath, n.serveChannel)
	return mux
}

func (n *Node) serveChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	link := newLink(conn, r.RemoteAddr, n.log)
	defer link.Close()

	n.wg.Add(1)
	defer n.wg.Done()

	n.log.Info().Str("peer", r.RemoteAddr).Msg("peer connected")
	for {
		msg, err := link.Receive(n.ctx)
		if err != nil {
			if !errors.Is(err, ErrLinkClosed) && n.ctx.Err() == nil {
				n.log.Debug().Err(err).Str("peer", r.RemoteAddr).Msg("link ended")
			}
			return
		}

		n.handlersMu.RLock()
		h, ok := n.handlers[msg.Type]
		n.handlersMu.RUnlock()
		if !ok {
			n.log.Warn().Str("type", msg.Type).Msg("unknown message type")
			continue
		}
		h(n.ctx, link, msg)
	}
}

// StartServer begins listening and signals on ready once the socket is bound.
func (n *Node) StartServer(ready chan<- struct{}) error {
	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		return fmt.Errorf("[%s] failed to listen: %w", n.ID, err)
	}
	n.listener = listener
	n.server = &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.log.Info().Str("addr", listener.Addr().String()).Msg("proof channel listening")
		if ready != nil {
			ready <- struct{}{}
		}
		if err := n.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.Error().Err(err).Msg("server failed")
		}
	}()
	return nil
}

// Addr returns the bound address once the server has started.
func (n *Node) Addr() string {
	if n.listener == nil {
		return n.Address
	}
	return n.listener.Addr().String()
}

// Shutdown stops accepting connections, cancels in-flight handlers and waits.
func (n *Node) Shutdown(ctx context.Context) error {
	n.cancel()
	var err error
	if n.server != nil {
		err = n.server.Shutdown(ctx)
	}
	n.wg.Wait()
	return err
}

// ChannelURL returns the websocket URL of the channel served at addr, which may
// be a host:port or an http(s)/ws(s) base URL.
func ChannelURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "http://"):
		addr = "ws://" + strings.TrimPrefix(addr, "http://")
	case strings.HasPrefix(addr, "https://"):
		addr = "wss://" + strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
	default:
		addr = "ws://" + addr
	}
	if strings.HasSuffix(addr, ChannelPath) {
		return addr
	}
	return strings.TrimSuffix(addr, "/") + ChannelPath
}

// Dialer connects to a prover node, probing for readiness on a fixed interval.
type Dialer struct {
	URL      string
	ID       string
	Interval time.Duration
	Attempts int

	ws  *websocket.Dialer
	log zerolog.Logger
}

// NewDialer returns a Dialer for the channel at url.
func NewDialer(id, url string, interval time.Duration, attempts int, log zerolog.Logger) *Dialer {
	if attempts < 1 {
		attempts = 1
	}
	return &Dialer{
		URL:      url,
		ID:       id,
		Interval: interval,
		Attempts: attempts,
		ws:       &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		log:      log.With().Str("component", "p2p").Str("node", id).Logger(),
	}
}

// Dial connects to the prover, retrying up to Attempts times Interval apart.
// Exhausting the attempts fails with ProverUnavailable.
func (d *Dialer) Dial(ctx context.Context) (*Link, error) {
	var last error
	for attempt := 1; attempt <= d.Attempts; attempt++ {
		conn, _, err := d.ws.DialContext(ctx, d.URL, nil)
		if err == nil {
			metrics.ProverDialAttempts.Observe(float64(attempt))
			d.log.Debug().Int("attempt", attempt).Str("url", d.URL).Msg("prover connected")
			return newLink(conn, d.URL, d.log), nil
		}
		last = err
		d.log.Debug().Err(err).Int("attempt", attempt).Msg("prover not ready")
		if attempt == d.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, poolerr.Wrap(poolerr.ProverUnavailable, ctx.Err(), "prover unavailable")
		case <-time.After(d.Interval):
		}
	}
	return nil, poolerr.Wrap(poolerr.ProverUnavailable, last,
		fmt.Sprintf("prover not ready after %d attempts", d.Attempts))
}

// Ping makes a single connection attempt and closes it.
func (d *Dialer) Ping(ctx context.Context) error {
	conn, _, err := d.ws.DialContext(ctx, d.URL, nil)
	if err != nil {
		return err
	}
	return newLink(conn, d.URL, d.log).Close()
}
