// link.go - Websocket link between controller and prover.

package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultWriteTimeout = 10 * time.Second

// ErrLinkClosed is returned after the peer or the local side closed the link.
var ErrLinkClosed = errors.New("p2p: link closed")

// Link is one websocket connection between a controller and a prover.
// Send is safe for concurrent use; Receive must be called from one goroutine.
type Link struct {
	conn      *websocket.Conn
	peer      string
	writeMu   sync.Mutex
	closeOnce sync.Once
	log       zerolog.Logger
}

func newLink(conn *websocket.Conn, peer string, log zerolog.Logger) *Link {
	return &Link{
		conn: conn,
		peer: peer,
		log:  log.With().Str("peer", peer).Logger(),
	}
}

// Peer is the remote address of the link.
func (l *Link) Peer() string { return l.peer }

// Send writes msg, honouring ctx's deadline.
func (l *Link) Send(ctx context.Context, msg Message) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	l.log.Debug().Str("type", msg.Type).Str("request_id", msg.RequestID).Msg("message sent")
	return nil
}

// SendPayload builds an envelope around payload and sends it.
func (l *Link) SendPayload(ctx context.Context, msgType, requestID, senderID string, payload interface{}) error {
	msg, err := NewMessage(msgType, requestID, senderID, payload)
	if err != nil {
		return err
	}
	return l.Send(ctx, msg)
}

// Receive blocks until a message arrives, the link closes or ctx is done.
// A cancelled Receive leaves the link unusable.
func (l *Link) Receive(ctx context.Context) (Message, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var msg Message
	if err := l.conn.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Message{}, ErrLinkClosed
		}
		return Message{}, fmt.Errorf("receive: %w", err)
	}
	l.log.Debug().Str("type", msg.Type).Str("request_id", msg.RequestID).Msg("message received")
	return msg, nil
}

// Close sends a close frame and releases the connection.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}
