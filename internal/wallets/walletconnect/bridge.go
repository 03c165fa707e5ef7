package walletconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/mrz1836/walletlink/internal/wallet"
)

const writeTimeout = 10 * time.Second

// bridge is one websocket connection to a WalletConnect bridge, subscribed
// to the client's own topic. Incoming payloads are decrypted and handed to
// onPayload from the read loop.
type bridge struct {
	conn     *websocket.Conn
	clientID string
	key      []byte
	log      wallet.Logger

	onPayload func(data []byte)
	onLost    func(b *bridge, err error)

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

func dialBridge(ctx context.Context, dialer *websocket.Dialer, url, clientID string, key []byte, log wallet.Logger,
	onPayload func([]byte), onLost func(*bridge, error),
) (*bridge, error) {
	conn, _, err := dialer.DialContext(ctx, SocketURL(url), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing walletconnect bridge: %w", err)
	}

	b := &bridge{
		conn:      conn,
		clientID:  clientID,
		key:       key,
		log:       log,
		onPayload: onPayload,
		onLost:    onLost,
		done:      make(chan struct{}),
	}
	if err := b.write(Message{Topic: clientID, Type: TypeSub, Silent: true}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go b.readLoop()
	return b, nil
}

func (b *bridge) readLoop() {
	defer close(b.done)

	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			if !b.closed.Load() && b.onLost != nil {
				b.onLost(b, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Debug("walletconnect: dropping malformed bridge message: %v", err)
			continue
		}
		if msg.Type != TypePub || msg.Topic != b.clientID {
			continue
		}
		if err := b.write(Message{Topic: b.clientID, Type: TypeAck, Silent: true}); err != nil {
			b.log.Debug("walletconnect: ack: %v", err)
		}

		var payload Payload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			b.log.Debug("walletconnect: dropping malformed payload: %v", err)
			continue
		}
		plain, err := Decrypt(payload, b.key)
		if err != nil {
			b.log.Error("walletconnect: dropping payload: %v", err)
			continue
		}
		b.onPayload(plain)
	}
}

// publish encrypts v and sends it to topic.
func (b *bridge) publish(topic string, v any, silent bool) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding walletconnect payload: %w", err)
	}
	payload, err := Encrypt(plain, b.key)
	if err != nil {
		return err
	}
	sealed, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding walletconnect payload: %w", err)
	}
	return b.write(Message{Topic: topic, Type: TypePub, Payload: string(sealed), Silent: silent})
}

func (b *bridge) write(msg Message) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("writing walletconnect message: %w", err)
	}
	return nil
}

// close shuts the connection. With wait set it blocks until the read loop
// has exited; the read loop itself must not wait.
func (b *bridge) close(wait bool) {
	if !b.closed.CompareAndSwap(false, true) {
		if wait {
			<-b.done
		}
		return
	}

	b.writeMu.Lock()
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	b.writeMu.Unlock()
	_ = b.conn.Close()

	if wait {
		<-b.done
	}
}

// lost is closed when the connection ends.
func (b *bridge) lost() <-chan struct{} {
	return b.done
}
