package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/rs/zerolog"
)

const ackTimeout = 10 * time.Second

// ErrBridgeClosed is returned for commands after the connection is gone.
var ErrBridgeClosed = errors.New("host bridge closed")

// HostBridge speaks the kiosk shell's half of the websocket protocol and
// presents it to the session core as a lockdown.HostController. Commands
// go out as events and block on the shell's ack; raw host-layer signals
// coming in are fanned out to the registered callbacks.
type HostBridge struct {
	conn *Conn
	log  zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(chord string)
	acks   map[string]chan error
	closed bool
}

// NewHostBridge builds a bridge over an upgraded connection.
func NewHostBridge(conn *Conn, log zerolog.Logger) *HostBridge {
	return &HostBridge{
		conn: conn,
		log:  log.With().Str("component", "host_bridge").Logger(),
		subs: make(map[string]map[int]func(string)),
		acks: make(map[string]chan error),
	}
}

// OpenRestrictedWindow asks the shell to create the kiosk surface.
func (b *HostBridge) OpenRestrictedWindow(ctx context.Context, quizID string) error {
	return b.command(ctx, CommandOpenWindow, quizID)
}

// ReleaseRestrictions asks the shell to lift kiosk enforcement.
func (b *HostBridge) ReleaseRestrictions(ctx context.Context) error {
	return b.command(ctx, CommandReleaseRestrictions, "")
}

// CloseRestrictedWindow asks the shell to destroy the kiosk surface.
func (b *HostBridge) CloseRestrictedWindow(ctx context.Context) error {
	return b.command(ctx, CommandCloseWindow, "")
}

func (b *HostBridge) command(ctx context.Context, cmd, quizID string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	if _, pending := b.acks[cmd]; pending {
		b.mu.Unlock()
		return fmt.Errorf("command %s already pending", cmd)
	}
	ack := make(chan error, 1)
	b.acks[cmd] = ack
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.acks, cmd)
		b.mu.Unlock()
	}()

	if err := b.conn.Send(CommandResponse{Event: EventCommand, Command: cmd, QuizID: quizID}); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ackTimeout):
		return fmt.Errorf("command %s: ack timeout", cmd)
	}
}

// HandleAck resolves a pending command with the shell's verdict. The
// send must never block: the waiter may already have left through its
// timeout branch, and a duplicate ack finds the buffer full.
func (b *HostBridge) HandleAck(cmd string, ok bool, errMsg string) {
	b.mu.Lock()
	ack := b.acks[cmd]
	b.mu.Unlock()
	if ack == nil {
		b.log.Warn().Str("command", cmd).Msg("Ack for unknown command")
		return
	}
	var err error
	if !ok {
		err = fmt.Errorf("shell rejected %s: %s", cmd, errMsg)
	}
	select {
	case ack <- err:
	default:
		b.log.Warn().Str("command", cmd).Msg("Dropping duplicate ack")
	}
}

// DispatchHostEvent fans a raw kiosk-layer signal out to subscribers.
func (b *HostBridge) DispatchHostEvent(evType, chord string) {
	b.mu.Lock()
	fns := make([]func(string), 0, len(b.subs[evType]))
	for _, fn := range b.subs[evType] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(chord)
	}
}

// Close fails all pending command acks and detaches every subscriber.
// Called when the websocket drops.
func (b *HostBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for cmd, ack := range b.acks {
		select {
		case ack <- fmt.Errorf("command %s: %w", cmd, ErrBridgeClosed):
		default:
		}
	}
	b.subs = make(map[string]map[int]func(string))
}

func (b *HostBridge) subscribe(evType string, fn func(chord string)) lockdown.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[evType] == nil {
		b.subs[evType] = make(map[int]func(string))
	}
	b.subs[evType][id] = fn
	return bridgeSub{bridge: b, evType: evType, id: id}
}

// OnBlur registers a callback for kiosk window blur.
func (b *HostBridge) OnBlur(fn func()) lockdown.Subscription {
	return b.subscribe(string(lockdown.EventBlur), func(string) { fn() })
}

// OnLeaveFullscreen registers a callback for fullscreen exit.
func (b *HostBridge) OnLeaveFullscreen(fn func()) lockdown.Subscription {
	return b.subscribe(string(lockdown.EventLeaveFullscreen), func(string) { fn() })
}

// OnMinimizeAttempt registers a callback for minimize attempts.
func (b *HostBridge) OnMinimizeAttempt(fn func()) lockdown.Subscription {
	return b.subscribe(string(lockdown.EventMinimize), func(string) { fn() })
}

// OnCloseAttempt registers a callback for close attempts.
func (b *HostBridge) OnCloseAttempt(fn func()) lockdown.Subscription {
	return b.subscribe(string(lockdown.EventCloseAttempt), func(string) { fn() })
}

// OnForbiddenKeyChord registers a callback for forbidden key chords.
func (b *HostBridge) OnForbiddenKeyChord(fn func(chord string)) lockdown.Subscription {
	return b.subscribe(string(lockdown.EventKeyChord), fn)
}

type bridgeSub struct {
	bridge *HostBridge
	evType string
	id     int
}

// Unsubscribe removes the callback; it never fires again afterwards.
func (s bridgeSub) Unsubscribe() {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	delete(s.bridge.subs[s.evType], s.id)
}
