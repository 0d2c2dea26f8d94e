// Package bridge connects the daemon to a compositor shim over a unix
// socket. The shim enumerates windows and monitors on connect, streams
// window events as JSON lines, and executes the mutation commands the
// daemon writes back. The bridge caches what the shim reports and exposes
// it through the window-manager collaborator interfaces.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/domain/wm"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/shared/types"
)

var (
	// ErrDisconnected is returned by window mutations while no shim is
	// connected.
	ErrDisconnected = errors.New("bridge: shim not connected")
	// ErrWindowGone is returned by mutations on a window the shim no
	// longer reports.
	ErrWindowGone = errors.New("bridge: window gone")
)

// Bridge implements wm.Source and wm.Monitors on top of a shim connection.
// One shim at a time; a new connection replaces the previous one.
type Bridge struct {
	path   string
	log    *logging.Logger
	events chan wm.Event

	mu       sync.Mutex
	conn     net.Conn
	writer   *bufio.Writer
	windows  map[uint64]types.WindowInfo
	monitors []types.MonitorInfo
}

// New creates a bridge that will listen on the given socket path.
func New(path string, log *logging.Logger) *Bridge {
	return &Bridge{
		path:    path,
		log:     log.Named("bridge"),
		events:  make(chan wm.Event, 256),
		windows: make(map[uint64]types.WindowInfo),
	}
}

// Serve accepts shim connections until ctx is canceled. Blocks.
func (b *Bridge) Serve(ctx context.Context) error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bridge: stale socket: %w", err)
	}
	ln, err := net.Listen("unix", b.path)
	if err != nil {
		return fmt.Errorf("bridge: listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer os.Remove(b.path)

	b.log.Info("listening for shim", zap.String("socket", b.path))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bridge: accept: %w", err)
		}
		b.attach(conn)
		b.read(conn)
		b.detach(conn)
	}
}

func (b *Bridge) attach(conn net.Conn) {
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.writer = bufio.NewWriter(conn)
	b.mu.Unlock()
	b.log.Info("shim connected")
}

func (b *Bridge) detach(conn net.Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
		b.writer = nil
	}
	b.mu.Unlock()
	conn.Close()
	b.log.Info("shim disconnected")
}

func (b *Bridge) read(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg message
		if err := sonic.Unmarshal(line, &msg); err != nil {
			b.log.Warn("undecodable shim message", zap.Error(err))
			continue
		}
		b.handle(msg)
	}
}

func (b *Bridge) handle(msg message) {
	switch msg.Type {
	case "sync":
		b.mu.Lock()
		b.windows = make(map[uint64]types.WindowInfo, len(msg.Windows))
		for _, w := range msg.Windows {
			b.windows[w.Sequence] = w.info()
		}
		if msg.Monitors != nil {
			b.monitors = monitorInfos(msg.Monitors)
		}
		b.mu.Unlock()
	case "monitors":
		b.mu.Lock()
		b.monitors = monitorInfos(msg.Monitors)
		b.mu.Unlock()
	case "event":
		b.handleEvent(msg)
	default:
		b.log.Warn("unknown shim message", zap.String("type", msg.Type))
	}
}

func (b *Bridge) handleEvent(msg message) {
	if msg.Window == nil {
		return
	}
	info := msg.Window.info()

	b.mu.Lock()
	if msg.Kind == "destroyed" {
		delete(b.windows, info.Sequence)
	} else {
		b.windows[info.Sequence] = info
	}
	b.mu.Unlock()

	var kind wm.EventKind
	switch msg.Kind {
	case "created":
		kind = wm.EventCreated
	case "changed":
		kind = wm.EventChanged
	case "destroyed":
		kind = wm.EventDestroyed
	case "class_changed":
		kind = wm.EventClassChanged
	default:
		b.log.Warn("unknown event kind", zap.String("kind", msg.Kind))
		return
	}
	b.events <- wm.Event{
		Kind:     kind,
		Window:   &window{bridge: b, seq: info.Sequence, last: info},
		OldClass: msg.OldClass,
	}
}

// Windows returns handles for the currently reported window set.
func (b *Bridge) Windows() []wm.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wm.Handle, 0, len(b.windows))
	for seq, info := range b.windows {
		out = append(out, &window{bridge: b, seq: seq, last: info})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].(*window).seq < out[j].(*window).seq
	})
	return out
}

// Events returns the shim notification stream.
func (b *Bridge) Events() <-chan wm.Event {
	return b.events
}

func (b *Bridge) send(cmd command) error {
	data, err := sonic.Marshal(cmd)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer == nil {
		return ErrDisconnected
	}
	if _, err := b.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	return b.writer.Flush()
}

// ByID resolves a monitor by its opaque identifier.
func (b *Bridge) ByID(id string) (types.MonitorInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.monitors {
		if m.ID == id && id != "" {
			return m, true
		}
	}
	return types.MonitorInfo{}, false
}

// ByConnector resolves a monitor by connector name (DP-1, HDMI-2, ...).
func (b *Bridge) ByConnector(connector string) (types.MonitorInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.monitors {
		if m.Connector == connector && connector != "" {
			return m, true
		}
	}
	return types.MonitorInfo{}, false
}

// ByFingerprint resolves a monitor by its layout fingerprint.
func (b *Bridge) ByFingerprint(fp string) (types.MonitorInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.monitors {
		if m.Fingerprint() == fp {
			return m, true
		}
	}
	return types.MonitorInfo{}, false
}

// ByIndex resolves a monitor by position in the layout.
func (b *Bridge) ByIndex(index int) (types.MonitorInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.monitors {
		if m.Index == index {
			return m, true
		}
	}
	return types.MonitorInfo{}, false
}

// Primary returns the primary monitor, or the zero value before the first
// sync.
func (b *Bridge) Primary() types.MonitorInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.monitors {
		if m.Primary {
			return m
		}
	}
	if len(b.monitors) > 0 {
		return b.monitors[0]
	}
	return types.MonitorInfo{}
}

// All returns the current monitor layout.
func (b *Bridge) All() []types.MonitorInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.MonitorInfo, len(b.monitors))
	copy(out, b.monitors)
	return out
}

func (b *Bridge) lookup(seq uint64) (types.WindowInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.windows[seq]
	return info, ok
}
