// Package tcp is a minimal real ClusterNetwork transport: one persistent,
// auto-reconnecting outbound connection per peer, framed length-prefixed
// network.Wired messages. It exists to give the node command line something
// concrete to run against; the wire format and connection lifecycle are
// explicitly out of scope for the engine itself (spec.md §1), so this
// package is kept deliberately small and swappable behind network.ClusterNetwork.
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

const maxFrameSize = 16 << 20 // 16 MiB, generous for a snapshot-bearing SyncResponse

// Transport is a network.ClusterNetwork backed by TCP connections dialed
// from the multiaddrs in a topology.Config.
type Transport struct {
	self     types.NodeId
	addrs    map[types.NodeId]string // dial targets, host:port form
	codec    *network.GobCodec
	log      *slog.Logger
	inbox    chan network.Wired
	listener net.Listener

	mu    sync.Mutex
	conns map[types.NodeId]*outboundConn
}

type outboundConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// New builds a Transport for self, dialing peers at the given host:port
// addresses (already resolved from their multiaddrs by the caller).
func New(self types.NodeId, addrs map[types.NodeId]string, codec *network.GobCodec, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		self:  self,
		addrs: addrs,
		codec: codec,
		log:   log,
		inbox: make(chan network.Wired, 256),
		conns: make(map[types.NodeId]*outboundConn),
	}
}

// Listen starts accepting inbound connections on addr (host:port). Received
// messages are delivered to Inbox.
func (t *Transport) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp: listening on %s: %w", addr, err)
	}
	t.listener = ln
	go t.acceptLoop(ctx, ln)
	return nil
}

func (t *Transport) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				t.log.Warn("accept failed", logger.Error(err))
				return
			}
		}
		go t.readLoop(conn)
	}
}

func (t *Transport) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				t.log.Warn("tcp read failed, dropping connection", logger.Error(err))
			}
			return
		}
		msg, err := t.codec.Decode(frame)
		if err != nil {
			t.log.Warn("tcp decode failed, dropping message", logger.Error(err))
			continue
		}
		t.inbox <- msg
	}
}

// Inbox exposes decoded messages for the node's receive loop to route.
func (t *Transport) Inbox() <-chan network.Wired { return t.inbox }

// Send implements network.ClusterNetwork.
func (t *Transport) Send(ctx context.Context, target types.NodeId, msg network.Wired) error {
	conn, err := t.dial(target)
	if err != nil {
		return err // transient I/O, caller logs and moves on (§7)
	}
	frame, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("tcp: encoding %s: %w", msg.MessageKind(), err)
	}
	if err := writeFrame(conn, frame); err != nil {
		// Forget the broken connection so the next Send re-dials the peer.
		t.mu.Lock()
		oc := t.conns[target]
		t.mu.Unlock()
		oc.mu.Lock()
		if oc.conn == conn {
			oc.conn = nil
		}
		oc.mu.Unlock()
		_ = conn.Close()
		return err
	}
	return nil
}

// Broadcast implements network.ClusterNetwork, fanning out to every
// configured peer except self. Best-effort: per-peer failures are logged,
// not returned, so one unreachable peer never blocks delivery to the rest.
func (t *Transport) Broadcast(ctx context.Context, msg network.Wired) error {
	for id := range t.addrs {
		if id == t.self {
			continue
		}
		if err := t.Send(ctx, id, msg); err != nil {
			t.log.Warn("broadcast send failed", logger.NodeID(string(id)), logger.Error(err))
		}
	}
	return nil
}

func (t *Transport) dial(target types.NodeId) (net.Conn, error) {
	t.mu.Lock()
	oc, ok := t.conns[target]
	if !ok {
		oc = &outboundConn{}
		t.conns[target] = oc
	}
	t.mu.Unlock()

	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.conn != nil {
		return oc.conn, nil
	}
	addr, ok := t.addrs[target]
	if !ok {
		return nil, fmt.Errorf("tcp: no known address for %s", target)
	}
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tcp: dialing %s at %s: %w", target, addr, err)
	}
	oc.conn = conn
	return conn, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("tcp: frame of %d bytes exceeds max %d", size, maxFrameSize)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// AddrsFromConfig derives the dial-address map from a topology.Config,
// extracting host:port from each core node's multiaddr.
func AddrsFromConfig(cfg *topology.Config) (map[types.NodeId]string, error) {
	out := make(map[types.NodeId]string, len(cfg.CoreNodes))
	for _, n := range cfg.CoreNodes {
		ma, err := n.Multiaddr()
		if err != nil {
			return nil, fmt.Errorf("tcp: invalid address for %s: %w", n.ID, err)
		}
		host, port, err := hostPortFromMultiaddr(ma)
		if err != nil {
			return nil, fmt.Errorf("tcp: deriving host:port for %s: %w", n.ID, err)
		}
		out[n.ID] = net.JoinHostPort(host, port)
	}
	return out, nil
}

// hostPortFromMultiaddr extracts host and port from a /ip4|ip6/../tcp/..
// multiaddr, the only form topology.Config's addresses are expected to use.
func hostPortFromMultiaddr(ma multiaddr.Multiaddr) (host, port string, err error) {
	host, err = ma.ValueForProtocol(multiaddr.P_IP4)
	if err != nil {
		host, err = ma.ValueForProtocol(multiaddr.P_IP6)
		if err != nil {
			return "", "", fmt.Errorf("no ip4/ip6 component: %w", err)
		}
	}
	port, err = ma.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		return "", "", fmt.Errorf("no tcp component: %w", err)
	}
	return host, port, nil
}
