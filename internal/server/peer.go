package server

import (
	"net"
	"sync"
	"time"

	"github.com/eternalApril/starlight/internal/resp"
)

// Peer represents a connected client.
// It wraps a network connection and provides synchronized methods for reading and writing RESP-encoded data
type Peer struct {
	id        int64
	conn      net.Conn
	reader    resp.RequestReader
	writer    resp.Writer
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewPeer initializes a new client peer from a network connection
func NewPeer(conn net.Conn, limits resp.Limits, id int64) *Peer {
	return &Peer{
		id:     id,
		conn:   conn,
		reader: resp.NewDecoderWithLimits(conn, limits),
		writer: resp.NewEncoder(conn),
	}
}

// ID is the server-unique number of the connection
func (p *Peer) ID() int64 {
	return p.id
}

// RemoteAddr returns the client address
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

// ReadRequest reads and decodes the next request from the client's input stream
func (p *Peer) ReadRequest() (resp.Request, error) {
	return p.reader.ReadRequest()
}

// Send encodes a RESP value into the output buffer.
// This method is thread-safe and can be called from multiple goroutines
func (p *Peer) Send(v resp.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// Flush sends all buffered data to the client
func (p *Peer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// InputBuffered returns the number of bytes that can be read from the current buffer
func (p *Peer) InputBuffered() int {
	return p.reader.Buffered()
}

// SetIdleDeadline arms the read deadline, zero disables it
func (p *Peer) SetIdleDeadline(timeout time.Duration) error {
	if timeout <= 0 {
		return p.conn.SetReadDeadline(time.Time{})
	}
	return p.conn.SetReadDeadline(time.Now().Add(timeout))
}

// nudge unblocks a pending read so the connection loop notices shutdown
func (p *Peer) nudge() {
	p.conn.SetReadDeadline(time.Now()) //nolint:errcheck
}

// Close terminates the underlying network connection. Safe to call more than once
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}
