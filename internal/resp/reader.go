package resp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrIncomplete means the buffer ends before a full frame; read more and retry
	ErrIncomplete = errors.New("resp: incomplete input")

	// ErrProtocol marks malformed framing. The stream cannot be resynchronized after it
	ErrProtocol = errors.New("resp: protocol error")

	ErrInvalidEnding = errors.New("invalid line ending")
)

// maxHeaderLen bounds "*<n>\r\n", "$<n>\r\n" and ":<n>\r\n" lines
const maxHeaderLen = 32

// maxNesting bounds array depth when decoding replies
const maxNesting = 64

// Limits are the ceilings a decoder enforces on declared sizes
type Limits struct {
	MaxBulkLen   int // largest bulk string payload
	MaxArrayLen  int // most elements in one multi-bulk request or array
	MaxInlineLen int // longest inline request line
}

// DefaultLimits mirrors the stock Redis server ceilings
func DefaultLimits() Limits {
	return Limits{
		MaxBulkLen:   512 * 1024 * 1024,
		MaxArrayLen:  1024 * 1024,
		MaxInlineLen: 64 * 1024,
	}
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// parser walks a byte buffer without consuming it until a whole frame is seen
type parser struct {
	buf    []byte
	pos    int
	limits Limits
}

// line returns the next CRLF-terminated line without its terminator
func (p *parser) line(maxLen int) ([]byte, error) {
	rest := p.buf[p.pos:]
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		if len(rest) > maxLen {
			return nil, protocolError("line exceeds %d bytes", maxLen)
		}
		return nil, ErrIncomplete
	}
	if idx > maxLen {
		return nil, protocolError("line exceeds %d bytes", maxLen)
	}
	if idx == 0 || rest[idx-1] != '\r' {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, ErrInvalidEnding)
	}
	p.pos += idx + 1
	return rest[:idx-1], nil
}

// length reads a "<n>\r\n" header body that must be a decimal integer >= -1
func (p *parser) length(what string) (int, error) {
	line, err := p.line(maxHeaderLen)
	if err != nil {
		return 0, err
	}
	n, ok := parseDecimal(line)
	if !ok || n < -1 {
		return 0, protocolError("invalid %s length %q", what, line)
	}
	return int(n), nil
}

// bulk reads a bulk payload of n bytes plus CRLF and returns a private copy
func (p *parser) bulk(n int) ([]byte, error) {
	if n > p.limits.MaxBulkLen {
		return nil, protocolError("bulk length %d exceeds limit %d", n, p.limits.MaxBulkLen)
	}
	if len(p.buf)-p.pos < n+2 {
		return nil, ErrIncomplete
	}
	end := p.pos + n
	if p.buf[end] != '\r' || p.buf[end+1] != '\n' {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, ErrInvalidEnding)
	}
	out := make([]byte, n)
	copy(out, p.buf[p.pos:end])
	p.pos = end + 2
	return out, nil
}

func (p *parser) multiBulk() (Request, error) {
	p.pos++ // '*'
	count, err := p.length("multibulk")
	if err != nil {
		return Request{}, err
	}
	if count <= 0 {
		return Request{}, nil
	}
	if count > p.limits.MaxArrayLen {
		return Request{}, protocolError("multibulk length %d exceeds limit %d", count, p.limits.MaxArrayLen)
	}

	args := make([][]byte, 0, min(count, 64))
	for i := 0; i < count; i++ {
		if p.pos >= len(p.buf) {
			return Request{}, ErrIncomplete
		}
		if p.buf[p.pos] != TypeBulkString {
			return Request{}, protocolError("expected '$', got %q", p.buf[p.pos])
		}
		p.pos++
		n, err := p.length("bulk")
		if err != nil {
			return Request{}, err
		}
		if n < 0 {
			return Request{}, protocolError("nil bulk string in request")
		}
		arg, err := p.bulk(n)
		if err != nil {
			return Request{}, err
		}
		args = append(args, arg)
	}

	return Request{Args: args}, nil
}

func (p *parser) inline() (Request, error) {
	rest := p.buf[p.pos:]
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		if len(rest) > p.limits.MaxInlineLen {
			return Request{}, protocolError("inline request exceeds %d bytes", p.limits.MaxInlineLen)
		}
		return Request{}, ErrIncomplete
	}
	if idx > p.limits.MaxInlineLen {
		return Request{}, protocolError("inline request exceeds %d bytes", p.limits.MaxInlineLen)
	}
	p.pos += idx + 1

	fields := bytes.Fields(rest[:idx])
	if len(fields) == 0 {
		return Request{}, nil
	}
	args := make([][]byte, len(fields))
	for i, f := range fields {
		args[i] = append([]byte(nil), f...)
	}
	return Request{Args: args}, nil
}

func (p *parser) value(depth int) (Value, error) {
	if p.pos >= len(p.buf) {
		return Value{}, ErrIncomplete
	}
	if depth > maxNesting {
		return Value{}, protocolError("nesting deeper than %d", maxNesting)
	}

	typ := p.buf[p.pos]
	p.pos++

	switch typ {
	case TypeSimpleString, TypeError:
		line, err := p.line(p.limits.MaxInlineLen)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typ, String: append([]byte{}, line...)}, nil

	case TypeInteger:
		line, err := p.line(maxHeaderLen)
		if err != nil {
			return Value{}, err
		}
		n, ok := parseDecimal(line)
		if !ok {
			return Value{}, protocolError("invalid integer %q", line)
		}
		return MakeInteger(n), nil

	case TypeBulkString:
		n, err := p.length("bulk")
		if err != nil {
			return Value{}, err
		}
		if n < 0 {
			return MakeNilBulkString(), nil
		}
		b, err := p.bulk(n)
		if err != nil {
			return Value{}, err
		}
		return MakeBulkBytes(b), nil

	case TypeArray:
		n, err := p.length("array")
		if err != nil {
			return Value{}, err
		}
		if n < 0 {
			return MakeNilArray(), nil
		}
		if n > p.limits.MaxArrayLen {
			return Value{}, protocolError("array length %d exceeds limit %d", n, p.limits.MaxArrayLen)
		}
		items := make([]Value, 0, min(n, 64))
		for i := 0; i < n; i++ {
			item, err := p.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return MakeArray(items), nil
	}

	return Value{}, protocolError("unexpected type byte %q", typ)
}

// ParseRequest decodes one request from the front of buf and reports how many
// bytes it used. The multi-bulk form is chosen when buf starts with '*',
// otherwise the line is read as an inline command.
// ErrIncomplete is returned until the whole request is present
func ParseRequest(buf []byte, limits Limits) (Request, int, error) {
	if len(buf) == 0 {
		return Request{}, 0, ErrIncomplete
	}

	p := parser{buf: buf, limits: limits}

	var (
		req Request
		err error
	)
	if buf[0] == TypeArray {
		req, err = p.multiBulk()
	} else {
		req, err = p.inline()
	}
	if err != nil {
		return Request{}, 0, err
	}

	return req, p.pos, nil
}

// DecodeRequests decodes every complete request in buf and returns the
// unconsumed remainder. A trailing partial request is not an error
func DecodeRequests(buf []byte, limits Limits) ([]Request, []byte, error) {
	var reqs []Request
	for len(buf) > 0 {
		req, n, err := ParseRequest(buf, limits)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			return reqs, buf, err
		}
		buf = buf[n:]
		if req.Len() > 0 {
			reqs = append(reqs, req)
		}
	}
	return reqs, buf, nil
}

// ParseValue decodes one reply from the front of buf, the way a client reads
// server output
func ParseValue(buf []byte, limits Limits) (Value, int, error) {
	p := parser{buf: buf, limits: limits}

	v, err := p.value(0)
	if err != nil {
		return Value{}, 0, err
	}

	return v, p.pos, nil
}

// parseDecimal parses a base-10 int64 with an optional leading '-'
func parseDecimal(b []byte) (int64, bool) {
	if len(b) == 0 || b[0] == '+' {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

const initialBufferSize = 16 * 1024

// Decoder reads requests or replies from a stream, buffering partial frames
type Decoder struct {
	rd     io.Reader
	buf    []byte
	start  int
	end    int
	limits Limits
}

// NewDecoder creates a Decoder with the default limits
func NewDecoder(rd io.Reader) *Decoder {
	return NewDecoderWithLimits(rd, DefaultLimits())
}

// NewDecoderWithLimits creates a Decoder enforcing the given limits
func NewDecoderWithLimits(rd io.Reader, limits Limits) *Decoder {
	return &Decoder{
		rd:     rd,
		buf:    make([]byte, initialBufferSize),
		limits: limits,
	}
}

// ReadRequest blocks until one whole request is decoded.
// Blank inline lines and empty multi-bulk frames are returned as empty requests
func (d *Decoder) ReadRequest() (Request, error) {
	return next(d, ParseRequest)
}

// ReadValue blocks until one whole reply is decoded
func (d *Decoder) ReadValue() (Value, error) {
	return next(d, ParseValue)
}

// Buffered returns the number of received bytes not decoded yet
func (d *Decoder) Buffered() int {
	return d.end - d.start
}

func next[T any](d *Decoder, parse func([]byte, Limits) (T, int, error)) (T, error) {
	var zero T
	for {
		if d.end > d.start {
			v, n, err := parse(d.buf[d.start:d.end], d.limits)
			if err == nil {
				d.start += n
				if d.start == d.end {
					d.start, d.end = 0, 0
				}
				return v, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return zero, err
			}
		}

		if err := d.fill(); err != nil {
			if errors.Is(err, io.EOF) && d.end > d.start {
				return zero, io.ErrUnexpectedEOF
			}
			return zero, err
		}
	}
}

// fill reads more bytes from the stream, compacting or growing the buffer first
func (d *Decoder) fill() error {
	if d.start > 0 {
		d.end = copy(d.buf, d.buf[d.start:d.end])
		d.start = 0
	}
	if d.end == len(d.buf) {
		grown := make([]byte, 2*len(d.buf))
		copy(grown, d.buf[:d.end])
		d.buf = grown
	}

	n, err := d.rd.Read(d.buf[d.end:])
	d.end += n
	if n > 0 {
		return nil
	}
	if err == nil {
		return io.ErrNoProgress
	}
	return err
}
