package resp_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/eternalApril/starlight/internal/resp"
)

func argsOf(req resp.Request) []string {
	out := make([]string, len(req.Args))
	for i, a := range req.Args {
		out[i] = string(a)
	}
	return out
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     []string
		consumed int
		wantErr  error
	}{
		{
			name:     "Multi-bulk",
			input:    "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n",
			want:     []string{"GET", "foo"},
			consumed: 22,
		},
		{
			name:     "Multi-bulk with trailing data",
			input:    "*1\r\n$4\r\nPING\r\n*1\r\n",
			want:     []string{"PING"},
			consumed: 14,
		},
		{
			name:     "Binary safe bulk",
			input:    "*2\r\n$3\r\nGET\r\n$4\r\na\r\nb\r\n",
			want:     []string{"GET", "a\r\nb"},
			consumed: 23,
		},
		{
			name:     "Empty bulk",
			input:    "*2\r\n$3\r\nGET\r\n$0\r\n\r\n",
			want:     []string{"GET", ""},
			consumed: 19,
		},
		{
			name:     "Inline",
			input:    "SET  foo   bar\r\n",
			want:     []string{"SET", "foo", "bar"},
			consumed: 16,
		},
		{
			name:     "Inline with bare LF",
			input:    "PING\n",
			want:     []string{"PING"},
			consumed: 5,
		},
		{
			name:     "Blank inline line",
			input:    "\r\n",
			want:     []string{},
			consumed: 2,
		},
		{
			name:     "Zero length multi-bulk",
			input:    "*0\r\n",
			want:     []string{},
			consumed: 4,
		},
		{
			name:    "Empty buffer",
			input:   "",
			wantErr: resp.ErrIncomplete,
		},
		{
			name:    "Partial header",
			input:   "*2\r\n$3",
			wantErr: resp.ErrIncomplete,
		},
		{
			name:    "Partial payload",
			input:   "*2\r\n$3\r\nGET\r\n$3\r\nfo",
			wantErr: resp.ErrIncomplete,
		},
		{
			name:    "Partial inline",
			input:   "PING",
			wantErr: resp.ErrIncomplete,
		},
		{
			name:    "Bad bulk length",
			input:   "*1\r\n$bad\r\n",
			wantErr: resp.ErrProtocol,
		},
		{
			name:    "Bad multibulk length",
			input:   "*x\r\n",
			wantErr: resp.ErrProtocol,
		},
		{
			name:    "Plus sign in length",
			input:   "*+1\r\n$4\r\nPING\r\n",
			wantErr: resp.ErrProtocol,
		},
		{
			name:    "Missing dollar",
			input:   "*1\r\n:4\r\n",
			wantErr: resp.ErrProtocol,
		},
		{
			name:    "Missing terminator after payload",
			input:   "*1\r\n$4\r\nPINGxx",
			wantErr: resp.ErrInvalidEnding,
		},
		{
			name:    "Header without CR",
			input:   "*1\n",
			wantErr: resp.ErrInvalidEnding,
		},
		{
			name:    "Nil bulk in request",
			input:   "*1\r\n$-1\r\n",
			wantErr: resp.ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, n, err := resp.ParseRequest([]byte(tt.input), resp.DefaultLimits())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRequest() error = %v, want %v", err, tt.wantErr)
				}
				if n != 0 {
					t.Errorf("ParseRequest() consumed %d bytes on error", n)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseRequest() unexpected error %v", err)
			}
			if n != tt.consumed {
				t.Errorf("ParseRequest() consumed = %d, want %d", n, tt.consumed)
			}
			got := argsOf(req)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("ParseRequest() args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRequest_Limits(t *testing.T) {
	limits := resp.Limits{MaxBulkLen: 8, MaxArrayLen: 2, MaxInlineLen: 10}

	tests := []struct {
		name  string
		input string
	}{
		{"Bulk over ceiling", "*1\r\n$9\r\n"},
		{"Array over ceiling", "*3\r\n"},
		{"Inline line over ceiling", "PING PING PING\r\n"},
		{"Unterminated inline over ceiling", "PINGPINGPINGPING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := resp.ParseRequest([]byte(tt.input), limits)
			if !errors.Is(err, resp.ErrProtocol) {
				t.Errorf("ParseRequest() error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestDecodeRequests(t *testing.T) {
	input := "*1\r\n$4\r\nPING\r\nECHO hi\r\n\r\n*2\r\n$3\r\nGET\r\n$1"

	reqs, rest, err := resp.DecodeRequests([]byte(input), resp.DefaultLimits())
	if err != nil {
		t.Fatalf("DecodeRequests() unexpected error %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("DecodeRequests() got %d requests, want 2", len(reqs))
	}
	if reqs[0].Name() != "PING" || reqs[1].Name() != "ECHO" {
		t.Errorf("DecodeRequests() names = %q, %q", reqs[0].Name(), reqs[1].Name())
	}
	if string(rest) != "*2\r\n$3\r\nGET\r\n$1" {
		t.Errorf("DecodeRequests() remainder = %q", rest)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    resp.Value
		wantErr error
	}{
		{"Valid positive", ":1000\r\n", resp.MakeInteger(1000), nil},
		{"Valid negative", ":-15\r\n", resp.MakeInteger(-15), nil},
		{"Valid zero", ":0\r\n", resp.MakeInteger(0), nil},
		{"Simple string", "+OK\r\n", resp.MakeOK(), nil},
		{"Error", "-ERR boom\r\n", resp.MakeError("ERR boom"), nil},
		{"Nil bulk", "$-1\r\n", resp.MakeNilBulkString(), nil},
		{"Nil array", "*-1\r\n", resp.MakeNilArray(), nil},
		{"Invalid ending", ":1000\n", resp.Value{}, resp.ErrInvalidEnding},
		{"Not a number", ":abc\r\n", resp.Value{}, resp.ErrProtocol},
		{"Unknown type", "?x\r\n", resp.Value{}, resp.ErrProtocol},
		{"Partial array", "*2\r\n:1\r\n", resp.Value{}, resp.ErrIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, _, err := resp.ParseValue([]byte(tt.input), resp.DefaultLimits())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseValue() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue() unexpected error %v", err)
			}
			if val.Type != tt.want.Type || val.Integer != tt.want.Integer ||
				val.IsNull != tt.want.IsNull || !bytes.Equal(val.String, tt.want.String) {
				t.Errorf("ParseValue() = %+v, want %+v", val, tt.want)
			}
		})
	}
}

// chunkReader returns at most size bytes per Read to simulate a slow network
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := min(c.size, len(p), len(c.data))
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestDecoder_StreamedInput(t *testing.T) {
	stream := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\nGET key\r\n*1\r\n$4\r\nPING\r\n"

	for _, size := range []int{1, 2, 3, 7, 1024} {
		dec := resp.NewDecoder(&chunkReader{data: []byte(stream), size: size})

		var names []string
		for {
			req, err := dec.ReadRequest()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("chunk %d: ReadRequest() unexpected error %v", size, err)
			}
			names = append(names, req.Name())
		}

		if strings.Join(names, ",") != "SET,GET,PING" {
			t.Errorf("chunk %d: got requests %v", size, names)
		}
	}
}

func TestDecoder_LargeBulkGrowsBuffer(t *testing.T) {
	payload := strings.Repeat("x", 100_000)
	input := resp.EncodeRequest([]byte("SET"), []byte("k"), []byte(payload))

	dec := resp.NewDecoder(&chunkReader{data: input, size: 4096})
	req, err := dec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest() unexpected error %v", err)
	}
	if len(req.Args[2]) != len(payload) {
		t.Errorf("payload length = %d, want %d", len(req.Args[2]), len(payload))
	}
}

func TestDecoder_TruncatedStream(t *testing.T) {
	dec := resp.NewDecoder(strings.NewReader("*2\r\n$3\r\nGET\r\n"))

	_, err := dec.ReadRequest()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadRequest() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecoder_Buffered(t *testing.T) {
	dec := resp.NewDecoder(strings.NewReader("PING\r\nPING\r\n"))

	if _, err := dec.ReadRequest(); err != nil {
		t.Fatalf("ReadRequest() unexpected error %v", err)
	}
	if dec.Buffered() != 6 {
		t.Errorf("Buffered() = %d, want 6", dec.Buffered())
	}
	if _, err := dec.ReadRequest(); err != nil {
		t.Fatalf("ReadRequest() unexpected error %v", err)
	}
	if dec.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", dec.Buffered())
	}
}

func FuzzParseRequest(f *testing.F) {
	f.Add([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	f.Add([]byte("SET a b\r\n"))
	f.Add([]byte("*1\r\n$bad\r\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		req, n, err := resp.ParseRequest(data, resp.DefaultLimits())
		if err != nil {
			if !errors.Is(err, resp.ErrIncomplete) && !errors.Is(err, resp.ErrProtocol) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		if n <= 0 || n > len(data) {
			t.Fatalf("consumed %d of %d bytes", n, len(data))
		}
		if req.Len() == 0 {
			return
		}
		again, m, err := resp.ParseRequest(resp.EncodeRequest(req.Args...), resp.DefaultLimits())
		if err != nil {
			t.Fatalf("re-encoded request does not parse: %v", err)
		}
		if m == 0 || again.Len() != req.Len() {
			t.Fatalf("re-encoded request has %d args, want %d", again.Len(), req.Len())
		}
		for i := range req.Args {
			if !bytes.Equal(again.Args[i], req.Args[i]) {
				t.Fatalf("arg %d = %q, want %q", i, again.Args[i], req.Args[i])
			}
		}
	})
}
