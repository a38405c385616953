package resp

// RequestReader yields decoded client requests one at a time
type RequestReader interface {
	ReadRequest() (Request, error)
	// Buffered reports how many received bytes are not decoded yet
	Buffered() int
}

// Writer buffers encoded replies until Flush
type Writer interface {
	Write(v Value) error
	Flush() error
}
