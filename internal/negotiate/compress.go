package negotiate

import (
	"compress/flate"
	"compress/gzip"
	"io"
)

// NewEncoder wraps w so that writes through the result are compressed
// per enc. For EncodingIdentity it returns w unchanged wrapped in a
// no-op closer. Callers must Close the result to flush any buffered
// compressed output.
func NewEncoder(w io.Writer, enc Encoding) (io.WriteCloser, error) {
	switch enc {
	case EncodingGzip:
		return gzip.NewWriter(w), nil
	case EncodingDeflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
