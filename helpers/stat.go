package helpers

import (
	"expvar"
	"io"
)

// CountReader adds every read length to V.
type CountReader struct {
	R io.Reader
	V *expvar.Int
}

func (cr CountReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	cr.V.Add(int64(n))
	return n, err
}

// CountWriter adds every written length to V.
type CountWriter struct {
	W io.Writer
	V *expvar.Int
}

func (cw CountWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	cw.V.Add(int64(n))
	return n, err
}
