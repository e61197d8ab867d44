package cache

import (
	"bytes"
	"net/http"
)

// recorder buffers a handler's response so the fully rendered body can be
// stored, and the validator header added, before anything reaches the client.
type recorder struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

// Header implements http.ResponseWriter.
func (rec *recorder) Header() http.Header {
	return rec.header
}

// WriteHeader implements http.ResponseWriter. Only the first call counts.
func (rec *recorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.status = code
}

// Write implements http.ResponseWriter.
func (rec *recorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.body.Write(b)
}

// Body returns the rendered body.
func (rec *recorder) Body() []byte {
	return rec.body.Bytes()
}

// flush copies the buffered response to w.
func (rec *recorder) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vv := range rec.header {
		dst[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(rec.status)
	if rec.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(rec.body.Bytes())
	return err
}

// writeCached writes a body read from the store as a 200 response.
func writeCached(w http.ResponseWriter, body []byte, contentType string) error {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return err
}
