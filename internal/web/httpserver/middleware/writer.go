package middleware

import "net/http"

// hookWriter runs beforeWrite once, right before the status line is sent, so
// handlers can still add headers such as Set-Cookie.
type hookWriter struct {
	http.ResponseWriter
	beforeWrite func(http.ResponseWriter)
	wrote       bool
}

func newHookWriter(w http.ResponseWriter, fn func(http.ResponseWriter)) *hookWriter {
	return &hookWriter{ResponseWriter: w, beforeWrite: fn}
}

func (hw *hookWriter) fire() {
	if hw.wrote {
		return
	}
	hw.wrote = true
	if hw.beforeWrite != nil {
		hw.beforeWrite(hw.ResponseWriter)
	}
}

func (hw *hookWriter) WriteHeader(status int) {
	hw.fire()
	hw.ResponseWriter.WriteHeader(status)
}

func (hw *hookWriter) Write(b []byte) (int, error) {
	hw.fire()
	return hw.ResponseWriter.Write(b)
}

func (hw *hookWriter) Flush() {
	hw.fire()
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (hw *hookWriter) Unwrap() http.ResponseWriter {
	return hw.ResponseWriter
}
