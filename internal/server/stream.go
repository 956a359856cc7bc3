package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MuhtasimTanmoy/corrosion/internal/rowresult"
)

// keepaliveInterval is the liveness probe period shared by the
// one-shot query stream and the watch stream (spec §4.4, §9; the
// query stream's probe is a supplemented feature, see SPEC_FULL.md §4).
const keepaliveInterval = time.Second

// writeRowResult serializes r as one JSON value followed by '\n' and
// writes it to the streaming body, matching spec §4.4's emission
// rule. A serialization error is itself converted to a terminal Error
// row-result. Returns false if the body write failed (client gone).
func writeRowResult(w *bufio.Writer, flusher http.Flusher, r rowresult.RowResult) bool {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(rowresult.Err(err.Error()))
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	if flusher != nil {
		flusher.Flush()
	}
	return true
}

// probe attempts a zero-cost liveness check on the streaming body: a
// buffered writer Flush surfaces a broken connection without writing
// any payload bytes the client would have to parse.
func probe(w *bufio.Writer, flusher http.Flusher) bool {
	if err := w.Flush(); err != nil {
		return false
	}
	if flusher != nil {
		flusher.Flush()
	}
	return true
}
