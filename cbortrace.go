package reader

import (
	"io"
	"log"

	"github.com/mercuryrf/reader/internal/tracesink"
)

// WithCBORTrace installs a transport-trace listener that CBOR-encodes every
// tx/rx event to w (see internal/tracesink), for an external capture tool
// or log shipper. It composes with any other transport listener added via
// AddTransportListener.
func WithCBORTrace(w io.Writer) Option {
	return func(r *ReaderCore) {
		sink := tracesink.New(w)
		r.variant.AddTransportListener(func(ev TraceEvent) {
			if err := sink.Write(ev.Direction, ev.Bytes, ev.Timeout, ev.At); err != nil {
				log.Printf("reader: cbor trace sink write failed: %v", err)
			}
		})
	}
}
