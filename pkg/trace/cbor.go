package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Recorder writes events to w as a CBOR sequence.
type Recorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(ev); err != nil {
		return fmt.Errorf("trace: encode event %d: %w", ev.Seq, err)
	}
	return nil
}

// ReadEvents decodes a CBOR sequence written by a Recorder.
func ReadEvents(r io.Reader) ([]Event, error) {
	dec := cbor.NewDecoder(r)
	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("trace: decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
}
