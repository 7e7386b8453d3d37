package role

import (
	"fmt"
	"io"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-bbuf/pkg/flow"
)

// Event is one produced or consumed item.
type Event struct {
	Side  flow.Side
	Item  int
	Value int32
	Slot  int
	// Polls is how many times the flow state was read before the slot was free
	// or ready.
	Polls int
}

func (e Event) verb() string {
	if e.Side == flow.SideProducer {
		return "Producing"
	}
	return "Consuming"
}

const traceFormat = "%s Item %4d with value %4d at Index %4d"

func (e Event) String() string {
	return fmt.Sprintf(traceFormat, e.verb(), e.Item, e.Value, e.Slot)
}

// Reporter receives every Event of a run. The producer reports an item after
// writing its slot and before publishing it; the consumer after reading it and
// before releasing it. Implementations shared by both roles must be safe for
// concurrent use.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) {
	f(e)
}

type multiReporter []Reporter

func (m multiReporter) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// Reporters fans every Event out to rs in order. Nil entries are skipped.
func Reporters(rs ...Reporter) Reporter {
	m := make(multiReporter, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

// TraceWriter prints one line per Event, such as
//
//	Producing Item    0 with value 1234 at Index    0
//
// Lines from both roles are serialized so they never interleave.
type TraceWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTraceWriter returns a TraceWriter printing to w.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{w: w}
}

func (t *TraceWriter) Report(e Event) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = fmt.Fprintf(buf, traceFormat, e.verb(), e.Item, e.Value, e.Slot)
	_ = buf.WriteByte('\n')
	t.mu.Lock()
	_, _ = t.w.Write(buf.B)
	t.mu.Unlock()
}

// Println writes a free-form line in order with the Event lines.
func (t *TraceWriter) Println(a ...interface{}) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = fmt.Fprintln(buf, a...)
	t.mu.Lock()
	_, _ = t.w.Write(buf.B)
	t.mu.Unlock()
}

// Recorder keeps every Event in arrival order.
type Recorder struct {
	q *queue.Queue
}

// NewRecorder returns a Recorder sized for about hint events.
func NewRecorder(hint int) *Recorder {
	return &Recorder{q: queue.New(int64(hint))}
}

func (r *Recorder) Report(e Event) {
	// Put only fails after Dispose, which is never called.
	_ = r.q.Put(e)
}

// Len returns the number of recorded events not drained yet.
func (r *Recorder) Len() int {
	return int(r.q.Len())
}

// Drain removes and returns the recorded events.
func (r *Recorder) Drain() []Event {
	n := r.q.Len()
	if n == 0 {
		return nil
	}
	items, err := r.q.Get(n)
	if err != nil {
		return nil
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		if e, ok := item.(Event); ok {
			events = append(events, e)
		}
	}
	return events
}

// Split separates drained events by side, keeping their order.
func Split(events []Event) (produced, consumed []Event) {
	for _, e := range events {
		if e.Side == flow.SideProducer {
			produced = append(produced, e)
		} else {
			consumed = append(consumed, e)
		}
	}
	return produced, consumed
}

// VerifyFIFO checks that consumed repeats produced item by item.
func VerifyFIFO(produced, consumed []Event) error {
	if len(produced) != len(consumed) {
		return fmt.Errorf("%w: produced %d items, consumed %d", flow.ErrInvariant, len(produced), len(consumed))
	}
	for i := range produced {
		p, c := produced[i], consumed[i]
		if p.Item != c.Item || p.Value != c.Value || p.Slot != c.Slot {
			return fmt.Errorf("%w: item %d produced as %q, consumed as %q", flow.ErrInvariant, i, p, c)
		}
	}
	return nil
}
