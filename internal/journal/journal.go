// Package journal implements the exchange's event journal: a write-only,
// append-only log of every order event and trade the OLM produces, in
// emission order. The core never reads the journal back; replay is an
// external collaborator's job.
package journal

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// Kind tags the kind-specific payload of a Record, one per OLM state
// transition.
type Kind int

const (
	Accepted Kind = iota
	Rejected
	TradeExecuted
	PartialFill
	Filled
	Cancelled
	Expired
	Triggered
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	case TradeExecuted:
		return "TRADE"
	case PartialFill:
		return "PARTIAL_FILL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Expired:
		return "EXPIRED"
	case Triggered:
		return "TRIGGERED"
	default:
		return "UNKNOWN"
	}
}

// Record is one entry in the journal. TradeExecuted records additionally
// populate the Maker*/Taker* fields — including TakerSide, without which
// a replayer cannot tell which side of the trade owes which asset.
type Record struct {
	Sequence    uint64 // strictly increasing per symbol
	Symbol      common.Symbol
	Kind        Kind
	OrderID     uint64
	Participant common.Participant
	Timestamp   time.Time
	Detail      string // kind-specific human-readable payload (rejection reason, etc.)

	// Populated only for TradeExecuted records.
	TradeID          uint64
	MakerOrderID     uint64
	TakerOrderID     uint64
	Price            decimal.Decimal
	Quantity         decimal.Decimal
	TakerSide        common.Side
	MakerParticipant common.Participant
	TakerParticipant common.Participant
}

// Sink is the interface the OLM's hot path writes to. Implementations
// must not block the caller indefinitely — a sink that never returns is
// treated as a halt condition by an external watchdog.
type Sink interface {
	Append(Record)
}

// MemorySink is a bounded, fire-and-forget, in-memory implementation of
// Sink, sufficient as the default and for tests. Persistence, fan-out,
// and retention belong to an external collaborator that
// would drain Records() or wrap Append.
type MemorySink struct {
	records chan Record
	drained []Record
	done    chan struct{}
}

// NewMemorySink creates a sink with the given buffer capacity. Writes
// past capacity do not block the matching hot path; they are logged and
// dropped, since EventJournal durability is explicitly not a hot-path
// concern — a production deployment would instead back
// this sink with a durable external collaborator sized to never fill.
func NewMemorySink(capacity int) *MemorySink {
	s := &MemorySink{
		records: make(chan Record, capacity),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *MemorySink) drain() {
	defer close(s.done)
	for rec := range s.records {
		s.drained = append(s.drained, rec)
	}
}

func (s *MemorySink) Append(rec Record) {
	select {
	case s.records <- rec:
	default:
		log.Warn().
			Str("symbol", string(rec.Symbol)).
			Str("kind", rec.Kind.String()).
			Msg("journal sink full, dropping record")
	}
}

// Close stops accepting new records and waits for the drain goroutine to
// finish, so Records() afterward observes everything that was appended.
func (s *MemorySink) Close() {
	close(s.records)
	<-s.done
}

// Records returns every record appended so far, in emission order. Only
// safe to call after Close, or from a test that does not race Append.
func (s *MemorySink) Records() []Record {
	return s.drained
}
