package target

import "time"

// CleanupDecision is what a completion callback asks the coordinator to do with a finished epoch.
type CleanupDecision int

const (
	// CleanUp destroys the epoch record, notifies the volume buffer and advances.
	CleanUp CleanupDecision = iota
	// KeepEpoch leaves the record and its active membership untouched.
	KeepEpoch
)

func (d CleanupDecision) String() string {
	switch d {
	case CleanUp:
		return "cleanup"
	case KeepEpoch:
		return "keep"
	default:
		return "unknown"
	}
}

// Batch is one delivery of interpolated samples. Values[i] belongs to global point Offsets[i].
type Batch struct {
	Offsets []uint64
	Values  []float64
}

// Points describes the target point set of one epoch.
// Invalid indices are unreachable points that complete without a delivery.
type Points struct {
	Total   int
	Invalid []uint64
}

// Values is a read-only view of an epoch's accumulated buffer.
type Values struct {
	data []float64
}

// NewValues wraps data without copying.
func NewValues(data []float64) Values {
	return Values{data: data}
}

func (v Values) Len() int { return len(v.data) }

func (v Values) At(i int) float64 { return v.data[i] }

// Slice returns a copy of the buffer.
func (v Values) Slice() []float64 {
	out := make([]float64, len(v.data))
	copy(out, v.data)
	return out
}

// CompletedEpoch is a history entry for an epoch that finished and was cleaned up.
type CompletedEpoch[T any] struct {
	ID           T         `json:"id"`
	Expected     int       `json:"expected"`
	Invalid      int       `json:"invalid"`
	DispatchedAt time.Time `json:"dispatched_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// EpochStatus summarizes one active epoch.
type EpochStatus[T any] struct {
	ID            T    `json:"id"`
	Dispatched    bool `json:"dispatched"`
	Expected      int  `json:"expected"`
	Filled        int  `json:"filled"`
	Invalid       int  `json:"invalid"`
	CallbackFired bool `json:"callback_fired"`
}

// Status is a point-in-time snapshot of a coordinator.
type Status[T any] struct {
	Name          string              `json:"name"`
	TimeDependent bool                `json:"time_dependent"`
	Started       bool                `json:"started"`
	Aborted       string              `json:"aborted,omitempty"`
	Pending       []T                 `json:"pending"`
	Active        []EpochStatus[T]    `json:"active"`
	Awaiting      *T                  `json:"awaiting,omitempty"`
	Completed     []CompletedEpoch[T] `json:"completed"`
	Watermark     *T                  `json:"watermark,omitempty"`
}
