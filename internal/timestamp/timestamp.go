// Package timestamp defines the microsecond timestamps stamped on every
// streaming packet, including the reserved sentinel values that bracket the
// range of ordinary timestamps.
package timestamp

import (
	"math"
	"strconv"
)

// Timestamp is a point in stream time measured in microseconds. It is a plain
// value type: the comparison operators give a total order and it can be used
// as a map key.
type Timestamp int64

// Sentinel values, in increasing order. Every ordinary timestamp lies in the
// closed range [Min, Max].
const (
	Unset             Timestamp = math.MinInt64
	Unstarted         Timestamp = math.MinInt64 + 1
	PreStream         Timestamp = math.MinInt64 + 2
	Min               Timestamp = math.MinInt64 + 3
	Max               Timestamp = math.MaxInt64 - 3
	PostStream        Timestamp = math.MaxInt64 - 2
	OneOverPostStream Timestamp = math.MaxInt64 - 1
	Done              Timestamp = math.MaxInt64
)

// microsPerSecond is the number of timestamp units in one second.
const microsPerSecond = 1_000_000

// New returns the timestamp for the given number of microseconds.
func New(us int64) Timestamp {
	return Timestamp(us)
}

// FromSeconds converts wall-clock seconds to a timestamp, rounding to the
// nearest microsecond.
func FromSeconds(seconds float64) Timestamp {
	return Timestamp(math.Round(seconds * microsPerSecond))
}

// Microseconds returns the raw microsecond value.
func (t Timestamp) Microseconds() int64 {
	return int64(t)
}

// Seconds returns the timestamp as fractional seconds.
func (t Timestamp) Seconds() float64 {
	return float64(t) / microsPerSecond
}

// IsSpecialValue reports whether t is one of the sentinels.
func (t Timestamp) IsSpecialValue() bool {
	return t < Min || t > Max
}

// IsRangeValue reports whether t is an ordinary timestamp.
func (t Timestamp) IsRangeValue() bool {
	return t >= Min && t <= Max
}

// IsAllowedInStream reports whether a packet may carry t. PreStream and
// PostStream are accepted for packets that belong before or after all data.
func (t Timestamp) IsAllowedInStream() bool {
	return t.IsRangeValue() || t == PreStream || t == PostStream
}

// NextAllowedInStream returns the smallest timestamp a stream can accept
// after a packet at t.
func (t Timestamp) NextAllowedInStream() Timestamp {
	if t >= Max || t == PreStream {
		return OneOverPostStream
	}
	return t + 1
}

// String renders sentinels by name and everything else as a number.
func (t Timestamp) String() string {
	switch t {
	case Unset:
		return "Timestamp::Unset()"
	case Unstarted:
		return "Timestamp::Unstarted()"
	case PreStream:
		return "Timestamp::PreStream()"
	case Min:
		return "Timestamp::Min()"
	case Max:
		return "Timestamp::Max()"
	case PostStream:
		return "Timestamp::PostStream()"
	case OneOverPostStream:
		return "Timestamp::OneOverPostStream()"
	case Done:
		return "Timestamp::Done()"
	}
	return strconv.FormatInt(int64(t), 10)
}
