// Package packet implements the immutable unit of data that flows through a
// graph: a payload of one of a closed set of kinds plus a timestamp.
//
// Packets are created with the type-directed Create* factories and read back
// with the matching Get* accessor; reading with the wrong accessor fails
// rather than converting. Slices and protobuf messages are copied on the way
// in and on the way out, so a packet can be shared freely between goroutines.
//
// The zero Packet is the empty packet. It is a valid value that stands for
// "nothing was produced".
package packet

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/timestamp"
	"google.golang.org/protobuf/proto"
)

// Packet is an immutable payload stamped with a timestamp. Packets without a
// timestamp are side packets.
type Packet struct {
	kind    Kind
	value   any
	ts      timestamp.Timestamp
	stamped bool
}

func newPacket(kind Kind, value any) Packet {
	return Packet{kind: kind, value: value}
}

// Kind returns the payload kind.
func (p Packet) Kind() Kind { return p.kind }

// IsEmpty reports whether the packet carries no payload.
func (p Packet) IsEmpty() bool { return p.kind == KindEmpty }

// Timestamp returns the packet's timestamp, or timestamp.Unset for side
// packets and packets that were never stamped.
func (p Packet) Timestamp() timestamp.Timestamp {
	if !p.stamped {
		return timestamp.Unset
	}
	return p.ts
}

// At returns a copy of p stamped with ts. The payload is shared, which is
// safe because it is never mutated.
func (p Packet) At(ts timestamp.Timestamp) Packet {
	p.ts = ts
	p.stamped = ts != timestamp.Unset
	return p
}

// TypeName returns the registered type name of the payload. Proto packets
// report the qualified "proto:<full name>" form.
func (p Packet) TypeName() string {
	if p.kind == KindProto {
		return ProtoTypeName(string(p.value.(proto.Message).ProtoReflect().Descriptor().FullName()))
	}
	return p.kind.String()
}

// Value returns a copy of the payload as a plain Go value, or nil for the
// empty packet.
func (p Packet) Value() any {
	switch p.kind {
	case KindEmpty:
		return nil
	case KindStringList:
		return append([]string(nil), p.value.([]string)...)
	case KindBoolList:
		return append([]bool(nil), p.value.([]bool)...)
	case KindIntList:
		return append([]int64(nil), p.value.([]int64)...)
	case KindFloatList:
		return append([]float64(nil), p.value.([]float64)...)
	case KindImageFrame:
		return p.value.(ImageFrame).clone()
	case KindMatrix:
		m, _ := GetMatrix(p)
		return m
	case KindProto:
		return proto.Clone(p.value.(proto.Message))
	case KindProtoList:
		msgs, _ := GetProtoList(p)
		return msgs
	default:
		return p.value
	}
}

// Equal reports whether p and q carry the same payload and timestamp.
func (p Packet) Equal(q Packet) bool {
	if p.kind != q.kind || p.Timestamp() != q.Timestamp() {
		return false
	}
	switch p.kind {
	case KindProto:
		return proto.Equal(p.value.(proto.Message), q.value.(proto.Message))
	case KindProtoList:
		a, b := p.value.([]proto.Message), q.value.([]proto.Message)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !proto.Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(p.value, q.value)
	}
}

// String renders the packet for logs.
func (p Packet) String() string {
	switch p.kind {
	case KindEmpty:
		return fmt.Sprintf("empty@%s", p.Timestamp())
	case KindImageFrame:
		f := p.value.(ImageFrame)
		return fmt.Sprintf("image_frame(%s %dx%d)@%s", f.Format, f.Width, f.Height, p.Timestamp())
	case KindProtoList:
		return fmt.Sprintf("proto_list(%d)@%s", len(p.value.([]proto.Message)), p.Timestamp())
	default:
		return fmt.Sprintf("%s(%v)@%s", p.TypeName(), p.value, p.Timestamp())
	}
}

func (p Packet) expect(kind Kind, op string) error {
	if p.kind != kind {
		return errs.Type("packet", op, "packet holds %s, not %s", p.kind, kind)
	}
	return nil
}

// Conforms checks that p may travel on a stream or side packet whose
// registered type is typeName.
func Conforms(p Packet, typeName string) error {
	if p.IsEmpty() {
		return errs.Type("packet", "Conforms", "empty packet does not carry a %s value", typeName)
	}
	switch {
	case typeName == TypeImageFrameRGB:
		if p.kind != KindImageFrame {
			return errs.Type("packet", "Conforms", "packet holds %s, not %s", p.kind, typeName)
		}
		if p.value.(ImageFrame).Channels() != 3 {
			return errs.Type("packet", "Conforms", rgbChannelError)
		}
		return nil
	case strings.HasPrefix(typeName, protoTypePrefix):
		if p.TypeName() != typeName {
			return errs.Type("packet", "Conforms", "packet holds %s, not %s", p.TypeName(), typeName)
		}
		return nil
	}
	kind, ok := kindForType(typeName)
	if !ok {
		return errs.Type("packet", "Conforms", "unknown packet type %q", typeName)
	}
	if p.kind != kind {
		return errs.Type("packet", "Conforms", "packet holds %s, not %s", p.kind, typeName)
	}
	return nil
}
