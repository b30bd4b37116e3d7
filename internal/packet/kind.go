package packet

import "strings"

// Kind enumerates the closed set of payload kinds a packet can carry.
type Kind int

const (
	KindEmpty Kind = iota
	KindString
	KindBool
	KindInt
	KindFloat
	KindUint64
	KindStringList
	KindBoolList
	KindIntList
	KindFloatList
	KindImageFrame
	KindMatrix
	KindProto
	KindProtoList
)

var kindNames = map[Kind]string{
	KindEmpty:      "empty",
	KindString:     "string",
	KindBool:       "bool",
	KindInt:        "int",
	KindFloat:      "float",
	KindUint64:     "uint64",
	KindStringList: "string_list",
	KindBoolList:   "bool_list",
	KindIntList:    "int_list",
	KindFloatList:  "float_list",
	KindImageFrame: "image_frame",
	KindMatrix:     "matrix",
	KindProto:      "proto",
	KindProtoList:  "proto_list",
}

// String returns the registered type name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Registered type names that do not map one to one onto a Kind.
const (
	// TypeImageFrameRGB is an image frame restricted to three channels.
	TypeImageFrameRGB = "image_frame_rgb"
	// protoTypePrefix qualifies a proto type name with a message full name,
	// as in "proto:google.protobuf.StringValue".
	protoTypePrefix = "proto:"
)

// ProtoTypeName returns the registered type name for a specific message type.
func ProtoTypeName(fullName string) string {
	return protoTypePrefix + fullName
}

// KnownType reports whether name is a registered packet type name.
func KnownType(name string) bool {
	if name == TypeImageFrameRGB {
		return true
	}
	if full, ok := strings.CutPrefix(name, protoTypePrefix); ok {
		return full != ""
	}
	_, ok := kindForType(name)
	return ok
}

// kindForType maps a registered type name to the kind of packet it holds.
func kindForType(name string) (Kind, bool) {
	switch {
	case name == TypeImageFrameRGB:
		return KindImageFrame, true
	case strings.HasPrefix(name, protoTypePrefix):
		return KindProto, true
	}
	for k, n := range kindNames {
		if n == name && k != KindEmpty {
			return k, true
		}
	}
	return KindEmpty, false
}

// KindForType returns the payload kind that values of the registered type
// name carry.
func KindForType(name string) (Kind, bool) {
	return kindForType(name)
}
