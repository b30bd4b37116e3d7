package packet

import (
	"github.com/vk/streamgridgo/internal/errs"
	"google.golang.org/protobuf/proto"
)

func CreateString(v string) Packet { return newPacket(KindString, v) }
func CreateBool(v bool) Packet { return newPacket(KindBool, v) }
func CreateInt(v int64) Packet { return newPacket(KindInt, v) }
func CreateFloat(v float64) Packet { return newPacket(KindFloat, v) }
func CreateUint64(v uint64) Packet { return newPacket(KindUint64, v) }

func CreateStringList(v []string) Packet {
	return newPacket(KindStringList, append([]string{}, v...))
}

func CreateBoolList(v []bool) Packet {
	return newPacket(KindBoolList, append([]bool{}, v...))
}

func CreateIntList(v []int64) Packet {
	return newPacket(KindIntList, append([]int64{}, v...))
}

func CreateFloatList(v []float64) Packet {
	return newPacket(KindFloatList, append([]float64{}, v...))
}

// CreateProto creates a packet holding a copy of msg.
func CreateProto(msg proto.Message) (Packet, error) {
	if msg == nil {
		return Packet{}, errs.Type("packet", "CreateProto", "nil proto message")
	}
	return newPacket(KindProto, proto.Clone(msg)), nil
}

// CreateProtoList creates a packet holding copies of msgs.
func CreateProtoList(msgs []proto.Message) (Packet, error) {
	out := make([]proto.Message, 0, len(msgs))
	for i, m := range msgs {
		if m == nil {
			return Packet{}, errs.Type("packet", "CreateProtoList", "nil proto message at index %d", i)
		}
		out = append(out, proto.Clone(m))
	}
	return newPacket(KindProtoList, out), nil
}

func GetString(p Packet) (string, error) {
	if err := p.expect(KindString, "GetString"); err != nil {
		return "", err
	}
	return p.value.(string), nil
}

func GetBool(p Packet) (bool, error) {
	if err := p.expect(KindBool, "GetBool"); err != nil {
		return false, err
	}
	return p.value.(bool), nil
}

func GetInt(p Packet) (int64, error) {
	if err := p.expect(KindInt, "GetInt"); err != nil {
		return 0, err
	}
	return p.value.(int64), nil
}

func GetFloat(p Packet) (float64, error) {
	if err := p.expect(KindFloat, "GetFloat"); err != nil {
		return 0, err
	}
	return p.value.(float64), nil
}

func GetUint64(p Packet) (uint64, error) {
	if err := p.expect(KindUint64, "GetUint64"); err != nil {
		return 0, err
	}
	return p.value.(uint64), nil
}

func GetStringList(p Packet) ([]string, error) {
	if err := p.expect(KindStringList, "GetStringList"); err != nil {
		return nil, err
	}
	return append([]string{}, p.value.([]string)...), nil
}

func GetBoolList(p Packet) ([]bool, error) {
	if err := p.expect(KindBoolList, "GetBoolList"); err != nil {
		return nil, err
	}
	return append([]bool{}, p.value.([]bool)...), nil
}

func GetIntList(p Packet) ([]int64, error) {
	if err := p.expect(KindIntList, "GetIntList"); err != nil {
		return nil, err
	}
	return append([]int64{}, p.value.([]int64)...), nil
}

func GetFloatList(p Packet) ([]float64, error) {
	if err := p.expect(KindFloatList, "GetFloatList"); err != nil {
		return nil, err
	}
	return append([]float64{}, p.value.([]float64)...), nil
}

// GetProto returns a copy of the message held by p.
func GetProto(p Packet) (proto.Message, error) {
	if err := p.expect(KindProto, "GetProto"); err != nil {
		return nil, err
	}
	return proto.Clone(p.value.(proto.Message)), nil
}

// GetProtoList returns copies of the messages held by p.
func GetProtoList(p Packet) ([]proto.Message, error) {
	if err := p.expect(KindProtoList, "GetProtoList"); err != nil {
		return nil, err
	}
	src := p.value.([]proto.Message)
	out := make([]proto.Message, len(src))
	for i, m := range src {
		out[i] = proto.Clone(m)
	}
	return out, nil
}
