// Package rcon implements the Source RCON protocol used to administer a
// Squad game server over TCP. Packets are length-prefixed binary frames in
// little-endian byte order; the Client layers authentication, request
// correlation and multi-packet response reassembly on top of the codec.
package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet type codes. The server reuses the EXEC_COMMAND code (2) for auth
// responses, so auth replies must be distinguished by connection phase
// rather than by type value.
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuthResponse  int32 = 2
	TypeAuth          int32 = 3
)

const (
	// MaxPacketSize is the maximum value of the size prefix: id, type, body
	// and both terminator bytes together may not exceed it.
	MaxPacketSize = 4096

	// packetOverhead is id (4) + type (4) + two trailing NUL bytes.
	packetOverhead = 10

	// sizePrefixLen is the length of the leading size field, which is not
	// counted by the size field itself.
	sizePrefixLen = 4

	// MaxBodySize is the largest body EncodePacket accepts.
	MaxBodySize = MaxPacketSize - packetOverhead
)

// Packet is a single RCON protocol frame. The body is an opaque byte string;
// any valid UTF-8 (or arbitrary bytes) round-trips through the codec.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// ErrIncomplete is returned by DecodePacket when the buffer does not yet
// hold a full packet. It is not a protocol error; callers should read more
// bytes and retry.
var ErrIncomplete = errors.New("rcon: incomplete packet")

// ErrPacketTooLarge is returned by EncodePacket for bodies that would exceed
// MaxPacketSize. Oversize bodies are rejected, never truncated.
var ErrPacketTooLarge = errors.New("rcon: packet body exceeds maximum size")

// MalformedPacketError reports an undecodable frame. The connection cannot
// be trusted after one of these: the stream is misaligned and further reads
// would corrupt request correlation.
type MalformedPacketError struct {
	Reason string
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("rcon: malformed packet: %s", e.Reason)
}

// EncodePacket serializes a packet into wire format:
// [size:4 LE][id:4 LE][type:4 LE][body][0x00 0x00].
func EncodePacket(p Packet) ([]byte, error) {
	if len(p.Body) > MaxBodySize {
		return nil, ErrPacketTooLarge
	}

	size := packetOverhead + len(p.Body)
	buf := make([]byte, sizePrefixLen+size)
	binary.LittleEndian.PutUint32(buf[0:], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:], uint32(p.ID))
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.Type))
	copy(buf[12:], p.Body)
	// Last two bytes are already zero from make.
	return buf, nil
}

// DecodePacket parses the first packet in data and returns it along with the
// number of bytes consumed. Returns ErrIncomplete when data holds fewer
// bytes than the declared packet length, and a *MalformedPacketError when
// the declared size is out of bounds or the terminator bytes are corrupt.
// DecodePacket never blocks and performs no I/O.
func DecodePacket(data []byte) (Packet, int, error) {
	if len(data) < sizePrefixLen {
		return Packet{}, 0, ErrIncomplete
	}

	size := int(int32(binary.LittleEndian.Uint32(data)))
	if size < packetOverhead {
		return Packet{}, 0, &MalformedPacketError{Reason: fmt.Sprintf("declared size %d below minimum %d", size, packetOverhead)}
	}
	if size > MaxPacketSize {
		return Packet{}, 0, &MalformedPacketError{Reason: fmt.Sprintf("declared size %d exceeds maximum %d", size, MaxPacketSize)}
	}

	total := sizePrefixLen + size
	if len(data) < total {
		return Packet{}, 0, ErrIncomplete
	}

	if data[total-2] != 0 || data[total-1] != 0 {
		return Packet{}, 0, &MalformedPacketError{Reason: "missing terminator bytes"}
	}

	pkt := Packet{
		ID:   int32(binary.LittleEndian.Uint32(data[4:])),
		Type: int32(binary.LittleEndian.Uint32(data[8:])),
		Body: string(data[12 : total-2]),
	}
	return pkt, total, nil
}
