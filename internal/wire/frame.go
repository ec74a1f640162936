// Package wire implements the core's binary batch protocol (§3.4, §4.3):
// fixed-size server/client headers, a message header per message, and
// klauspost/compress-backed payload compression above a configurable
// threshold.
//
// zstd framing around a typed payload, with a byte-exact header layout
// followed verbatim since the layout is normative, not
// implementation-defined.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tessera-mmo/core/internal/apperrors"
)

// MaxBatchSize is 2^15-1 (32,767): the BatchSize field is 16 bits with the
// high bit reserved for the compressed flag (§4.3, §8 P6).
const MaxBatchSize = 1<<15 - 1

// ServerHeaderSize is the fixed 4-byte header prefixing every server->client
// batch (§4.3).
const ServerHeaderSize = 4

// ClientHeaderSize is the fixed 1-byte header prefixing every client->server
// batch (§4.3).
const ClientHeaderSize = 1

// MessageHeaderSize is the fixed 3-byte header prefixing every message
// within a batch (§4.3).
const MessageHeaderSize = 3

var byteOrder = binary.LittleEndian

const batchSizeCompressedFlag uint16 = 1 << 15
const batchSizeMask uint16 = batchSizeCompressedFlag - 1

// ServerHeader is the fixed-length header the server prepends to every
// outbound batch.
type ServerHeader struct {
	TickAdjustment      int8
	AdjustmentIteration uint8
	BatchSize           uint16
	Compressed          bool
}

// EncodeServerHeader writes h into the first ServerHeaderSize bytes of buf,
// which must have at least that much capacity.
func EncodeServerHeader(buf []byte, h ServerHeader) {
	_ = buf[:ServerHeaderSize]
	buf[0] = byte(h.TickAdjustment)
	buf[1] = h.AdjustmentIteration
	size := h.BatchSize & batchSizeMask
	if h.Compressed {
		size |= batchSizeCompressedFlag
	}
	byteOrder.PutUint16(buf[2:4], size)
}

// DecodeServerHeader parses a ServerHeader from the first ServerHeaderSize
// bytes of buf.
func DecodeServerHeader(buf []byte) (ServerHeader, error) {
	if len(buf) < ServerHeaderSize {
		return ServerHeader{}, apperrors.Protocol("wire.DecodeServerHeader", fmt.Errorf("short header: %d bytes", len(buf)))
	}
	raw := byteOrder.Uint16(buf[2:4])
	return ServerHeader{
		TickAdjustment:      int8(buf[0]),
		AdjustmentIteration: buf[1],
		BatchSize:           raw & batchSizeMask,
		Compressed:          raw&batchSizeCompressedFlag != 0,
	}, nil
}

// ClientHeader is the fixed-length header the client prepends to every
// outbound batch.
type ClientHeader struct {
	AdjustmentIteration uint8
}

// EncodeClientHeader writes h into the first ClientHeaderSize bytes of buf.
func EncodeClientHeader(buf []byte, h ClientHeader) {
	_ = buf[:ClientHeaderSize]
	buf[0] = h.AdjustmentIteration
}

// DecodeClientHeader parses a ClientHeader from the first ClientHeaderSize
// bytes of buf.
func DecodeClientHeader(buf []byte) (ClientHeader, error) {
	if len(buf) < ClientHeaderSize {
		return ClientHeader{}, apperrors.Protocol("wire.DecodeClientHeader", fmt.Errorf("short header: %d bytes", len(buf)))
	}
	return ClientHeader{AdjustmentIteration: buf[0]}, nil
}

// MessageHeader prefixes every message inside a batch payload.
type MessageHeader struct {
	Type MessageType
	Size uint16
}

// EncodeMessageHeader writes h into the first MessageHeaderSize bytes of buf.
func EncodeMessageHeader(buf []byte, h MessageHeader) {
	_ = buf[:MessageHeaderSize]
	buf[0] = uint8(h.Type)
	byteOrder.PutUint16(buf[1:3], h.Size)
}

// DecodeMessageHeader parses a MessageHeader from the first
// MessageHeaderSize bytes of buf.
func DecodeMessageHeader(buf []byte) (MessageHeader, error) {
	if len(buf) < MessageHeaderSize {
		return MessageHeader{}, apperrors.Protocol("wire.DecodeMessageHeader", fmt.Errorf("short header: %d bytes", len(buf)))
	}
	return MessageHeader{
		Type: MessageType(buf[0]),
		Size: byteOrder.Uint16(buf[1:3]),
	}, nil
}
