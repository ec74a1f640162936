package wire

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/tessera-mmo/core/internal/apperrors"
)

// Codec owns the zstd encoder/decoder pair used to (de)compress batch
// payloads above CompressionThreshold (§4.3) — single-threaded
// encoder/decoder to keep tick-loop latency low.
type Codec struct {
	mu                   sync.Mutex
	encoder              *zstd.Encoder
	decoder              *zstd.Decoder
	compressionThreshold int
}

// NewCodec создаёт кодек с порогом сжатия (в байтах полезной нагрузки батча).
func NewCodec(compressionThreshold int) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("wire: creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("wire: creating zstd decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder, compressionThreshold: compressionThreshold}, nil
}

// Close releases the encoder/decoder's background resources.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// BatchBuilder accumulates encoded messages into one outgoing batch,
// flushing automatically (via Oversize) once MaxBatchSize would be exceeded
// (§4.3, §8 P6). A single message whose own header+payload exceeds
// MaxBatchSize can never fit in any batch, which BatchBuilder.Add reports as
// a protocol error rather than silently truncating.
type BatchBuilder struct {
	messages []byte
	count    int
}

// NewBatchBuilder создаёт пустой построитель батча.
func NewBatchBuilder() *BatchBuilder {
	return &BatchBuilder{}
}

// Len returns the current uncompressed payload size in bytes.
func (b *BatchBuilder) Len() int { return len(b.messages) }

// Oversize reports whether adding a message of the given encoded size would
// push the batch's payload past MaxBatchSize.
func (b *BatchBuilder) Oversize(payloadSize int) bool {
	return len(b.messages)+MessageHeaderSize+payloadSize > MaxBatchSize
}

// Add appends one message to the batch. Returns a protocol error if the
// message alone (header + payload) could never fit in any batch.
func (b *BatchBuilder) Add(msg EncodedMessage) error {
	if MessageHeaderSize+len(msg.Payload) > MaxBatchSize {
		return apperrors.Protocol("wire.BatchBuilder.Add", fmt.Errorf(
			"message type %s is %d bytes, exceeds max batch size %d", msg.Type, len(msg.Payload), MaxBatchSize))
	}
	header := make([]byte, MessageHeaderSize)
	EncodeMessageHeader(header, MessageHeader{Type: msg.Type, Size: uint16(len(msg.Payload))})
	b.messages = append(b.messages, header...)
	b.messages = append(b.messages, msg.Payload...)
	b.count++
	return nil
}

// Empty reports whether no messages have been added.
func (b *BatchBuilder) Empty() bool { return b.count == 0 }

// BuildServer compresses the accumulated payload (if it exceeds the codec's
// threshold) and returns a complete server->client frame: header + payload.
func (b *BatchBuilder) BuildServer(codec *Codec, tickAdjustment int8, adjustmentIteration uint8) ([]byte, error) {
	payload, compressed, err := codec.maybeCompress(b.messages)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxBatchSize {
		return nil, apperrors.Protocol("wire.BatchBuilder.BuildServer", fmt.Errorf(
			"compressed batch is %d bytes, exceeds max %d", len(payload), MaxBatchSize))
	}
	out := make([]byte, ServerHeaderSize+len(payload))
	EncodeServerHeader(out[:ServerHeaderSize], ServerHeader{
		TickAdjustment:      tickAdjustment,
		AdjustmentIteration: adjustmentIteration,
		BatchSize:           uint16(len(payload)),
		Compressed:          compressed,
	})
	copy(out[ServerHeaderSize:], payload)
	return out, nil
}

// BuildClient is BuildServer's client->server analogue (§4.3 — client header
// carries only the echoed adjustment iteration). Client batches are never
// compressed: the client header has no spare bit for a compressed flag, and
// a client's outgoing batch (input changes, chunk/tile requests) is small
// enough that compression would rarely pay for its own header cost.
func (b *BatchBuilder) BuildClient(adjustmentIteration uint8) ([]byte, error) {
	if len(b.messages) > MaxBatchSize {
		return nil, apperrors.Protocol("wire.BatchBuilder.BuildClient", fmt.Errorf(
			"batch is %d bytes, exceeds max %d", len(b.messages), MaxBatchSize))
	}
	out := make([]byte, ClientHeaderSize+len(b.messages))
	EncodeClientHeader(out[:ClientHeaderSize], ClientHeader{AdjustmentIteration: adjustmentIteration})
	copy(out[ClientHeaderSize:], b.messages)
	return out, nil
}

func (c *Codec) maybeCompress(payload []byte) ([]byte, bool, error) {
	if len(payload) <= c.compressionThreshold {
		return payload, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	compressed := c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
	if len(compressed) >= len(payload) {
		// Сжатие не дало выигрыша — отправляем как есть, чтобы не тратить
		// CPU декомпрессора получателя впустую.
		return payload, false, nil
	}
	return compressed, true, nil
}

func (c *Codec) decompress(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, apperrors.Protocol("wire.Codec.decompress", err)
	}
	return out, nil
}

// ReadServerBatch parses a server->client frame (header + payload),
// decompressing if the header's flag is set, and splits the payload into
// individual encoded messages.
func ReadServerBatch(codec *Codec, frame []byte) (ServerHeader, []EncodedMessage, error) {
	header, err := DecodeServerHeader(frame)
	if err != nil {
		return ServerHeader{}, nil, err
	}
	body := frame[ServerHeaderSize:]
	if len(body) != int(header.BatchSize) {
		return header, nil, apperrors.Protocol("wire.ReadServerBatch", fmt.Errorf(
			"header declares %d bytes, frame carries %d", header.BatchSize, len(body)))
	}
	if header.Compressed {
		body, err = codec.decompress(body)
		if err != nil {
			return header, nil, err
		}
	}
	messages, err := splitMessages(body)
	return header, messages, err
}

// ReadClientBatch is ReadServerBatch's client->server analogue; client
// batches are never compressed (see BuildClient).
func ReadClientBatch(frame []byte) (ClientHeader, []EncodedMessage, error) {
	header, err := DecodeClientHeader(frame)
	if err != nil {
		return ClientHeader{}, nil, err
	}
	messages, err := splitMessages(frame[ClientHeaderSize:])
	return header, messages, err
}

func splitMessages(body []byte) ([]EncodedMessage, error) {
	var messages []EncodedMessage
	pos := 0
	for pos < len(body) {
		if len(body)-pos < MessageHeaderSize {
			return nil, apperrors.Protocol("wire.splitMessages", fmt.Errorf("trailing %d bytes too short for a message header", len(body)-pos))
		}
		header, err := DecodeMessageHeader(body[pos : pos+MessageHeaderSize])
		if err != nil {
			return nil, err
		}
		pos += MessageHeaderSize
		if len(body)-pos < int(header.Size) {
			return nil, apperrors.Protocol("wire.splitMessages", fmt.Errorf("message declares %d bytes, only %d remain", header.Size, len(body)-pos))
		}
		payload := body[pos : pos+int(header.Size)]
		pos += int(header.Size)
		messages = append(messages, EncodedMessage{Type: header.Type, Payload: payload})
	}
	return messages, nil
}
