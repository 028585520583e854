// Package frame turns payloads into error-protected byte frames and back.
//
// A variable length frame is a 3 byte length block (one length byte plus two
// parity bytes) followed by a data block. The data block carries the payload,
// a CRC-32 over the length byte and payload, and Reed-Solomon parity sized
// from the protected length. Fixed length frames drop the length block.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/norasector/tonewire/pkg/fec"
	"github.com/norasector/tonewire/pkg/protocol"
)

const (
	LengthBlockSize   = 3
	ChecksumSize      = 4
	MaxVariableLength = 140
	MaxFixedLength    = 64

	lengthParity = LengthBlockSize - 1
)

var (
	ErrEmptyPayload       = errors.New("empty payload")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUncorrectableFrame = errors.New("uncorrectable frame")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ECCBytes returns the number of parity bytes protecting n data bytes.
func ECCBytes(n, level int) int {
	if level < 1 {
		level = 1
	}
	base := 2
	if n >= 4 {
		base = max(4, 2*(n/5))
	}
	return base * level
}

// Errors reports how many corrupted bytes each block of a frame can absorb.
type Errors struct {
	LengthBlock int
	DataBlock   int
}

type Codec struct {
	fixedLength int
	dss         bool

	mu     sync.Mutex
	coders map[int]*fec.Codec
}

type CodecOption func(c *Codec) error

// WithFixedLength switches the codec to marker-less frames carrying exactly
// n payload bytes.
func WithFixedLength(n int) CodecOption {
	return func(c *Codec) error {
		if n < 1 || n > MaxFixedLength {
			return fmt.Errorf("fixed length must be 1-%d, got %d", MaxFixedLength, n)
		}
		c.fixedLength = n
		return nil
	}
}

// WithDSS scrambles payload bytes with a fixed sequence before protection.
func WithDSS() CodecOption {
	return func(c *Codec) error {
		c.dss = true
		return nil
	}
}

func NewCodec(opts ...CodecOption) (*Codec, error) {
	c := &Codec{
		coders: make(map[int]*fec.Codec),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FixedLength is 0 for variable length frames.
func (c *Codec) FixedLength() int {
	return c.fixedLength
}

func (c *Codec) DSS() bool {
	return c.dss
}

func (c *Codec) coder(nsym int) (*fec.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rs, ok := c.coders[nsym]; ok {
		return rs, nil
	}
	rs, err := fec.New(nsym)
	if err != nil {
		return nil, err
	}
	c.coders[nsym] = rs
	return rs, nil
}

// headerSize is the length block size, or 0 in fixed length mode.
func (c *Codec) headerSize() int {
	if c.fixedLength > 0 {
		return 0
	}
	return LengthBlockSize
}

// HeaderSize is the number of bytes preceding the data block.
func (c *Codec) HeaderSize() int {
	return c.headerSize()
}

// DataBlockSize is the size of the data block for an n byte payload.
func (c *Codec) DataBlockSize(n int, desc protocol.Descriptor) int {
	body := n + ChecksumSize
	return body + ECCBytes(body, desc.ECCLevel)
}

// EncodedSize is the total frame size for an n byte payload.
func (c *Codec) EncodedSize(n int, desc protocol.Descriptor) int {
	if c.fixedLength > 0 {
		n = c.fixedLength
	}
	return c.headerSize() + c.DataBlockSize(n, desc)
}

// MaxPayload is the largest payload desc can carry in one frame.
func (c *Codec) MaxPayload(desc protocol.Descriptor) int {
	if c.fixedLength > 0 {
		return c.fixedLength
	}
	n := MaxVariableLength
	for n > 0 && c.DataBlockSize(n, desc) > fec.MaxCodewordLength {
		n--
	}
	return n
}

// CorrectableErrors is the guaranteed correction capacity of an n byte
// payload frame.
func (c *Codec) CorrectableErrors(n int, desc protocol.Descriptor) Errors {
	ret := Errors{
		DataBlock: ECCBytes(n+ChecksumSize, desc.ECCLevel) / 2,
	}
	if c.fixedLength == 0 {
		ret.LengthBlock = lengthParity / 2
	}
	return ret
}

// Encode builds the frame for payload.
func (c *Codec) Encode(payload []byte, desc protocol.Descriptor) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if limit := c.MaxPayload(desc); len(payload) > limit {
		return nil, fmt.Errorf("%w: %d bytes, %s carries at most %d", ErrPayloadTooLarge, len(payload), desc.Name, limit)
	}

	n := len(payload)
	if c.fixedLength > 0 {
		n = c.fixedLength
	}

	body := make([]byte, n+ChecksumSize)
	copy(body, payload)
	binary.BigEndian.PutUint32(body[n:], c.checksum(body[:n]))
	if c.dss {
		scramble(body[:n])
	}

	rs, err := c.coder(ECCBytes(len(body), desc.ECCLevel))
	if err != nil {
		return nil, err
	}
	data, err := rs.Encode(body)
	if err != nil {
		return nil, err
	}

	if c.fixedLength > 0 {
		return data, nil
	}

	lengthCoder, err := c.coder(lengthParity)
	if err != nil {
		return nil, err
	}
	header, err := lengthCoder.Encode([]byte{byte(n)})
	if err != nil {
		return nil, err
	}

	return append(header, data...), nil
}

// Decode recovers the payload from a complete frame. encoded is not modified.
func (c *Codec) Decode(encoded []byte, desc protocol.Descriptor) ([]byte, error) {
	buf := make([]byte, len(encoded))
	copy(buf, encoded)

	if c.fixedLength > 0 {
		return c.DecodeData(buf, c.fixedLength, desc)
	}

	if len(buf) < LengthBlockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(buf))
	}
	n, err := c.DecodeLength(buf[:LengthBlockSize])
	if err != nil {
		return nil, err
	}
	if n > c.MaxPayload(desc) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrMalformedFrame, n, c.MaxPayload(desc))
	}

	return c.DecodeData(buf[LengthBlockSize:], n, desc)
}

// DecodeLength corrects a length block in place and returns the payload
// length it declares.
func (c *Codec) DecodeLength(block []byte) (int, error) {
	if len(block) < LengthBlockSize {
		return 0, fmt.Errorf("%w: length block of %d bytes", ErrMalformedFrame, len(block))
	}
	rs, err := c.coder(lengthParity)
	if err != nil {
		return 0, err
	}
	msg, _, err := rs.Decode(block[:LengthBlockSize])
	if err != nil {
		return 0, fmt.Errorf("%w: length block: %v", ErrUncorrectableFrame, err)
	}

	n := int(msg[0])
	if n == 0 || n > MaxVariableLength {
		return 0, fmt.Errorf("%w: declared length %d", ErrMalformedFrame, n)
	}
	return n, nil
}

// DecodeData corrects a data block carrying an n byte payload in place and
// returns the verified payload.
func (c *Codec) DecodeData(block []byte, n int, desc protocol.Descriptor) ([]byte, error) {
	size := c.DataBlockSize(n, desc)
	if len(block) < size {
		return nil, fmt.Errorf("%w: data block of %d bytes, need %d", ErrMalformedFrame, len(block), size)
	}

	rs, err := c.coder(ECCBytes(n+ChecksumSize, desc.ECCLevel))
	if err != nil {
		return nil, err
	}
	body, _, err := rs.Decode(block[:size])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUncorrectableFrame, err)
	}

	payload := make([]byte, n)
	copy(payload, body[:n])
	if c.dss {
		scramble(payload)
	}

	want := binary.BigEndian.Uint32(body[n:])
	if got := c.checksum(payload); got != want {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrUncorrectableFrame, got, want)
	}

	return payload, nil
}

// checksum covers the length byte in variable mode so a frame decoded with
// a wrong length cannot verify.
func (c *Codec) checksum(payload []byte) uint32 {
	h := crc32.New(castagnoli)
	if c.fixedLength == 0 {
		h.Write([]byte{byte(len(payload))})
	}
	h.Write(payload)
	return h.Sum32()
}
