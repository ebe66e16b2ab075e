package flow

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultMaxFrameSize bounds the frames accepted by a [BytesCodec].
const DefaultMaxFrameSize = 16 << 20

// BytesCodec is a framing codec using varint length-prefixed frames
// to exchange []byte over a flow.
type BytesCodec struct {
	copyBuffers  bool
	maxFrameSize uint64
}

// NewBytesCodec returns a codec. When localCopy is set, buffers handed to
// an in-process flow are copied so sender and receiver never share memory.
func NewBytesCodec(localCopy bool) BytesCodec {
	return BytesCodec{
		copyBuffers:  localCopy,
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// WithMaxFrameSize returns a copy of the codec refusing frames larger
// than size bytes.
func (c BytesCodec) WithMaxFrameSize(size uint64) BytesCodec {
	c.maxFrameSize = size
	return c
}

func (c BytesCodec) Encode(w io.Writer, msg interface{}) error {
	buf, ok := msg.([]byte)
	if !ok {
		return fmt.Errorf("%w: %T instead of []byte", ErrTypeMismatch, msg)
	}
	if c.maxFrameSize > 0 && uint64(len(buf)) > c.maxFrameSize {
		return ErrFrameTooLarge
	}

	frame := protowire.AppendVarint(make([]byte, 0, binary.MaxVarintLen64+len(buf)), uint64(len(buf)))
	frame = append(frame, buf...)
	_, err := w.Write(frame)
	return err
}

func (c BytesCodec) ProcessLocal(msg interface{}) (interface{}, error) {
	buf, ok := msg.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %T instead of []byte", ErrTypeMismatch, msg)
	}
	if !c.copyBuffers {
		return buf, nil
	}

	cloned := make([]byte, len(buf))
	copy(cloned, buf)
	return cloned, nil
}

func (c BytesCodec) Decode(r io.Reader) (interface{}, error) {
	prefix := make([]byte, 0, binary.MaxVarintLen64)
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return nil, err
		}
		prefix = append(prefix, one[0])
		if one[0] < 0x80 {
			break
		}
		if len(prefix) == binary.MaxVarintLen64 {
			return nil, fmt.Errorf("%w: varint prefix overflow", ErrFrameTooLarge)
		}
	}

	size, n := protowire.ConsumeVarint(prefix)
	if err := protowire.ParseError(n); err != nil {
		return nil, err
	}
	if c.maxFrameSize > 0 && size > c.maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
