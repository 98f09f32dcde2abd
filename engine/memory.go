package engine

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lensfun-runtime/errors"
)

// WazeroMemory wraps wazero memory with the reads the adapter needs.
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return errors.OutOfBounds(offset, uint32(len(data)))
	}
	return nil
}

// ReadCString decodes bytes from ptr up to the first NUL. Invalid UTF-8 is
// replaced with U+FFFD.
func (m *WazeroMemory) ReadCString(ptr uint32) (string, error) {
	size := m.Size()
	if ptr >= size {
		return "", errors.OutOfBounds(ptr, 1)
	}
	data, _ := m.mem.Read(ptr, size-ptr)
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Value(ptr).
			Detail("string at %d is not NUL-terminated", ptr).
			Build()
	}
	return strings.ToValidUTF8(string(data[:end]), "\uFFFD"), nil
}

// ReadFloat32s copies n little-endian floats starting at offset.
func (m *WazeroMemory) ReadFloat32s(offset, n uint32) ([]float32, error) {
	if uint64(n)*4 > math.MaxUint32 {
		return nil, errors.OutOfBounds(offset, math.MaxUint32)
	}
	data, err := m.Read(offset, n*4)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}
