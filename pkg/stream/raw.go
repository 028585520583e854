package stream

import (
	"encoding/binary"
	"io"
	"math"
)

// WriteFloat32 writes samples as little-endian 32-bit floats.
func WriteFloat32(w io.Writer, samples []float32) error {
	return binary.Write(w, binary.LittleEndian, samples)
}

// ReadFloat32 reads little-endian 32-bit floats until EOF. A trailing partial
// sample is dropped.
func ReadFloat32(r io.Reader) ([]float32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	ret := make([]float32, len(raw)/4)
	for i := range ret {
		ret[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return ret, nil
}
