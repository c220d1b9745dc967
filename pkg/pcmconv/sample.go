package pcmconv

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

// sampleCodec converts a single sample between its wire form and [-1, 1].
type sampleCodec struct {
	decode func(p []byte) float64
	encode func(p []byte, v float64)
}

func clampInt(v float64, scale float64) int64 {
	r := math.Round(v * scale)
	if r > scale-1 {
		r = scale - 1
	}
	if r < -scale {
		r = -scale
	}
	return int64(r)
}

func decodeS24(b0, b1, b2 byte) float64 {
	val := int32(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16)
	if val&0x800000 != 0 {
		val |= -16777216
	}
	return float64(val) / 8388608
}

func codecFor(f types.PCMFormat) (sampleCodec, error) {
	switch f {
	case types.PCMFormatU8:
		return sampleCodec{
			decode: func(p []byte) float64 { return (float64(p[0]) - 128) / 128 },
			encode: func(p []byte, v float64) { p[0] = byte(clampInt(v, 128) + 128) },
		}, nil
	case types.PCMFormatS16LE:
		return sampleCodec{
			decode: func(p []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(p))) / 32768 },
			encode: func(p []byte, v float64) { binary.LittleEndian.PutUint16(p, uint16(int16(clampInt(v, 32768)))) },
		}, nil
	case types.PCMFormatS16BE:
		return sampleCodec{
			decode: func(p []byte) float64 { return float64(int16(binary.BigEndian.Uint16(p))) / 32768 },
			encode: func(p []byte, v float64) { binary.BigEndian.PutUint16(p, uint16(int16(clampInt(v, 32768)))) },
		}, nil
	case types.PCMFormatS24LE:
		return sampleCodec{
			decode: func(p []byte) float64 { return decodeS24(p[0], p[1], p[2]) },
			encode: func(p []byte, v float64) {
				val := clampInt(v, 8388608)
				p[0], p[1], p[2] = byte(val), byte(val>>8), byte(val>>16)
			},
		}, nil
	case types.PCMFormatS24BE:
		return sampleCodec{
			decode: func(p []byte) float64 { return decodeS24(p[2], p[1], p[0]) },
			encode: func(p []byte, v float64) {
				val := clampInt(v, 8388608)
				p[0], p[1], p[2] = byte(val>>16), byte(val>>8), byte(val)
			},
		}, nil
	case types.PCMFormatS32LE:
		return sampleCodec{
			decode: func(p []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648 },
			encode: func(p []byte, v float64) { binary.LittleEndian.PutUint32(p, uint32(int32(clampInt(v, 2147483648)))) },
		}, nil
	case types.PCMFormatS32BE:
		return sampleCodec{
			decode: func(p []byte) float64 { return float64(int32(binary.BigEndian.Uint32(p))) / 2147483648 },
			encode: func(p []byte, v float64) { binary.BigEndian.PutUint32(p, uint32(int32(clampInt(v, 2147483648)))) },
		}, nil
	case types.PCMFormatFloat32LE:
		return sampleCodec{
			decode: func(p []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(p))) },
			encode: func(p []byte, v float64) { binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v))) },
		}, nil
	case types.PCMFormatFloat32BE:
		return sampleCodec{
			decode: func(p []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(p))) },
			encode: func(p []byte, v float64) { binary.BigEndian.PutUint32(p, math.Float32bits(float32(v))) },
		}, nil
	case types.PCMFormatFloat64LE:
		return sampleCodec{
			decode: func(p []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(p)) },
			encode: func(p []byte, v float64) { binary.LittleEndian.PutUint64(p, math.Float64bits(v)) },
		}, nil
	case types.PCMFormatFloat64BE:
		return sampleCodec{
			decode: func(p []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(p)) },
			encode: func(p []byte, v float64) { binary.BigEndian.PutUint64(p, math.Float64bits(v)) },
		}, nil
	default:
		return sampleCodec{}, fmt.Errorf("unsupported PCM format: %v", f)
	}
}
