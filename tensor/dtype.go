package tensor

import "math"

// DType enumerates the element types a Tensor can declare. Storage is
// always float64; the dtype controls how values are rounded on the way in
// so that every stored value is exactly representable in the declared
// precision.
type DType int

const (
	Float16 DType = iota
	Float32
	Float64
)

func (d DType) String() string {
	switch d {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return "unknown"
}

// quantize rounds v to the nearest value representable in d.
func (d DType) quantize(v float64) float64 {
	switch d {
	case Float16:
		return float64(halfToFloat(floatToHalf(float32(v))))
	case Float32:
		return float64(float32(v))
	default:
		return v
	}
}

// half is an IEEE 754 binary16 value stored in a uint16.
// Go has no native float16; conversion is done by hand:
// 1 sign bit, 5 exponent bits (bias 15), 10 mantissa bits.
type half uint16

// floatToHalf converts with round-to-nearest. Values above 65504 become
// signed infinity, values below 2^-14 flush to signed zero (subnormal
// halves are not represented).
func floatToHalf(f float32) half {
	bits := math.Float32bits(f)
	sign := uint16(bits >> 16 & 0x8000)
	bits &= 0x7FFFFFFF

	if bits >= 0x7F800000 { // Inf or NaN
		if bits > 0x7F800000 {
			return half(sign | 0x7E00)
		}
		return half(sign | 0x7C00)
	}
	if bits < 0x38800000 { // < 2^-14: flush to zero
		return half(sign)
	}

	// Round the 13 dropped mantissa bits to nearest. A mantissa carry
	// propagates into the exponent, which is the correct IEEE behavior.
	bits += 0x00001000
	if bits >= 0x47800000 { // >= 65520 after rounding: overflow
		return half(sign | 0x7C00)
	}
	exp := uint16(bits>>23) - 127 + 15
	mant := uint16(bits>>13) & 0x3FF
	return half(sign | exp<<10 | mant)
}

func halfToFloat(h half) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h&0x7C00) >> 10
	mant := uint32(h & 0x3FF)

	if exp == 0x1F { // Inf or NaN
		if mant == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7FC00000)
	}
	if exp == 0 { // zero (subnormals flushed on encode)
		return math.Float32frombits(sign)
	}

	exp32 := (exp - 15 + 127) << 23
	return math.Float32frombits(sign | exp32 | mant<<13)
}
