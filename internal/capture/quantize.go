package capture

import "math"

// Saturated is the first raw depth value the sensor uses to flag an
// out-of-range pixel. Such pixels quantize to 0.
const Saturated = 32002

var logScale = 255 / math.Log10(Saturated-1)

// Quantize maps a raw depth sample to 8 bits on a log10 scale so that near
// detail keeps more resolution than far detail.
func Quantize(depth uint16) uint8 {
	if depth == 0 || depth >= Saturated {
		return 0
	}
	return uint8(logScale * math.Log10(float64(depth)))
}
