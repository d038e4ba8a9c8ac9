package utils

import "math"

const MicrosPerUnit = 1_000_000

// ToMicros converts a currency amount to integer micro-units so budget
// arithmetic never accumulates float error
func ToMicros(amount float64) int64 {
	return int64(math.Round(amount * MicrosPerUnit))
}

func FromMicros(micros int64) float64 {
	return float64(micros) / MicrosPerUnit
}
