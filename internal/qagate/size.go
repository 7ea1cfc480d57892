package qagate

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

const gbIndex = 3

// Size is a byte count expressed in base-1024 units with two decimals.
type Size struct {
	Value float64
	Unit  string
}

// FormatBytes converts bytes to the largest base-1024 unit whose value is at
// least one, i.e. floor(log1024(bytes)).
func FormatBytes(bytes int64) Size {
	if bytes <= 0 {
		return Size{Value: 0, Unit: sizeUnits[0]}
	}
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return Size{Value: math.Round(value*100) / 100, Unit: sizeUnits[unit]}
}

func (s Size) String() string {
	return strconv.FormatFloat(s.Value, 'f', -1, 64) + " " + s.Unit
}

// GB returns the size expressed in gigabytes.
func (s Size) GB() float64 {
	idx := unitIndex(s.Unit)
	if idx < 0 {
		return 0
	}
	return s.Value * math.Pow(1024, float64(idx-gbIndex))
}

// ExceedsCeiling reports whether s is strictly larger than ceilingGB.
func ExceedsCeiling(s Size, ceilingGB float64) bool {
	return s.GB() > ceilingGB
}

func unitIndex(unit string) int {
	for i, candidate := range sizeUnits {
		if candidate == unit {
			return i
		}
	}
	return -1
}
