package sections

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the ranges in one section.
type Summary struct {
	Sector    uint8   `json:"sector"`
	Count     int     `json:"count"`
	MinLen    uint16  `json:"min_len"`
	MaxLen    uint16  `json:"max_len"`
	MeanLen   float64 `json:"mean_len"`
	StdDevLen float64 `json:"stddev_len"`
}

// Summarise computes range statistics for s. StdDevLen is zero for fewer
// than two points.
func Summarise(s Section) Summary {
	sum := Summary{Sector: s.Sector, Count: len(s.Points)}
	if len(s.Points) == 0 {
		return sum
	}
	lens := make([]float64, len(s.Points))
	for i, p := range s.Points {
		lens[i] = float64(p.Len)
	}
	sum.MinLen = uint16(floats.Min(lens))
	sum.MaxLen = uint16(floats.Max(lens))
	if len(lens) < 2 {
		sum.MeanLen = lens[0]
		return sum
	}
	sum.MeanLen, sum.StdDevLen = stat.MeanStdDev(lens, nil)
	return sum
}
