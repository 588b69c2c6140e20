package models

import (
	"fmt"
	"time"
)

// Coordinate is a validated latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// WorkUnit is the outcome of processing one sample timestamp. Exactly one
// exists per timestamp: either Coord is set, or Err holds the fetch or parse
// failure for that sample.
type WorkUnit struct {
	Index  int
	Offset time.Duration
	Coord  *Coordinate
	Err    error
}

func (u WorkUnit) Failed() bool {
	return u.Err != nil
}
