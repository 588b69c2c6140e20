package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinateString(t *testing.T) {
	c := Coordinate{Lat: 51.429444, Lon: -0.323611}
	assert.Equal(t, "51.429444,-0.323611", c.String())

	assert.Equal(t, "0.000000,0.000000", Coordinate{}.String())
}

func TestWorkUnitFailed(t *testing.T) {
	assert.False(t, WorkUnit{Coord: &Coordinate{}}.Failed())
	assert.True(t, WorkUnit{Err: errors.New("no frame at offset")}.Failed())
}
