package peermap

import (
	"fmt"
	"math"
)

// Category is ordered by display priority, a cell shared by several categories shows the highest
type Category int

const (
	Known Category = iota
	Connected
	Own
	categoryCount
)

func (c Category) String() string {
	switch c {
	case Known:
		return "known-peer"
	case Connected:
		return "connected-peer"
	case Own:
		return "own-peer"
	}
	return "unknown"
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Cell is a square of the lat/lng grid, X grows eastwards from -180 and Y southwards from 90
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) String() string {
	return fmt.Sprintf("%d:%d", c.X, c.Y)
}

func CellAt(lat, lng, size float64) Cell {
	lat = math.Max(-90, math.Min(90, lat))
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	rows := int(math.Ceil(180 / size))
	y := int(math.Floor((90 - lat) / size))
	if y >= rows {
		y = rows - 1
	}
	return Cell{X: int(math.Floor(lng / size)), Y: y}
}
