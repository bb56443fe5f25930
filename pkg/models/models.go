package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Point converts the location to an orb point (x = longitude, y = latitude)
func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

// Validate checks the location lies inside the valid domain
func (l Location) Validate() error {
	if !(l.Lat >= -90 && l.Lat <= 90) {
		return fmt.Errorf("latitude %v out of range [-90, 90]", l.Lat)
	}
	if !(l.Lon >= -180 && l.Lon <= 180) {
		return fmt.Errorf("longitude %v out of range [-180, 180]", l.Lon)
	}
	return nil
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location `json:"bottom_left" yaml:"bottom_left"`
	TopRight   Location `json:"top_right" yaml:"top_right"`
}

// Bound converts the box to an orb bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: b.BottomLeft.Point(), Max: b.TopRight.Point()}
}

// Validate checks both corners and that the box has a positive area
func (b BoundingBox) Validate() error {
	if err := b.BottomLeft.Validate(); err != nil {
		return fmt.Errorf("bottom left: %w", err)
	}
	if err := b.TopRight.Validate(); err != nil {
		return fmt.Errorf("top right: %w", err)
	}
	if b.TopRight.Lat <= b.BottomLeft.Lat || b.TopRight.Lon <= b.BottomLeft.Lon {
		return fmt.Errorf("top right corner must be north-east of bottom left corner")
	}
	return nil
}

// WorldBox is the whole (longitude, latitude) domain
func WorldBox() BoundingBox {
	return BoundingBox{
		BottomLeft: Location{Lat: -90, Lon: -180},
		TopRight:   Location{Lat: 90, Lon: 180},
	}
}

// LabelResult is the answer to a point lookup
type LabelResult struct {
	Label string  `json:"label"`
	Found bool    `json:"found"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	IP    string  `json:"ip,omitempty"`
}
