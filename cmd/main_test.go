package main

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestGenerateRandomPoints(t *testing.T) {
	points := generateRandomPoints(1000)
	assert.Len(t, points, 1000)
	for _, p := range points {
		assert.True(t, p[0] >= -180 && p[0] <= 180, "longitude %v", p[0])
		assert.True(t, p[1] >= -90 && p[1] <= 90, "latitude %v", p[1])
	}
}

func TestRunLookups(t *testing.T) {
	numWorkers = 3
	points := generateRandomPoints(1000)

	_, hits := runLookups(points, func(p orb.Point) bool { return p[0] >= 0 })
	var want int64
	for _, p := range points {
		if p[0] >= 0 {
			want++
		}
	}
	assert.Equal(t, want, hits)
}
