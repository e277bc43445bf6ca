package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRegion(t *testing.T) {
	assert.Equal(t, RegionJeju, ResolveRegion("63000"))
	assert.Equal(t, RegionJeju, ResolveRegion("63644"))
	assert.Equal(t, RegionMainland, ResolveRegion("63645"))
	assert.Equal(t, RegionOutsideJeju, ResolveRegion("40210"), "Ulleungdo")
	assert.Equal(t, RegionOutsideJeju, ResolveRegion("23110"), "Ongjin islands")
	assert.Equal(t, RegionMainland, ResolveRegion("06236"), "Seoul")
}

func TestResolveRegionMalformed(t *testing.T) {
	assert.Equal(t, RegionMainland, ResolveRegion(""))
	assert.Equal(t, RegionMainland, ResolveRegion("not-a-code"))
}
