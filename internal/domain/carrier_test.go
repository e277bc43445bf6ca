package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarrierName(t *testing.T) {
	name, err := CarrierName("04")
	require.NoError(t, err)
	assert.Equal(t, "CJ Logistics", name)

	_, err = CarrierName("99")
	assert.ErrorIs(t, err, ErrUnknownCarrier)
}

func TestValidateShipment(t *testing.T) {
	assert.NoError(t, ValidateShipment("05", "351234567890"))

	assert.ErrorIs(t, ValidateShipment("99", "351234567890"), ErrUnknownCarrier)
	assert.Error(t, ValidateShipment("05", "   "))
}
