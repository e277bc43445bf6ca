package domain

import (
	"fmt"
	"strings"
)

// carrierNames maps the carrier codes accepted from tracking callbacks to
// display names. Codes outside this table are rejected before any line is
// touched.
var carrierNames = map[string]string{
	"01": "Korea Post",
	"04": "CJ Logistics",
	"05": "Hanjin Express",
	"06": "Logen",
	"08": "Lotte Express",
	"11": "Ilyang Logis",
	"23": "Kyungdong Express",
	"46": "CU Post",
}

// CarrierName resolves a carrier code to its display name.
func CarrierName(code string) (string, error) {
	name, ok := carrierNames[code]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCarrier, code)
	}
	return name, nil
}

// ValidateShipment checks a carrier code and tracking number pair before it
// is stored on a line.
func ValidateShipment(carrierCode, carrierNumber string) error {
	if _, err := CarrierName(carrierCode); err != nil {
		return err
	}
	if strings.TrimSpace(carrierNumber) == "" {
		return fmt.Errorf("empty tracking number for carrier %s", carrierCode)
	}
	return nil
}
