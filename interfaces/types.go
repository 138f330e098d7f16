package interfaces

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hoststack/vm-agent/cryptoutils"
)

type TLSCSR = cryptoutils.TLSCSR
type TLSCert = cryptoutils.TLSCert
type CACert = cryptoutils.CACert
type PrivateKeyPEM = cryptoutils.PrivateKeyPEM

// deviceIDRegex matches the canonical device identifier format: the fixed
// "vm-" prefix followed by 12 lowercase hex characters.
var deviceIDRegex = regexp.MustCompile(`^vm-[0-9a-f]{12}$`)

// DeviceID is the durable, globally unique identifier of this device.
// It is generated once and reused verbatim for the life of the device.
type DeviceID string

// NewDeviceID validates a device identifier string.
func NewDeviceID(id string) (DeviceID, error) {
	if !deviceIDRegex.MatchString(id) {
		return "", fmt.Errorf("invalid device id %q: must match %s", id, deviceIDRegex.String())
	}
	return DeviceID(id), nil
}

// String returns the device ID as a string.
func (id DeviceID) String() string {
	return string(id)
}

// Validate checks that the device ID has the canonical format.
func (id DeviceID) Validate() error {
	_, err := NewDeviceID(string(id))
	return err
}

// APIKey is the device's long-lived bearer secret: 32 bytes of entropy in
// URL-safe base64 encoding without padding.
type APIKey string

// NewAPIKey validates an API key string.
func NewAPIKey(key string) (APIKey, error) {
	if key == "" {
		return "", errors.New("empty api key")
	}
	return APIKey(key), nil
}

// String returns the API key as a string. Do not log the result.
func (k APIKey) String() string {
	return string(k)
}

// OrganizationID identifies the tenant/organization a device is bound to.
type OrganizationID string

// String returns the organization ID as a string.
func (id OrganizationID) String() string {
	return string(id)
}
