// Package device describes the device identity attached to binding and
// session calls.
package device

import (
	"runtime"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spenselabs/partnersdk/storage"
)

// Fingerprint identifies the physical device to the backend. It is sent with
// every binding challenge and device-session registration.
type Fingerprint struct {
	DeviceUUID   string `json:"device_uuid"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	OS           string `json:"os"`
	OSVersion    string `json:"os_version"`
	AppVersion   string `json:"app_version"`
}

// Overrides lets the host application supply hardware details the SDK cannot
// discover itself. Empty fields keep their defaults.
type Overrides struct {
	Manufacturer string
	Model        string
	OS           string
	OSVersion    string
	AppVersion   string
}

// Resolve builds the device fingerprint, minting and persisting a device UUID
// on first use so the identity is stable across launches.
func Resolve(store storage.Store, overrides Overrides) (Fingerprint, error) {
	if store == nil {
		return Fingerprint{}, errors.New("[device.Resolve] store is required")
	}

	deviceUUID, ok := store.Get(storage.KeyDeviceUUID)
	if !ok || deviceUUID == "" {
		deviceUUID = uuid.New().String()
		if err := store.Set(storage.KeyDeviceUUID, deviceUUID); err != nil {
			return Fingerprint{}, errors.Wrap(err, "[device.Resolve] persist device uuid")
		}
	}

	fp := Fingerprint{
		DeviceUUID:   deviceUUID,
		Manufacturer: overrides.Manufacturer,
		Model:        overrides.Model,
		OS:           overrides.OS,
		OSVersion:    overrides.OSVersion,
		AppVersion:   overrides.AppVersion,
	}
	if fp.Manufacturer == "" {
		fp.Manufacturer = "unknown"
	}
	if fp.Model == "" {
		fp.Model = runtime.GOARCH
	}
	if fp.OS == "" {
		fp.OS = runtime.GOOS
	}
	if fp.OSVersion == "" {
		fp.OSVersion = "unknown"
	}
	if fp.AppVersion == "" {
		fp.AppVersion = "0.0.0"
	}
	return fp, nil
}
