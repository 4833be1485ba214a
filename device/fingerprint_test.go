package device_test

import (
	"testing"

	"github.com/spenselabs/partnersdk/device"
	"github.com/spenselabs/partnersdk/storage"
	"github.com/spenselabs/partnersdk/storage/storefakes"
	"github.com/stretchr/testify/require"
)

func TestResolveMintsStableUUID(t *testing.T) {
	store := storefakes.NewFakeStore()

	first, err := device.Resolve(store, device.Overrides{})
	require.NoError(t, err)
	require.NotEmpty(t, first.DeviceUUID)

	second, err := device.Resolve(store, device.Overrides{})
	require.NoError(t, err)
	require.Equal(t, first.DeviceUUID, second.DeviceUUID)

	persisted, ok := store.Get(storage.KeyDeviceUUID)
	require.True(t, ok)
	require.Equal(t, first.DeviceUUID, persisted)
}

func TestResolveAppliesOverrides(t *testing.T) {
	store := storefakes.NewFakeStore()

	fp, err := device.Resolve(store, device.Overrides{
		Manufacturer: "Acme",
		Model:        "Widget 9",
		OS:           "acmeOS",
		OSVersion:    "17.2",
		AppVersion:   "3.1.4",
	})
	require.NoError(t, err)
	require.Equal(t, "Acme", fp.Manufacturer)
	require.Equal(t, "Widget 9", fp.Model)
	require.Equal(t, "acmeOS", fp.OS)
	require.Equal(t, "17.2", fp.OSVersion)
	require.Equal(t, "3.1.4", fp.AppVersion)
}

func TestResolveDefaultsNonEmpty(t *testing.T) {
	fp, err := device.Resolve(storefakes.NewFakeStore(), device.Overrides{})
	require.NoError(t, err)
	require.NotEmpty(t, fp.Manufacturer)
	require.NotEmpty(t, fp.Model)
	require.NotEmpty(t, fp.OS)
	require.NotEmpty(t, fp.OSVersion)
	require.NotEmpty(t, fp.AppVersion)
}
