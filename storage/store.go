// Package storage provides the durable local key-value store the SDK keeps
// its PIN record, bound-device identifiers and cached signing key in.
package storage

// Keys persisted by the SDK. The layout matches what earlier releases wrote,
// so upgrading in place keeps an existing PIN and device binding valid.
const (
	KeyPin             = "mpin"
	KeyPinSetAt        = "mpin_time"
	KeyPinLockedUntil  = "mpin_disabled_time"
	KeyDeviceBindingID = "device_binding_id"
	KeyDeviceID        = "device_id"
	KeyDeviceUUID      = "device_uuid"
	KeySigningKey      = "key_web"
	KeySigningKeyID    = "kid"
	KeySigningKeyExp   = "key_web_expiry"
)

// Store is the secure key-value contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) (string, bool)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Clear removes key. Clearing an absent key is not an error.
	Clear(key string) error
}
