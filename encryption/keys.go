// Package encryption caches the backend's published RSA signing key and
// provides the symmetric helpers used for payload sealing.
package encryption

import (
	"context"
	"crypto/rsa"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/spenselabs/partnersdk/api"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/storage"
)

const expiryLayout = "2006-01-02 15:04:05"

// KeyFetcher is the slice of the API client the key cache needs.
type KeyFetcher interface {
	NetworkKeys(ctx context.Context) (map[string]api.NetworkKey, error)
}

// PublicKey is a parsed backend signing key.
type PublicKey struct {
	Key *rsa.PublicKey
	Kid string
}

// KeyCache resolves the current backend public key, persisting it until
// expiry so most calls never touch the network.
type KeyCache struct {
	fetcher KeyFetcher
	store   storage.Store
	nowTime func() time.Time
}

// KeyCacheOption configures a KeyCache.
type KeyCacheOption func(*KeyCache)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) KeyCacheOption {
	return func(kc *KeyCache) { kc.nowTime = nowFunc }
}

// NewKeyCache builds a KeyCache.
func NewKeyCache(fetcher KeyFetcher, store storage.Store, options ...KeyCacheOption) (*KeyCache, error) {
	if fetcher == nil {
		return nil, errors.New("[NewKeyCache] fetcher is required")
	}
	if store == nil {
		return nil, errors.New("[NewKeyCache] store is required")
	}
	kc := &KeyCache{fetcher: fetcher, store: store, nowTime: time.Now}
	for _, opt := range options {
		opt(kc)
	}
	return kc, nil
}

// PublicKey returns the cached key when it is still valid, otherwise fetches
// the key set and caches the entry with the latest expiry.
func (kc *KeyCache) PublicKey(ctx context.Context) (PublicKey, error) {
	if pem, kid, ok := kc.cached(); ok {
		return parsePublic(pem, kid)
	}

	keys, err := kc.fetcher.NetworkKeys(ctx)
	if err != nil {
		return PublicKey{}, errors.Wrap(err, "[KeyCache.PublicKey] fetch network keys")
	}

	var latest api.NetworkKey
	var latestExpiry int64
	for _, key := range keys {
		if key.Public == "" || key.Kid == "" {
			continue
		}
		expiry, err := time.Parse(expiryLayout, key.Expiry)
		if err != nil {
			continue
		}
		if millis := expiry.UnixMilli(); millis > latestExpiry {
			latestExpiry = millis
			latest = key
		}
	}
	if latest.Public == "" {
		return PublicKey{}, errors.Wrap(sdkerrors.ErrInvalidPublicKey, "[KeyCache.PublicKey] no usable key in response")
	}

	_ = kc.store.Set(storage.KeySigningKey, latest.Public)
	_ = kc.store.Set(storage.KeySigningKeyID, latest.Kid)
	_ = kc.store.Set(storage.KeySigningKeyExp, strconv.FormatInt(latestExpiry, 10))

	return parsePublic(latest.Public, latest.Kid)
}

func (kc *KeyCache) cached() (pem, kid string, ok bool) {
	pem, okKey := kc.store.Get(storage.KeySigningKey)
	kid, okKid := kc.store.Get(storage.KeySigningKeyID)
	expiryStr, okExp := kc.store.Get(storage.KeySigningKeyExp)
	if !okKey || !okKid || !okExp {
		return "", "", false
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", "", false
	}
	if kc.nowTime().UnixMilli() >= expiry {
		return "", "", false
	}
	return pem, kid, true
}

func parsePublic(pemStr, kid string) (PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
	if err != nil {
		return PublicKey{}, sdkerrors.Wrapf(sdkerrors.ErrInvalidPublicKey, "[encryption.parsePublic] %v", err)
	}
	return PublicKey{Key: key, Kid: kid}, nil
}

// ParsePrivateKeyPEM parses an RSA private key in PEM form.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemStr))
	if err != nil {
		return nil, sdkerrors.Wrapf(sdkerrors.ErrInvalidPrivateKey, "[encryption.ParsePrivateKeyPEM] %v", err)
	}
	return key, nil
}
