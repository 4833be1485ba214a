package encryption_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/spenselabs/partnersdk/api"
	"github.com/spenselabs/partnersdk/encryption"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/storage"
	"github.com/spenselabs/partnersdk/storage/storefakes"
	"github.com/stretchr/testify/require"
)

type fakeKeyFetcher struct {
	keys  map[string]api.NetworkKey
	calls int
}

func (f *fakeKeyFetcher) NetworkKeys(context.Context) (map[string]api.NetworkKey, error) {
	f.calls++
	return f.keys, nil
}

func publicKeyPEM(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestAESSealOpenRoundTrip(t *testing.T) {
	key, err := encryption.GenerateAESKey()
	require.NoError(t, err)

	sealed, err := encryption.SealAES("sensitive payload", key)
	require.NoError(t, err)

	opened, err := encryption.OpenAES(sealed, key)
	require.NoError(t, err)
	require.Equal(t, "sensitive payload", opened)
}

func TestOpenAESRejectsTamperedData(t *testing.T) {
	key, err := encryption.GenerateAESKey()
	require.NoError(t, err)
	sealed, err := encryption.SealAES("payload", key)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = encryption.OpenAES(sealed, key)
	require.Error(t, err)
}

func TestRSARoundTrip(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	encoded, err := encryption.EncryptRSA([]byte("aes-key-material"), &private.PublicKey)
	require.NoError(t, err)

	decoded, err := encryption.DecryptRSA(encoded, private)
	require.NoError(t, err)
	require.Equal(t, []byte("aes-key-material"), decoded)
}

func TestKeyCachePicksLatestExpiryAndCaches(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemStr := publicKeyPEM(t, &private.PublicKey)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeKeyFetcher{keys: map[string]api.NetworkKey{
		"old": {Public: pemStr, Kid: "kid-old", Expiry: now.Add(24 * time.Hour).Format("2006-01-02 15:04:05")},
		"new": {Public: pemStr, Kid: "kid-new", Expiry: now.Add(48 * time.Hour).Format("2006-01-02 15:04:05")},
	}}
	store := storefakes.NewFakeStore()

	cache, err := encryption.NewKeyCache(fetcher, store, encryption.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	key, err := cache.PublicKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "kid-new", key.Kid)
	require.Equal(t, 1, fetcher.calls)

	kid, ok := store.Get(storage.KeySigningKeyID)
	require.True(t, ok)
	require.Equal(t, "kid-new", kid)

	// Second resolution is served from the store.
	key, err = cache.PublicKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "kid-new", key.Kid)
	require.Equal(t, 1, fetcher.calls)
}

func TestKeyCacheRefetchesAfterExpiry(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemStr := publicKeyPEM(t, &private.PublicKey)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeKeyFetcher{keys: map[string]api.NetworkKey{
		"k": {Public: pemStr, Kid: "kid-1", Expiry: now.Add(time.Hour).Format("2006-01-02 15:04:05")},
	}}
	store := storefakes.NewFakeStore()

	clock := now
	cache, err := encryption.NewKeyCache(fetcher, store, encryption.WithNowTime(func() time.Time { return clock }))
	require.NoError(t, err)

	_, err = cache.PublicKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	clock = now.Add(2 * time.Hour)
	_, err = cache.PublicKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.calls)
}

func TestKeyCacheNoUsableKey(t *testing.T) {
	fetcher := &fakeKeyFetcher{keys: map[string]api.NetworkKey{
		"bad": {Public: "", Kid: "kid", Expiry: "2030-01-01 00:00:00"},
	}}
	cache, err := encryption.NewKeyCache(fetcher, storefakes.NewFakeStore())
	require.NoError(t, err)

	_, err = cache.PublicKey(context.Background())
	require.True(t, sdkerrors.Is(err, sdkerrors.ErrInvalidPublicKey))
}
