package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

// GenerateAESKey returns a fresh 256-bit symmetric key.
func GenerateAESKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "[GenerateAESKey] rand.Read")
	}
	return key, nil
}

// SealAES encrypts plaintext with AES-GCM. Output layout is
// nonce || ciphertext || tag, matching what the backend expects.
func SealAES(plaintext string, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[SealAES] new cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[SealAES] new gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[SealAES] nonce")
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// OpenAES reverses SealAES.
func OpenAES(sealed, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "[OpenAES] new cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "[OpenAES] new gcm")
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("[OpenAES] data too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "[OpenAES] open")
	}
	return string(plaintext), nil
}

// EncryptRSA encrypts with RSA-OAEP (SHA-256) and returns base64, the format
// the backend accepts for key exchange payloads.
func EncryptRSA(plaintext []byte, key *rsa.PublicKey) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, plaintext, nil)
	if err != nil {
		return "", errors.Wrap(err, "[EncryptRSA] encrypt")
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptRSA reverses EncryptRSA.
func DecryptRSA(encoded string, key *rsa.PrivateKey) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "[DecryptRSA] base64")
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[DecryptRSA] decrypt")
	}
	return plaintext, nil
}
