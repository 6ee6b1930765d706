package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// keySalt is fixed so the same process secret always derives the same key,
	// letting restarts decrypt previously stored credentials.
	keySalt    = "tokenstack-credential-v1"
	keyLen     = 32
	iterations = 100_000
)

// Cipher encrypts and decrypts stored credential material with a key derived
// once from a long-lived process secret.
type Cipher struct {
	key []byte
}

func NewCipher(processSecret string) (*Cipher, error) {
	if processSecret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	key := pbkdf2.Key([]byte(processSecret), []byte(keySalt), iterations, keyLen, sha256.New)
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext with AES-GCM, nonce prefixed, hex encoded.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It fails when the ciphertext was produced with a
// key derived from a different process secret.
func (c *Cipher) Decrypt(ciphertextHex string) (string, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", errors.Wrap(err, "malformed ciphertext")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt credential")
	}

	return string(plaintext), nil
}
