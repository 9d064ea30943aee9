package artifact

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Sealed artifact layout:
//
//	[salt: 16 bytes] [nonce: 12 bytes] [ciphertext] [tag: 16 bytes]
//
// The key is derived from the passphrase with scrypt and the payload is sealed with AES-256-GCM.
const (
	SaltSize  = 16
	NonceSize = 12
	TagSize   = 16

	keySize = 32
)

// scrypt cost parameters.
var (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Seal encrypts the whole src into dst using the passphrase.
func Seal(dst io.Writer, src io.Reader, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase is required")
	}

	plaintext, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("could not read plaintext: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("could not generate salt: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("could not generate nonce: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return err
	}

	out := make([]byte, 0, SaltSize+NonceSize+len(plaintext)+TagSize)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	if _, err := dst.Write(out); err != nil {
		return fmt.Errorf("could not write sealed artifact: %w", err)
	}

	return nil
}

// Open decrypts a sealed artifact. A wrong passphrase or tampered data returns an error.
func Open(src io.Reader, passphrase string) ([]byte, error) {
	sealed, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("could not read sealed artifact: %w", err)
	}
	if len(sealed) < HeaderSize {
		return nil, fmt.Errorf("sealed artifact is %d bytes, minimum is %d", len(sealed), HeaderSize)
	}

	salt := sealed[:SaltSize]
	nonce := sealed[SaltSize : SaltSize+NonceSize]
	ciphertext := sealed[SaltSize+NonceSize:]

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt artifact (wrong key or corrupted data): %w", err)
	}

	return plaintext, nil
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("could not derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("could not create GCM: %w", err)
	}

	return aead, nil
}
