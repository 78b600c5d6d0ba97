package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/scrypt"
)

const (
	nonceSize = 12 // standard GCM nonce length
	saltSize  = 16

	// scrypt parameters, interactive-login strength.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Keystore holds the wallet API credential encrypted at rest. The file
// format is JSON carrying the scrypt salt and the AES-256-GCM ciphertext
// with the nonce prepended.
type Keystore struct {
	path string
}

type keystoreFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Ciphertext []byte `json:"ciphertext"`
}

// NewKeystore creates a keystore over the given file path.
func NewKeystore(path string) *Keystore {
	return &Keystore{path: path}
}

// Save encrypts secret under the passphrase and writes the keystore file.
func (k *Keystore) Save(secret, passphrase string) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("rand salt: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}
	ciphertext, err := encrypt([]byte(secret), key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(keystoreFile{
		Version:    1,
		Salt:       salt,
		Ciphertext: ciphertext,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}

// Load decrypts the stored secret with the passphrase.
func (k *Keystore) Load(passphrase string) (string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return "", fmt.Errorf("read keystore: %w", err)
	}

	var f keystoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse keystore: %w", err)
	}
	if f.Version != 1 {
		return "", fmt.Errorf("unsupported keystore version %d", f.Version)
	}

	key, err := deriveKey(passphrase, f.Salt)
	if err != nil {
		return "", err
	}
	secret, err := decrypt(f.Ciphertext, key)
	if err != nil {
		return "", fmt.Errorf("decrypt keystore (wrong passphrase?): %w", err)
	}
	return string(secret), nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// encrypt seals plaintext with AES-256-GCM, prepending the nonce.
func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens ciphertext produced by encrypt (nonce || ciphertext).
func decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
}
