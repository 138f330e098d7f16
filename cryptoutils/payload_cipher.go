package cryptoutils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

const (
	aesKeySize = 32
	aesIVSize  = 16
)

// EncryptedEnvelope carries an AES-256-CBC encrypted payload together with
// the material needed to decrypt it: either an RSA-wrapped message key or a
// key_id fingerprint referencing a pre-shared key.
type EncryptedEnvelope struct {
	// EncryptedData is the hex-encoded ciphertext.
	EncryptedData string `json:"encrypted_data"`

	// IV is the hex-encoded 16-byte CBC initialization vector.
	IV string `json:"iv"`

	// Timestamp is the encryption time in RFC 3339 / ISO 8601.
	Timestamp string `json:"timestamp"`

	// VMID identifies the sending device.
	VMID string `json:"vm_id"`

	// EncryptedKey is the hex-encoded RSA-OAEP wrapped AES key. Present
	// only when a recipient public key was supplied.
	EncryptedKey string `json:"encrypted_key,omitempty"`

	// KeyID is the first 16 hex characters of SHA-256(aes_key), identifying
	// a pre-shared key delivered out of band. Present only when no
	// recipient public key was supplied.
	KeyID string `json:"key_id,omitempty"`
}

// PayloadCipher encrypts sensitive payloads exchanged outside the TLS
// channel. Every message uses a freshly generated AES key and IV.
type PayloadCipher struct {
	deviceID string
}

// NewPayloadCipher creates a payload cipher stamping envelopes with the
// given device ID.
func NewPayloadCipher(deviceID string) *PayloadCipher {
	return &PayloadCipher{deviceID: deviceID}
}

// Encrypt serializes data to JSON and encrypts it with a fresh AES-256 key
// in CBC mode. If recipientPublicKeyPEM is non-nil the AES key is wrapped
// with RSA-OAEP (SHA-256) and included in the envelope; otherwise the
// envelope carries only the key_id fingerprint and the key must be
// delivered out of band.
func (c *PayloadCipher) Encrypt(data any, recipientPublicKeyPEM []byte) (*EncryptedEnvelope, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	aesKey := make([]byte, aesKeySize)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("failed to generate message key: %w", err)
	}
	iv := make([]byte, aesIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	// A full pad block is added when the plaintext is already aligned.
	padded := padPKCS7(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	envelope := &EncryptedEnvelope{
		EncryptedData: hex.EncodeToString(ciphertext),
		IV:            hex.EncodeToString(iv),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		VMID:          c.deviceID,
	}

	if recipientPublicKeyPEM != nil {
		publicKey, err := parseRSAPublicKey(recipientPublicKeyPEM)
		if err != nil {
			return nil, err
		}
		encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, aesKey, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap message key: %w", err)
		}
		envelope.EncryptedKey = hex.EncodeToString(encryptedKey)
	} else {
		keyHash := sha256.Sum256(aesKey)
		envelope.KeyID = hex.EncodeToString(keyHash[:])[:16]
	}

	return envelope, nil
}

// DecryptWithPrivateKey unwraps the envelope's AES key with the given RSA
// private key and decrypts the payload into out.
func DecryptWithPrivateKey(envelope *EncryptedEnvelope, keyPEM PrivateKeyPEM, out any) error {
	if envelope.EncryptedKey == "" {
		return errors.New("envelope carries no wrapped key")
	}

	privateKey, err := keyPEM.GetRSAKey()
	if err != nil {
		return err
	}

	wrappedKey, err := hex.DecodeString(envelope.EncryptedKey)
	if err != nil {
		return fmt.Errorf("invalid encrypted_key encoding: %w", err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrappedKey, nil)
	if err != nil {
		return fmt.Errorf("failed to unwrap message key: %w", err)
	}

	return DecryptWithKey(envelope, aesKey, out)
}

// DecryptWithKey decrypts the envelope's payload into out using a
// pre-shared AES key, verifying the key against the envelope's key_id when
// present.
func DecryptWithKey(envelope *EncryptedEnvelope, aesKey []byte, out any) error {
	if len(aesKey) != aesKeySize {
		return fmt.Errorf("invalid key length %d, expected %d", len(aesKey), aesKeySize)
	}

	if envelope.KeyID != "" {
		keyHash := sha256.Sum256(aesKey)
		keyID := hex.EncodeToString(keyHash[:])[:16]
		if subtle.ConstantTimeCompare([]byte(keyID), []byte(envelope.KeyID)) != 1 {
			return errors.New("key does not match envelope key_id")
		}
	}

	ciphertext, err := hex.DecodeString(envelope.EncryptedData)
	if err != nil {
		return fmt.Errorf("invalid encrypted_data encoding: %w", err)
	}
	iv, err := hex.DecodeString(envelope.IV)
	if err != nil {
		return fmt.Errorf("invalid iv encoding: %w", err)
	}
	if len(iv) != aesIVSize {
		return fmt.Errorf("invalid iv length %d, expected %d", len(iv), aesIVSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return errors.New("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpadPKCS7(padded)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, out)
}

// padPKCS7 pads data to a whole number of AES blocks. The pad value equals
// the pad length, and a full block of padding is added for aligned input.
func padPKCS7(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty padded data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

func parseRSAPublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("failed to decode public key PEM block")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T, expected RSA", parsed)
	}
	return publicKey, nil
}
