package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// keyBits sizes the per-handshake RSA keypair. 2048 comfortably fits the
// OAEP-padded credential payload and keeps generation under a few tens of
// milliseconds.
const keyBits = 2048

// credentials is the plaintext the caller encrypts against the handshake
// public key. The nonce binds the ciphertext to one handshake.
type credentials struct {
	Password string `json:"password"`
	Nonce    string `json:"nonce"`
}

// generateKeyPair returns a fresh private key and its PEM-encoded public half.
func generateKeyPair() (*rsa.PrivateKey, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, "", fmt.Errorf("generate keypair: %w", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, "", fmt.Errorf("encode public key: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return key, string(pemBytes), nil
}

// decryptCredentials opens a base64 RSA-OAEP(SHA-256) payload.
//
// Every failure collapses into ErrDecryptFailed; callers must not be able
// to distinguish bad base64 from bad padding.
func decryptCredentials(key *rsa.PrivateKey, encryptedB64 string) (*credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", types.ErrDecryptFailed)
	}

	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecryptFailed, err)
	}

	var creds credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON", types.ErrDecryptFailed)
	}

	return &creds, nil
}
