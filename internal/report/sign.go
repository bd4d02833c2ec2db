package report

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// Sign signs the report using Ed25519 and stores the base64 signature in
// the report itself.
func Sign(report *Report, privateKey ed25519.PrivateKey) error {
	report.Signature = ""

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report for signing: %w", err)
	}

	report.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, data))
	return nil
}

// Verify checks the report signature against the public key.
func Verify(report *Report, publicKey ed25519.PublicKey) (bool, error) {
	if report.Signature == "" {
		return false, fmt.Errorf("report has no signature")
	}

	signature, err := base64.StdEncoding.DecodeString(report.Signature)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}

	// The signature covers the report with the signature field cleared.
	reportCopy := *report
	reportCopy.Signature = ""

	data, err := json.Marshal(&reportCopy)
	if err != nil {
		return false, fmt.Errorf("failed to marshal report for verification: %w", err)
	}

	return ed25519.Verify(publicKey, data, signature), nil
}

// LoadPrivateKey loads a raw Ed25519 private key from a file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := loadKeyFile(path, ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(data), nil
}

// LoadPublicKey loads a raw Ed25519 public key from a file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := loadKeyFile(path, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(data), nil
}

func loadKeyFile(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("invalid key size in %s: expected %d bytes, got %d", path, size, len(data))
	}
	return data, nil
}
