package crypto

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// SaveKeyFile writes the private key to disk hex-encoded with owner-only
// permissions. Existing files are never overwritten.
func SaveKeyFile(path string, key *PrivateKey) error {
	if key == nil {
		return fmt.Errorf("crypto: nil private key")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("crypto: key file %s already exists", path)
	}
	encoded := hex.EncodeToString(key.Bytes())
	return os.WriteFile(path, []byte(encoded+"\n"), 0o600)
}

// LoadKeyFile reads a hex-encoded private key previously written by
// SaveKeyFile.
func LoadKeyFile(path string) (*PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key file: %w", err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key file: %w", err)
	}
	return PrivateKeyFromBytes(decoded)
}
