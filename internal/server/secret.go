package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/vigild/vigil/common"
)

const (
	keyringService = "vigil"
	keyringField   = "rpc-secret"
)

var (
	keyringSet = keyring.Set
	keyringGet = keyring.Get
	randRead   = rand.Read
)

// LoadSecret resolves the RPC auth secret shared between daemon and CLI.
// The environment variable takes precedence over the OS keyring; when the
// keyring has no entry yet a fresh 32-byte secret is generated and stored.
func LoadSecret() (string, error) {
	if s := os.Getenv(common.RPCSecretEnv); s != "" {
		return s, nil
	}
	s, err := keyringGet(keyringService, keyringField)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return "", err
	}
	return createSecret()
}

func createSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := randRead(raw); err != nil {
		return "", err
	}
	s := hex.EncodeToString(raw)
	if err := keyringSet(keyringService, keyringField, s); err != nil {
		return "", err
	}
	return s, nil
}
