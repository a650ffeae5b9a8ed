package vigilcli

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/vigild/vigil/common"
)

const (
	keyringService = "vigil"
	keyringField   = "rpc-secret"
)

var keyringGet = keyring.Get

// loadSecret resolves the RPC auth secret. The client never creates one;
// the daemon stores it in the keyring on first start.
func loadSecret() (string, error) {
	if s := os.Getenv(common.RPCSecretEnv); s != "" {
		return s, nil
	}
	s, err := keyringGet(keyringService, keyringField)
	if err != nil {
		return "", fmt.Errorf("rpc secret unavailable (is the daemon running?): %w", err)
	}
	return s, nil
}
