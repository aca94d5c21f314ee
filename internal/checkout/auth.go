package checkout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/docgate/internal/config"
)

// AuthMethod builds the go-git transport auth for cfg. A nil config means anonymous access.
func AuthMethod(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case config.AuthTypeNone, "":
		return nil, nil

	case config.AuthTypeSSH:
		keyPath := cfg.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_ed25519")
		}
		keys, err := ssh.NewPublicKeysFromFile("git", keyPath, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath, err)
		}
		return keys, nil

	case config.AuthTypeToken:
		if cfg.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		username := cfg.Username
		if username == "" {
			username = "token"
		}
		return &http.BasicAuth{Username: username, Password: cfg.Token}, nil

	case config.AuthTypeBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", cfg.Type)
	}
}
