package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// Signature and token headers.
const (
	HeaderHubSignature256  = "X-Hub-Signature-256"
	HeaderForgejoSignature = "X-Forgejo-Signature"
	HeaderGiteaSignature   = "X-Gitea-Signature"
	HeaderGitLabToken      = "X-Gitlab-Token"
)

// ErrInvalidSignature is returned when a configured secret does not match the request.
var ErrInvalidSignature = errors.AuthError("invalid webhook signature").Build()

// ValidateSignature checks the request against secret. An empty secret disables validation.
//
// GitHub and Forgejo sign the body with HMAC-SHA256 (X-Hub-Signature-256 as
// "sha256=<hex>", Forgejo/Gitea also as bare hex in their own header). GitLab
// echoes the secret token verbatim in X-Gitlab-Token.
func ValidateSignature(forge config.ForgeType, header http.Header, body []byte, secret string) error {
	if secret == "" {
		return nil
	}
	if forge == config.ForgeGitLab {
		if hmac.Equal([]byte(header.Get(HeaderGitLabToken)), []byte(secret)) {
			return nil
		}
		return ErrInvalidSignature
	}

	if sig := header.Get(HeaderHubSignature256); sig != "" {
		hexSig, ok := strings.CutPrefix(sig, "sha256=")
		if ok && validHMAC(body, hexSig, secret) {
			return nil
		}
		return ErrInvalidSignature
	}
	if forge == config.ForgeForgejo {
		for _, h := range []string{HeaderForgejoSignature, HeaderGiteaSignature} {
			if sig := header.Get(h); sig != "" {
				if validHMAC(body, sig, secret) {
					return nil
				}
				return ErrInvalidSignature
			}
		}
	}
	return ErrInvalidSignature
}

// Sign returns the "sha256=<hex>" signature of body, as sent in X-Hub-Signature-256.
func Sign(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(mac(body, secret))
}

func validHMAC(body []byte, hexSig, secret string) bool {
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac(body, secret))
}

func mac(body []byte, secret string) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}
