package registry

import "github.com/google/go-containerregistry/pkg/authn"

type AuthType string

const (
	AuthTypeAnonymous     AuthType = "anonymous"
	AuthTypeAuthenticator AuthType = "authenticator"
	AuthTypeKeychain      AuthType = "keychain"
)

// Registry supplies the authentication material for talking to one container
// registry family.
type Registry interface {
	GetAuthType() AuthType
	GetKeychain() authn.Keychain
	GetAuthentication() (authn.Authenticator, error)
}
