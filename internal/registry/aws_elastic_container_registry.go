package registry

import (
	ecrhelper "github.com/awslabs/amazon-ecr-credential-helper/ecr-login"
	ecrapi "github.com/awslabs/amazon-ecr-credential-helper/ecr-login/api"
	"github.com/google/go-containerregistry/pkg/authn"
)

// AwsECR resolves ECR credentials through the standard AWS credential chain,
// which covers both Action runners with OIDC-assumed roles and local AWS
// profiles.
type AwsECR struct{}

func NewAwsECR() Registry {
	return &AwsECR{}
}

func (r *AwsECR) GetAuthType() AuthType {
	return AuthTypeKeychain
}

func (r *AwsECR) GetAuthentication() (authn.Authenticator, error) {
	return nil, nil
}

func (r *AwsECR) GetKeychain() authn.Keychain {
	helper := ecrhelper.NewECRHelper(ecrhelper.WithClientFactory(ecrapi.DefaultClientFactory{}))
	return authn.NewKeychainFromHelper(helper)
}
