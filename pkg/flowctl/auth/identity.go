package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const userInfoPath = "/services/oauth2/userinfo"

// Identity is the subset of the userinfo document flowctl records.
type Identity struct {
	Subject           string `json:"sub" yaml:"sub"`
	Email             string `json:"email,omitempty" yaml:"email,omitempty"`
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty" yaml:"preferred_username,omitempty"`
	OrganizationID    string `json:"organization_id,omitempty" yaml:"organization_id,omitempty"`
}

// Actor names the identity for audit records.
func (i *Identity) Actor() string {
	if i == nil {
		return ""
	}
	if i.PreferredUsername != "" {
		return i.PreferredUsername
	}
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// lookupIdentity reads the userinfo endpoint of the instance. The provider is
// configured statically; only its userinfo endpoint is used.
func lookupIdentity(ctx context.Context, httpClient *http.Client, instanceURL string, token *oauth2.Token) (*Identity, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	cfg := &oidc.ProviderConfig{
		IssuerURL:   instanceURL,
		AuthURL:     instanceURL + authorizePath,
		TokenURL:    instanceURL + tokenPath,
		UserInfoURL: instanceURL + userInfoPath,
	}
	info, err := cfg.NewProvider(ctx).UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	identity := &Identity{Subject: info.Subject, Email: info.Email}
	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		OrganizationID    string `json:"organization_id"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo claims: %w", err)
	}
	identity.Name = claims.Name
	identity.PreferredUsername = claims.PreferredUsername
	identity.OrganizationID = claims.OrganizationID
	return identity, nil
}
