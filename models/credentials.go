package models

import (
	"encoding/json"
	"fmt"
)

// CredentialBundle maps repositories to access tokens with a shared fallback.
// Overrides are keyed by the "owner/name" form the secret uses.
type CredentialBundle struct {
	DefaultToken string
	Overrides    map[string]string
}

// credentialDocument mirrors the secret's JSON layout.
type credentialDocument struct {
	Repositories []struct {
		Repository  string `json:"repository"`
		AccessToken string `json:"accesstoken"`
	} `json:"repositories"`
	DefaultToken string `json:"defaulttoken"`
}

// ParseCredentialBundle decodes the secret payload. A payload that decodes is
// accepted even without a default token: repositories that end up with no
// usable token fail individually at resolve time, not at load time.
func ParseCredentialBundle(data []byte) (*CredentialBundle, error) {
	var doc credentialDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewError(KindConfiguration, "parse credential bundle", err)
	}
	bundle := &CredentialBundle{
		DefaultToken: doc.DefaultToken,
		Overrides:    make(map[string]string, len(doc.Repositories)),
	}
	for _, entry := range doc.Repositories {
		if entry.Repository == "" {
			continue
		}
		bundle.Overrides[entry.Repository] = entry.AccessToken
	}
	return bundle, nil
}

// Resolve returns the token to use for repo: the override when a non-empty
// one exists, the default otherwise. An empty override falls through.
func (b *CredentialBundle) Resolve(repo RepositoryRef) (string, error) {
	if token := b.Overrides[repo.String()]; token != "" {
		return token, nil
	}
	if b.DefaultToken != "" {
		return b.DefaultToken, nil
	}
	return "", NewError(KindCredential, "resolve token for "+repo.String(),
		fmt.Errorf("no override entry and no default token configured"))
}
