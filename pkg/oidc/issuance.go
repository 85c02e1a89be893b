// Package oidc holds the wire models for the two holder-side protocols: the
// credential issuance exchange and the presentation exchange. Parsing is
// strict about the fields the wallet needs and tolerant of everything else.
package oidc

import (
	"net/url"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	// GrantTypePreAuthorizedCode is the only issuance grant the wallet supports.
	GrantTypePreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

	// CredentialOfferScheme prefixes offer URIs handed to the wallet.
	CredentialOfferScheme = "openid-credential-offer"

	// FormatJWTVCJSON is the credential format the wallet requests and stores.
	FormatJWTVCJSON = "jwt_vc_json"

	// WellKnownIssuerMetadata is the path suffix for credential issuer metadata.
	WellKnownIssuerMetadata = "/.well-known/openid-credential-issuer"
)

// CredentialOffer is the issuer-provided bootstrap for an issuance flow.
type CredentialOffer struct {
	CredentialIssuer           string   `json:"credential_issuer"`
	CredentialConfigurationIDs []string `json:"credential_configuration_ids"`
	Grants                     Grants   `json:"grants,omitempty"`
}

type Grants struct {
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
}

// TxCode describes the transaction code the holder must enter, when required.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate checks the fields the wallet cannot proceed without.
func (o *CredentialOffer) Validate() error {
	if o.CredentialIssuer == "" {
		return errors.New("offer is missing credential_issuer")
	}
	if len(o.CredentialConfigurationIDs) == 0 {
		return errors.New("offer is missing credential_configuration_ids")
	}
	if o.Grants.PreAuthorizedCode == nil || o.Grants.PreAuthorizedCode.PreAuthorizedCode == "" {
		return errors.New("offer is missing a pre-authorized code grant")
	}
	return nil
}

// TxCodeRequired reports whether the offer's grant asks for a transaction code.
func (o *CredentialOffer) TxCodeRequired() bool {
	return o.Grants.PreAuthorizedCode != nil && o.Grants.PreAuthorizedCode.TxCode != nil
}

// IssuerMetadata is the credential issuer's advertised configuration.
type IssuerMetadata struct {
	CredentialIssuer                  string                             `json:"credential_issuer"`
	AuthorizationServer               string                             `json:"authorization_server,omitempty"`
	CredentialEndpoint                string                             `json:"credential_endpoint"`
	TokenEndpoint                     string                             `json:"token_endpoint,omitempty"`
	CredentialConfigurationsSupported map[string]CredentialConfiguration `json:"credential_configurations_supported"`
	Display                           []Display                          `json:"display,omitempty"`
}

// CredentialConfiguration describes one issuable credential type.
type CredentialConfiguration struct {
	Format               string               `json:"format"`
	Scope                string               `json:"scope,omitempty"`
	CredentialDefinition CredentialDefinition `json:"credential_definition,omitempty"`
	Display              []Display            `json:"display,omitempty"`
	// TxCodeRequired is an issuer-communicated hint that the token exchange
	// for this configuration expects a transaction code.
	TxCodeRequired bool `json:"tx_code_required,omitempty"`
}

type CredentialDefinition struct {
	Type              []string       `json:"type,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject,omitempty"`
}

// Display carries UX-facing metadata for wallets.
type Display struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// DisplayName returns the first display name, if any.
func displayName(displays []Display) string {
	if len(displays) == 0 {
		return ""
	}
	return displays[0].Name
}

func (m *IssuerMetadata) DisplayName() string {
	return displayName(m.Display)
}

func (c *CredentialConfiguration) DisplayName() string {
	return displayName(c.Display)
}

// ParseIssuerMetadata decodes and minimally validates issuer metadata.
func ParseIssuerMetadata(body []byte) (*IssuerMetadata, error) {
	var metadata IssuerMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, errors.Wrap(err, "unmarshalling issuer metadata")
	}
	if metadata.CredentialIssuer == "" || metadata.CredentialEndpoint == "" {
		return nil, errors.New("issuer metadata is missing required endpoints")
	}
	return &metadata, nil
}

// TokenResponse is the issuer's answer to the pre-authorized code exchange.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}

// BuildPreAuthorizedTokenRequest form-encodes the token exchange body.
func BuildPreAuthorizedTokenRequest(preAuthorizedCode, txCode string) string {
	form := url.Values{}
	form.Set("grant_type", GrantTypePreAuthorizedCode)
	form.Set("pre-authorized_code", preAuthorizedCode)
	if txCode != "" {
		form.Set("tx_code", txCode)
	}
	return form.Encode()
}

// CredentialRequest asks the issuer for one credential, carrying the holder's
// proof of possession.
type CredentialRequest struct {
	Format                    string `json:"format"`
	CredentialConfigurationID string `json:"credential_configuration_id,omitempty"`
	Proof                     Proof  `json:"proof"`
}

type Proof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialResponse is the issuer's answer to a credential request.
type CredentialResponse struct {
	Credential      string `json:"credential"`
	CredentialID    string `json:"credential_id,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}
