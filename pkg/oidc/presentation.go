package oidc

import (
	"net/url"
	"strings"

	"github.com/TBD54566975/ssi-sdk/credential/exchange"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"
)

const (
	// PresentationRequestScheme prefixes presentation request URIs.
	PresentationRequestScheme = "openid4vp"

	// ResponseModeDirectPost is the only response mode the wallet supports.
	ResponseModeDirectPost = "direct_post"
)

// RequestObject is the verifier's presentation request.
type RequestObject struct {
	ClientID               string                           `json:"client_id"`
	Nonce                  string                           `json:"nonce"`
	State                  string                           `json:"state,omitempty"`
	ResponseURI            string                           `json:"response_uri,omitempty"`
	ResponseType           string                           `json:"response_type,omitempty"`
	ResponseMode           string                           `json:"response_mode,omitempty"`
	PresentationDefinition *exchange.PresentationDefinition `json:"presentation_definition,omitempty"`
}

// Validate checks the fields the wallet cannot proceed without.
func (r *RequestObject) Validate() error {
	if r.ClientID == "" {
		return errors.New("request is missing client_id")
	}
	if r.Nonce == "" {
		return errors.New("request is missing nonce")
	}
	if r.ResponseURI == "" {
		return errors.New("request is missing response_uri")
	}
	if r.PresentationDefinition == nil || len(r.PresentationDefinition.InputDescriptors) == 0 {
		return errors.New("request carries no presentation definition input descriptors")
	}
	return nil
}

// DecodeRequestObjectJWT extracts the request object claims from a compact
// JWT without verifying the signature. Trust decisions about the verifier are
// layered on by the embedding application.
func DecodeRequestObjectJWT(token string) (*RequestObject, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, errors.Wrap(err, "parsing request object jwt")
	}
	var request RequestObject
	if err = json.Unmarshal(msg.Payload(), &request); err != nil {
		return nil, errors.Wrap(err, "unmarshalling request object claims")
	}
	if err = request.Validate(); err != nil {
		return nil, err
	}
	return &request, nil
}

// ParseRequestObjectResponse handles a fetched request object, which may be a
// plain JSON document or a JWT depending on the verifier.
func ParseRequestObjectResponse(body []byte) (*RequestObject, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var request RequestObject
		if err := json.Unmarshal([]byte(trimmed), &request); err != nil {
			return nil, errors.Wrap(err, "unmarshalling request object")
		}
		if err := request.Validate(); err != nil {
			return nil, err
		}
		return &request, nil
	}
	return DecodeRequestObjectJWT(trimmed)
}

// ResponseRequest is the body posted back to the verifier's response_uri.
type ResponseRequest struct {
	VPToken                string
	PresentationSubmission exchange.PresentationSubmission
	State                  string
}

// Encode form-encodes the response for a direct_post submission.
func (r *ResponseRequest) Encode() (string, error) {
	submissionBytes, err := json.Marshal(r.PresentationSubmission)
	if err != nil {
		return "", errors.Wrap(err, "marshalling presentation submission")
	}
	form := url.Values{}
	form.Set("vp_token", r.VPToken)
	form.Set("presentation_submission", string(submissionBytes))
	if r.State != "" {
		form.Set("state", r.State)
	}
	return form.Encode(), nil
}
