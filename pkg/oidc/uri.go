package oidc

import (
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ParseCredentialOfferURI extracts a credential offer from a scanned URI.
// Returns the inline offer, or the URI the offer must be fetched from when
// the issuer used credential_offer_uri indirection. Exactly one of the two is
// set on success.
func ParseCredentialOfferURI(raw string) (*CredentialOffer, string, error) {
	query, err := queryOf(raw)
	if err != nil {
		return nil, "", err
	}

	if offerURI := query.Get("credential_offer_uri"); offerURI != "" {
		return nil, offerURI, nil
	}

	if inline := query.Get("credential_offer"); inline != "" {
		offer, err := ParseCredentialOffer([]byte(inline))
		if err != nil {
			return nil, "", err
		}
		return offer, "", nil
	}

	// flat query encoding: credential_issuer=...&credential_configuration_ids=[...]&grants={...}
	if query.Get("credential_issuer") != "" {
		offer := CredentialOffer{CredentialIssuer: query.Get("credential_issuer")}
		if ids := query.Get("credential_configuration_ids"); ids != "" {
			if err := json.Unmarshal([]byte(ids), &offer.CredentialConfigurationIDs); err != nil {
				return nil, "", errors.Wrap(err, "unmarshalling credential_configuration_ids")
			}
		}
		if grants := query.Get("grants"); grants != "" {
			if err := json.Unmarshal([]byte(grants), &offer.Grants); err != nil {
				return nil, "", errors.Wrap(err, "unmarshalling grants")
			}
		}
		if err := offer.Validate(); err != nil {
			return nil, "", err
		}
		return &offer, "", nil
	}

	return nil, "", errors.New("uri carries neither a credential offer nor an offer reference")
}

// ParseCredentialOffer decodes and validates an offer body.
func ParseCredentialOffer(body []byte) (*CredentialOffer, error) {
	var offer CredentialOffer
	if err := json.Unmarshal(body, &offer); err != nil {
		return nil, errors.Wrap(err, "unmarshalling credential offer")
	}
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	return &offer, nil
}

// ParsePresentationRequestURI extracts a presentation request from a scanned
// URI. Returns the inline request object, or the URI the request object must
// be fetched from when the verifier used request_uri indirection.
func ParsePresentationRequestURI(raw string) (*RequestObject, string, error) {
	query, err := queryOf(raw)
	if err != nil {
		return nil, "", err
	}

	if requestURI := query.Get("request_uri"); requestURI != "" {
		return nil, requestURI, nil
	}

	if inline := query.Get("request"); inline != "" {
		request, err := DecodeRequestObjectJWT(inline)
		if err != nil {
			return nil, "", err
		}
		return request, "", nil
	}

	// inline query parameters
	if query.Get("presentation_definition") == "" {
		return nil, "", errors.New("uri carries neither a request object nor a request reference")
	}
	request := RequestObject{
		ClientID:     query.Get("client_id"),
		Nonce:        query.Get("nonce"),
		State:        query.Get("state"),
		ResponseURI:  query.Get("response_uri"),
		ResponseType: query.Get("response_type"),
		ResponseMode: query.Get("response_mode"),
	}
	if err := json.Unmarshal([]byte(query.Get("presentation_definition")), &request.PresentationDefinition); err != nil {
		return nil, "", errors.Wrap(err, "unmarshalling presentation_definition")
	}
	if err := request.Validate(); err != nil {
		return nil, "", err
	}
	return &request, "", nil
}

// queryOf parses a scanned URI's query independent of its scheme. Custom
// schemes like openid-credential-offer:// and openid4vp:// are treated the
// same as https URLs.
func queryOf(raw string) (url.Values, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("uri is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "parsing uri")
	}
	rawQuery := parsed.RawQuery
	if rawQuery == "" && parsed.Opaque != "" {
		// scheme:opaque?query parses the query into Opaque for some forms
		if idx := strings.Index(parsed.Opaque, "?"); idx >= 0 {
			rawQuery = parsed.Opaque[idx+1:]
		}
	}
	if rawQuery == "" {
		// a bare query string is accepted as-is
		if strings.Contains(trimmed, "=") && !strings.Contains(trimmed, "://") {
			rawQuery = trimmed
		}
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, errors.Wrap(err, "parsing uri query")
	}
	return values, nil
}
