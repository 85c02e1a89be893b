package keyaccess

import (
	gocrypto "crypto"
	"fmt"

	"github.com/TBD54566975/ssi-sdk/crypto/jwx"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"
)

// JWKKeyAccess wraps a signer for a (did, kid, private key) triple. The
// wallet only ever signs with its own keys; verification of inbound tokens is
// a shell concern.
type JWKKeyAccess struct {
	*jwx.Signer
}

// NewJWKKeyAccess creates a JWKKeyAccess object from an id, key id, and private key.
func NewJWKKeyAccess(id, kid string, key gocrypto.PrivateKey) (*JWKKeyAccess, error) {
	if id == "" {
		return nil, errors.New("id cannot be empty")
	}
	if kid == "" {
		return nil, errors.New("kid cannot be empty")
	}
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	signer, err := jwx.NewJWXSigner(id, kid, key)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access object for kid: %s, error creating signer", kid)
	}
	return &JWKKeyAccess{Signer: signer}, nil
}

type JWT string

func (j JWT) String() string {
	return string(j)
}

func (j JWT) Ptr() *JWT {
	return &j
}

// SignJSON takes an object that is either itself json or json-serializable and signs it.
func (ka JWKKeyAccess) SignJSON(data any) (*JWT, error) {
	if ka.Signer == nil {
		return nil, errors.New("cannot sign with nil signer")
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, err
	}
	return ka.Sign(payload)
}

func (ka JWKKeyAccess) Sign(payload map[string]any) (*JWT, error) {
	if ka.Signer == nil {
		return nil, errors.New("cannot sign with nil signer")
	}
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	tokenBytes, err := ka.SignWithDefaults(payload)
	if err != nil {
		return nil, errors.Wrap(err, "could not sign payload")
	}
	return JWT(tokenBytes).Ptr(), nil
}

// GetJWTHeaders returns the headers of a JWT token, assuming there is only one signature.
func GetJWTHeaders(token []byte) (jws.Headers, error) {
	msg, err := jws.Parse(token)
	if err != nil {
		return nil, err
	}
	if len(msg.Signatures()) != 1 {
		return nil, fmt.Errorf("expected 1 signature, got %d", len(msg.Signatures()))
	}
	return msg.Signatures()[0].ProtectedHeaders(), nil
}
