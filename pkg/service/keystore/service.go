// Package keystore is the wallet's key capability. Holder keys are generated
// on first use, encrypted at rest with a password-derived service key, and
// never leave the service boundary. Callers receive key details or signing
// operations, not key material.
package keystore

import (
	"context"
	"time"

	"github.com/TBD54566975/ssi-sdk/crypto"
	"github.com/TBD54566975/ssi-sdk/did/key"
	"github.com/benbjohnson/clock"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/config"
	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/service/framework"
	"github.com/openwalletlab/wallet-core/pkg/storage"
)

// Purposes partition holder keys by what they sign. Each purpose gets its own
// did:key identity.
const (
	PurposeHolder = "holder"
)

type Service struct {
	storage *Storage
	config  config.KeyStoreServiceConfig
	clock   clock.Clock
}

func (s *Service) Type() framework.Type {
	return framework.KeyStore
}

func (s *Service) Status() framework.Status {
	if s.storage == nil {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: "no storage configured",
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.KeyStoreServiceConfig {
	return s.config
}

func NewKeyStoreService(config config.KeyStoreServiceConfig, s storage.ServiceStorage) (*Service, error) {
	keyStoreStorage, err := NewKeyStoreStorage(s, config.ServiceKeyPassword)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "instantiating storage for the keystore service")
	}

	return &Service{
		storage: keyStoreStorage,
		config:  config,
		clock:   clock.New(),
	}, nil
}

// GetOrCreateKey returns details of the key for the given purpose, generating
// an Ed25519 did:key on first use.
func (s *Service) GetOrCreateKey(ctx context.Context, purpose string) (*KeyDetails, error) {
	logrus.Debugf("resolving key for purpose: %s", purpose)

	stored, err := s.storage.GetKey(ctx, purpose)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "getting key for purpose: %s", purpose)
	}
	if stored != nil {
		return &KeyDetails{
			ID:         stored.ID,
			Controller: stored.Controller,
			KeyType:    stored.KeyType,
			CreatedAt:  stored.CreatedAt,
		}, nil
	}

	privKey, didKey, err := key.GenerateDIDKey(crypto.Ed25519)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "generating did:key for holder")
	}
	expanded, err := didKey.Expand()
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "expanding did:key document")
	}
	kid := expanded.VerificationMethod[0].ID

	keyBytes, err := crypto.PrivKeyToBytes(privKey)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "serializing private key")
	}

	newKey := StoredKey{
		ID:         kid,
		Controller: didKey.String(),
		KeyType:    crypto.Ed25519,
		Base58Key:  base58.Encode(keyBytes),
		CreatedAt:  s.clock.Now().UTC().Format(time.RFC3339),
	}
	if err = s.storage.StoreKey(ctx, purpose, newKey); err != nil {
		return nil, util.LoggingErrorMsgf(err, "storing key for purpose: %s", purpose)
	}

	return &KeyDetails{
		ID:         newKey.ID,
		Controller: newKey.Controller,
		KeyType:    newKey.KeyType,
		CreatedAt:  newKey.CreatedAt,
	}, nil
}

// Signer reconstructs a signing key access object for the given purpose. The
// key must already exist.
func (s *Service) Signer(ctx context.Context, purpose string) (*keyaccess.JWKKeyAccess, error) {
	stored, err := s.storage.GetKey(ctx, purpose)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "getting key for purpose: %s", purpose)
	}
	if stored == nil {
		return nil, util.LoggingNewErrorf("no key found for purpose: %s", purpose)
	}

	keyBytes, err := base58.Decode(stored.Base58Key)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not deserialize key from base58")
	}
	privKey, err := crypto.BytesToPrivKey(keyBytes, stored.KeyType)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not reconstruct private key from storage")
	}
	return keyaccess.NewJWKKeyAccess(stored.Controller, stored.ID, privKey)
}

// Sign signs json-serializable claims with the key for the given purpose,
// returning a compact JWT.
func (s *Service) Sign(ctx context.Context, purpose string, claims any) (*keyaccess.JWT, error) {
	signer, err := s.Signer(ctx, purpose)
	if err != nil {
		return nil, err
	}
	token, err := signer.SignJSON(claims)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "signing claims for purpose: %s", purpose)
	}
	return token, nil
}
