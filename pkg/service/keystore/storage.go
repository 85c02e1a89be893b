package keystore

import (
	"context"

	"github.com/TBD54566975/ssi-sdk/crypto"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/storage"
)

// StoredKey represents a common data model to store data on all key types
type StoredKey struct {
	ID         string         `json:"id"`
	Controller string         `json:"controller"`
	KeyType    crypto.KeyType `json:"keyType"`
	Base58Key  string         `json:"key"`
	CreatedAt  string         `json:"createdAt"`
}

// KeyDetails represents a common data model to get information about a key, without revealing the key itself
type KeyDetails struct {
	ID         string         `json:"id"`
	Controller string         `json:"controller"`
	KeyType    crypto.KeyType `json:"keyType"`
	CreatedAt  string         `json:"createdAt"`
}

// ServiceKeySalt is the persisted portion of the service key derivation. The
// encryption key itself is never written; it is rederived from the configured
// password and this salt on every boot, so keys encrypted on a previous boot
// stay readable.
type ServiceKeySalt struct {
	Base58Salt string `json:"salt"`
}

const (
	namespace = "keystore"
	skSaltKey = "wallet-service-key-salt"
)

type Storage struct {
	db         storage.ServiceStorage
	serviceKey []byte
}

func NewKeyStoreStorage(db storage.ServiceStorage, password string) (*Storage, error) {
	saltBytes, err := getOrCreateServiceKeySalt(context.Background(), db)
	if err != nil {
		return nil, errors.Wrap(err, "could not resolve service key salt")
	}
	keyBytes, err := util.Argon2KeyGen(password, saltBytes, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "could not derive service key")
	}
	return &Storage{db: db, serviceKey: keyBytes}, nil
}

// getOrCreateServiceKeySalt reads the persisted salt, generating and storing
// one on first boot.
func getOrCreateServiceKeySalt(ctx context.Context, db storage.ServiceStorage) ([]byte, error) {
	stored, err := db.Read(ctx, namespace, skSaltKey)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not read service key salt")
	}
	if len(stored) > 0 {
		var sk ServiceKeySalt
		if err = json.Unmarshal(stored, &sk); err != nil {
			return nil, util.LoggingErrorMsg(err, "could not unmarshal service key salt")
		}
		return base58.Decode(sk.Base58Salt)
	}

	saltBytes, err := util.GenerateSalt(util.Argon2SaltSize)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not generate service key salt")
	}
	saltJSON, err := json.Marshal(ServiceKeySalt{Base58Salt: base58.Encode(saltBytes)})
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not marshal service key salt")
	}
	if err = db.Write(ctx, namespace, skSaltKey, saltJSON); err != nil {
		return nil, util.LoggingErrorMsg(err, "could not store service key salt")
	}
	return saltBytes, nil
}

// StoreKey encrypts the key with the service key before writing it under the
// given purpose.
func (kss *Storage) StoreKey(ctx context.Context, purpose string, key StoredKey) error {
	if purpose == "" {
		return util.LoggingNewError("could not store key without a purpose")
	}

	keyBytes, err := json.Marshal(key)
	if err != nil {
		return util.LoggingErrorMsgf(err, "could not marshal key: %s", key.ID)
	}

	encryptedKey, err := util.XChaCha20Poly1305Encrypt(kss.serviceKey, keyBytes)
	if err != nil {
		return util.LoggingErrorMsgf(err, "could not encrypt key: %s", key.ID)
	}

	return kss.db.Write(ctx, namespace, purpose, encryptedKey)
}

// GetKey returns the key stored under the given purpose, or nil when no key
// has been stored yet.
func (kss *Storage) GetKey(ctx context.Context, purpose string) (*StoredKey, error) {
	storedKeyBytes, err := kss.db.Read(ctx, namespace, purpose)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not read key for purpose: %s", purpose)
	}
	if len(storedKeyBytes) == 0 {
		return nil, nil
	}

	decryptedKey, err := util.XChaCha20Poly1305Decrypt(kss.serviceKey, storedKeyBytes)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not decrypt key for purpose: %s", purpose)
	}

	var stored StoredKey
	if err = json.Unmarshal(decryptedKey, &stored); err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not unmarshal stored key for purpose: %s", purpose)
	}
	return &stored, nil
}
