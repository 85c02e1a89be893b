package credential

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/storage"
)

const (
	namespace = "credential"
)

// StoredCredential is the wallet's record of an issued credential. Records
// are immutable once written; a write with an existing ID replaces the whole
// record.
type StoredCredential struct {
	// ID is the issuer-assigned credential id when one was returned, else a
	// digest of the credential payload.
	ID string `json:"id"`
	// Issuer is the credential issuer identifier the credential was obtained from.
	Issuer string `json:"issuer"`
	// ConfigurationID names the issuer metadata configuration this credential
	// was issued under.
	ConfigurationID string `json:"configurationId"`
	// Format is the issued format, e.g. jwt_vc_json.
	Format string `json:"format"`
	// CredentialJWT is the raw issued credential.
	CredentialJWT keyaccess.JWT `json:"credentialJwt"`
	// DisplayName comes from the issuer's display metadata, when present.
	DisplayName string `json:"displayName,omitempty"`
	// IssuerDisplayName comes from the issuer's display metadata, when present.
	IssuerDisplayName string `json:"issuerDisplayName,omitempty"`
	AddedAt           string `json:"addedAt"`
}

func (sc StoredCredential) IsValid() bool {
	return sc.ID != "" && sc.CredentialJWT != ""
}

type Storage struct {
	db storage.ServiceStorage
}

func NewCredentialStorage(db storage.ServiceStorage) (*Storage, error) {
	if db == nil {
		return nil, util.LoggingNewError("db reference is nil")
	}
	return &Storage{db: db}, nil
}

func (cs *Storage) StoreCredential(ctx context.Context, credential StoredCredential) error {
	if !credential.IsValid() {
		return util.LoggingNewError("could not store credential without an ID and credential value")
	}
	credBytes, err := json.Marshal(credential)
	if err != nil {
		return util.LoggingErrorMsgf(err, "could not marshal credential: %s", credential.ID)
	}
	return cs.db.Write(ctx, namespace, credential.ID, credBytes)
}

func (cs *Storage) GetCredential(ctx context.Context, id string) (*StoredCredential, error) {
	credBytes, err := cs.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not get credential: %s", id)
	}
	if len(credBytes) == 0 {
		return nil, nil
	}
	var stored StoredCredential
	if err = json.Unmarshal(credBytes, &stored); err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not unmarshal stored credential: %s", id)
	}
	return &stored, nil
}

func (cs *Storage) GetCredentials(ctx context.Context) ([]StoredCredential, error) {
	credMap, err := cs.db.ReadAll(ctx, namespace)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not read credentials")
	}
	creds := make([]StoredCredential, 0, len(credMap))
	for id, credBytes := range credMap {
		var stored StoredCredential
		if err = json.Unmarshal(credBytes, &stored); err != nil {
			return nil, util.LoggingErrorMsgf(err, "could not unmarshal stored credential: %s", id)
		}
		creds = append(creds, stored)
	}
	return creds, nil
}

func (cs *Storage) DeleteCredential(ctx context.Context, id string) error {
	if err := cs.db.Delete(ctx, namespace, id); err != nil {
		return util.LoggingErrorMsgf(err, "could not delete credential: %s", id)
	}
	return nil
}
