// Package credential is the wallet's credential store: a durable, listable
// collection of issued credentials keyed by record ID.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/service/framework"
	"github.com/openwalletlab/wallet-core/pkg/storage"
)

type Service struct {
	storage *Storage
	clock   clock.Clock
}

func (s *Service) Type() framework.Type {
	return framework.Credential
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

func NewCredentialService(db storage.ServiceStorage) (*Service, error) {
	credentialStorage, err := NewCredentialStorage(db)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "instantiating storage for the credential service")
	}
	return &Service{
		storage: credentialStorage,
		clock:   clock.New(),
	}, nil
}

type AddCredentialRequest struct {
	// ID is optional; when empty a content-derived ID is assigned.
	ID                string
	Issuer            string
	ConfigurationID   string
	Format            string
	CredentialJWT     keyaccess.JWT
	DisplayName       string
	IssuerDisplayName string
}

// Add stores a credential record, assigning a content-derived ID when the
// issuer did not provide one. Adding the same credential twice is a no-op
// replace, so retried writes are safe.
func (s *Service) Add(ctx context.Context, request AddCredentialRequest) (*StoredCredential, error) {
	logrus.Debugf("adding credential from issuer: %s", util.SanitizeLog(request.Issuer))

	if request.CredentialJWT == "" {
		return nil, util.LoggingNewError("cannot add a credential without a credential value")
	}

	id := request.ID
	if id == "" {
		id = contentID(request.CredentialJWT)
	}

	stored := StoredCredential{
		ID:                id,
		Issuer:            request.Issuer,
		ConfigurationID:   request.ConfigurationID,
		Format:            request.Format,
		CredentialJWT:     request.CredentialJWT,
		DisplayName:       request.DisplayName,
		IssuerDisplayName: request.IssuerDisplayName,
		AddedAt:           s.clock.Now().UTC().Format(time.RFC3339),
	}
	if err := s.storage.StoreCredential(ctx, stored); err != nil {
		return nil, util.LoggingErrorMsgf(err, "storing credential: %s", id)
	}
	return &stored, nil
}

// Get returns the stored credential with the given ID, or nil when absent.
func (s *Service) Get(ctx context.Context, id string) (*StoredCredential, error) {
	return s.storage.GetCredential(ctx, id)
}

// List returns all stored credentials ordered by when they were added.
func (s *Service) List(ctx context.Context) ([]StoredCredential, error) {
	creds, err := s.storage.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(creds, func(i, j int) bool {
		if creds[i].AddedAt == creds[j].AddedAt {
			return creds[i].ID < creds[j].ID
		}
		return creds[i].AddedAt < creds[j].AddedAt
	})
	return creds, nil
}

// Delete removes the stored credential with the given ID. Deleting an absent
// ID is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	logrus.Debugf("deleting credential: %s", util.SanitizeLog(id))
	return s.storage.DeleteCredential(ctx, id)
}

func contentID(credential keyaccess.JWT) string {
	digest := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(digest[:])
}
