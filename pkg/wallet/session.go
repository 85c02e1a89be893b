package wallet

import (
	"context"

	"github.com/TBD54566975/ssi-sdk/credential/exchange"

	"github.com/openwalletlab/wallet-core/pkg/oidc"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
)

// IssuanceState tracks progress of an issuance flow.
type IssuanceState string

const (
	IssuanceStateOfferReceived       IssuanceState = "offer_received"
	IssuanceStateMetadataResolved    IssuanceState = "metadata_resolved"
	IssuanceStateAwaitingTxCode      IssuanceState = "awaiting_tx_code"
	IssuanceStateTokenAcquired       IssuanceState = "token_acquired"
	IssuanceStateCredentialRequested IssuanceState = "credential_requested"
	IssuanceStateStored              IssuanceState = "stored"
)

// IssuanceSession holds the in-memory state of one issuance flow. It is
// never persisted; abandoning the flow discards it.
type IssuanceSession struct {
	ID    string
	State IssuanceState

	OfferURI string
	Offer    *oidc.CredentialOffer
	Metadata *oidc.IssuerMetadata

	// token material is short-lived and held only in memory
	AccessToken string
	CNonce      string

	TxCode string

	// Cursor indexes the configuration currently being requested. The
	// offer's configurations are processed strictly in declared order.
	Cursor    int
	StoredIDs []string

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *IssuanceSession) currentConfigurationID() string {
	return s.Offer.CredentialConfigurationIDs[s.Cursor]
}

// PresentationState tracks progress of a presentation flow.
type PresentationState string

const (
	PresentationStateRequestReceived    PresentationState = "request_received"
	PresentationStateDefinitionResolved PresentationState = "definition_resolved"
	PresentationStateCredentialsMatched PresentationState = "credentials_matched"
	PresentationStateAwaitingSelection  PresentationState = "awaiting_selection"
	PresentationStateProofBuilt         PresentationState = "proof_built"
	PresentationStateSubmitted          PresentationState = "submitted"
)

// PresentationSession holds the in-memory state of one presentation flow.
type PresentationSession struct {
	ID    string
	State PresentationState

	RequestURI string
	Request    *oidc.RequestObject

	// Candidates maps descriptor IDs to matching stored credentials.
	Candidates map[string][]credential.StoredCredential
	// Selection maps descriptor IDs to the chosen credential ID.
	Selection map[string]string

	VPToken    string
	Submission exchange.PresentationSubmission

	ctx    context.Context
	cancel context.CancelFunc
}
