package wallet

import (
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
)

// Status names the externally visible mode of the engine. Exactly one of the
// per-flow views is populated for the in-progress statuses.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusIssuing    Status = "issuing"
	StatusPresenting Status = "presenting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// View is the snapshot handed to the render sink after every processed
// event. It is a value type; sinks may retain it.
type View struct {
	Status Status `json:"status"`

	// Credentials is the stored credential list, populated when idle so a
	// shell can render the browse screen.
	Credentials []credential.StoredCredential `json:"credentials,omitempty"`

	Issuance     *IssuanceView     `json:"issuance,omitempty"`
	Presentation *PresentationView `json:"presentation,omitempty"`

	// Error is set while the engine is parked in StatusFailed.
	Error *ErrorView `json:"error,omitempty"`
	// SuccessNote describes what just completed while in StatusSucceeded.
	SuccessNote string `json:"successNote,omitempty"`

	// Notice carries a non-fatal rejection of the last event, e.g. FlowBusy.
	// It never outlives the snapshot it appears on.
	Notice *Notice `json:"notice,omitempty"`
}

type IssuanceView struct {
	State             IssuanceState `json:"state"`
	Issuer            string        `json:"issuer"`
	IssuerDisplayName string        `json:"issuerDisplayName,omitempty"`
	CredentialNames   []string      `json:"credentialNames,omitempty"`
	// TxCodePrompt holds the issuer's description of the expected code while
	// the flow waits in AwaitingTxCode.
	TxCodePrompt string `json:"txCodePrompt,omitempty"`
}

type PresentationView struct {
	State    PresentationState `json:"state"`
	Verifier string            `json:"verifier"`
	// Candidates maps input descriptor IDs to the stored credentials that
	// satisfy them, populated from CredentialsMatched onward.
	Candidates map[string][]credential.StoredCredential `json:"candidates,omitempty"`
}

type ErrorView struct {
	Kind    Flaw   `json:"kind"`
	Message string `json:"message"`
}

type Notice struct {
	Kind    Flaw   `json:"kind"`
	Message string `json:"message"`
}

// ViewSink receives every view snapshot. Implementations must not block; the
// engine renders from its dispatcher goroutine.
type ViewSink interface {
	Render(view View)
}

// ViewSinkFunc adapts a function to the ViewSink interface.
type ViewSinkFunc func(view View)

func (f ViewSinkFunc) Render(view View) {
	f(view)
}
