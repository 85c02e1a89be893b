// Package wallet is the orchestration engine: a serial event dispatcher that
// drives the issuance and presentation state machines, mediates all
// capability access, and republishes a view snapshot after every processed
// event. At most one flow is active at a time.
package wallet

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/config"
	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
	"github.com/openwalletlab/wallet-core/pkg/service/keystore"
	"github.com/openwalletlab/wallet-core/pkg/transport"
)

const eventQueueSize = 64

type Engine struct {
	network     transport.Client
	keys        *keystore.Service
	credentials *credential.Service
	sink        ViewSink
	cfg         config.WalletServiceConfig

	events chan event
	done   chan struct{}

	closeOnce sync.Once

	// engine state below is owned by the dispatcher goroutine
	status       Status
	issuance     *IssuanceSession
	presentation *PresentationSession
	lastError    *ErrorView
	successNote  string
}

// NewEngine wires the engine to its capabilities and starts the dispatcher.
// A nil sink is allowed; snapshots are then dropped.
func NewEngine(cfg config.WalletServiceConfig, network transport.Client, keys *keystore.Service, credentials *credential.Service, sink ViewSink) (*Engine, error) {
	if network == nil {
		return nil, util.LoggingNewError("engine requires a network capability")
	}
	if keys == nil {
		return nil, util.LoggingNewError("engine requires a key capability")
	}
	if credentials == nil {
		return nil, util.LoggingNewError("engine requires a credential store")
	}
	e := &Engine{
		network:     network,
		keys:        keys,
		credentials: credentials,
		sink:        sink,
		cfg:         cfg,
		events:      make(chan event, eventQueueSize),
		done:        make(chan struct{}),
		status:      StatusIdle,
	}
	go e.dispatch()
	return e, nil
}

// Shutdown stops the dispatcher. Pending events are dropped; a flow in
// progress is abandoned the same way cancel abandons it.
func (e *Engine) Shutdown() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

// ScanIssuanceOffer starts an issuance flow from a scanned offer URI.
func (e *Engine) ScanIssuanceOffer(uri string) {
	e.enqueue(scanOfferEvent{uri: uri})
}

// ScanPresentationRequest starts a presentation flow from a scanned request URI.
func (e *Engine) ScanPresentationRequest(uri string) {
	e.enqueue(scanRequestEvent{uri: uri})
}

// SupplyTxCode delivers the holder-entered transaction code to a suspended
// issuance flow.
func (e *Engine) SupplyTxCode(code string) {
	e.enqueue(supplyTxCodeEvent{code: code})
}

// SelectCredentials delivers the holder's per-descriptor credential choice to
// a suspended presentation flow.
func (e *Engine) SelectCredentials(selection map[string]string) {
	e.enqueue(selectCredentialsEvent{selection: selection})
}

// Cancel abandons whatever flow is in progress and returns to idle.
func (e *Engine) Cancel() {
	e.enqueue(cancelEvent{})
}

// Ready acknowledges a terminal view and returns to idle.
func (e *Engine) Ready() {
	e.enqueue(readyEvent{})
}

func (e *Engine) enqueue(ev event) {
	select {
	case <-e.done:
	case e.events <- ev:
	}
}

func (e *Engine) dispatch() {
	for {
		select {
		case <-e.done:
			e.abandonSessions()
			return
		case ev := <-e.events:
			notice := e.process(ev)
			e.render(notice)
		}
	}
}

// process applies one event and returns a non-fatal notice when the event was
// rejected without touching session state.
func (e *Engine) process(ev event) *Notice {
	switch ev := ev.(type) {
	case scanOfferEvent:
		return e.handleScanOffer(ev)
	case scanRequestEvent:
		return e.handleScanRequest(ev)
	case supplyTxCodeEvent:
		return e.handleSupplyTxCode(ev)
	case selectCredentialsEvent:
		return e.handleSelectCredentials(ev)
	case cancelEvent:
		e.abandonSessions()
		e.status = StatusIdle
		e.lastError = nil
		e.successNote = ""
		return nil
	case readyEvent:
		if e.status != StatusSucceeded && e.status != StatusFailed {
			return &Notice{Kind: FlawInvalidTransition, Message: "nothing to acknowledge"}
		}
		e.status = StatusIdle
		e.lastError = nil
		e.successNote = ""
		return nil
	case offerFetchedEvent:
		if e.staleIssuance(ev.sessionID) {
			return nil
		}
		return e.handleOfferFetched(ev)
	case metadataFetchedEvent:
		if e.staleIssuance(ev.sessionID) {
			return nil
		}
		return e.handleMetadataFetched(ev)
	case tokenExchangedEvent:
		if e.staleIssuance(ev.sessionID) {
			return nil
		}
		return e.handleTokenExchanged(ev)
	case credentialIssuedEvent:
		if e.staleIssuance(ev.sessionID) {
			return nil
		}
		return e.handleCredentialIssued(ev)
	case requestFetchedEvent:
		if e.stalePresentation(ev.sessionID) {
			return nil
		}
		return e.handleRequestFetched(ev)
	case proofBuiltEvent:
		if e.stalePresentation(ev.sessionID) {
			return nil
		}
		return e.handleProofBuilt(ev)
	case submittedEvent:
		if e.stalePresentation(ev.sessionID) {
			return nil
		}
		return e.handleSubmitted(ev)
	default:
		logrus.Warnf("dropping unknown event type %T", ev)
		return nil
	}
}

// staleIssuance reports whether a continuation belongs to an issuance session
// that is no longer active. Stale continuations are discarded unprocessed.
func (e *Engine) staleIssuance(sessionID string) bool {
	if e.issuance == nil || e.issuance.ID != sessionID {
		logrus.Debugf("discarding stale issuance continuation for session %s", sessionID)
		return true
	}
	return false
}

func (e *Engine) stalePresentation(sessionID string) bool {
	if e.presentation == nil || e.presentation.ID != sessionID {
		logrus.Debugf("discarding stale presentation continuation for session %s", sessionID)
		return true
	}
	return false
}

// flowBusy rejects a flow start while another flow or terminal error view is
// active. The existing session is left untouched.
func (e *Engine) flowBusy() *Notice {
	if e.status == StatusFailed {
		return &Notice{Kind: FlawFlowBusy, Message: "acknowledge the previous error first"}
	}
	return &Notice{Kind: FlawFlowBusy, Message: "another flow is in progress"}
}

// canStartFlow reports whether a new flow may begin. A completed flow does
// not block the next one; a failed flow must be acknowledged first.
func (e *Engine) canStartFlow() bool {
	return e.status == StatusIdle || e.status == StatusSucceeded
}

// fail parks the engine in the failed view and discards the active session.
// The holder must acknowledge with ready or cancel before anything else runs.
func (e *Engine) fail(kind Flaw, message string) *Notice {
	logrus.Errorf("flow failed with %s: %s", kind, util.SanitizeLog(message))
	e.abandonSessions()
	e.status = StatusFailed
	e.lastError = &ErrorView{Kind: kind, Message: message}
	return nil
}

func (e *Engine) succeed(note string) *Notice {
	e.abandonSessions()
	e.status = StatusSucceeded
	e.successNote = note
	return nil
}

func (e *Engine) abandonSessions() {
	if e.issuance != nil {
		e.issuance.cancel()
		e.issuance = nil
	}
	if e.presentation != nil {
		e.presentation.cancel()
		e.presentation = nil
	}
}

func (e *Engine) render(notice *Notice) {
	if e.sink == nil {
		return
	}
	view := View{
		Status:      e.status,
		Error:       e.lastError,
		SuccessNote: e.successNote,
		Notice:      notice,
	}
	switch e.status {
	case StatusIdle, StatusSucceeded:
		creds, err := e.credentials.List(context.Background())
		if err != nil {
			logrus.WithError(err).Error("listing credentials for view")
		} else {
			view.Credentials = creds
		}
	case StatusIssuing:
		view.Issuance = e.issuanceView()
	case StatusPresenting:
		view.Presentation = e.presentationView()
	}
	e.sink.Render(view)
}

func (e *Engine) issuanceView() *IssuanceView {
	s := e.issuance
	if s == nil {
		return nil
	}
	v := &IssuanceView{State: s.State}
	if s.Offer != nil {
		v.Issuer = s.Offer.CredentialIssuer
	}
	if s.Metadata != nil {
		v.IssuerDisplayName = s.Metadata.DisplayName()
		for _, configID := range s.Offer.CredentialConfigurationIDs {
			configuration, ok := s.Metadata.CredentialConfigurationsSupported[configID]
			name := configID
			if ok && configuration.DisplayName() != "" {
				name = configuration.DisplayName()
			}
			v.CredentialNames = append(v.CredentialNames, name)
		}
	}
	if s.State == IssuanceStateAwaitingTxCode && s.Offer.TxCodeRequired() {
		v.TxCodePrompt = s.Offer.Grants.PreAuthorizedCode.TxCode.Description
	}
	return v
}

func (e *Engine) presentationView() *PresentationView {
	s := e.presentation
	if s == nil {
		return nil
	}
	v := &PresentationView{State: s.State}
	if s.Request != nil {
		v.Verifier = s.Request.ClientID
	}
	if s.State == PresentationStateCredentialsMatched || s.State == PresentationStateAwaitingSelection {
		v.Candidates = s.Candidates
	}
	return v
}
