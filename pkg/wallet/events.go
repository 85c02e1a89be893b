package wallet

import (
	"github.com/TBD54566975/ssi-sdk/credential/exchange"

	"github.com/openwalletlab/wallet-core/pkg/transport"
)

// event is the dispatcher's unit of work. Public events come from the shell;
// continuation events carry capability results back into the engine, tagged
// with the session that requested them so stale results can be dropped.
type event interface {
	isEvent()
}

type scanOfferEvent struct {
	uri string
}

type scanRequestEvent struct {
	uri string
}

type supplyTxCodeEvent struct {
	code string
}

type selectCredentialsEvent struct {
	selection map[string]string
}

type cancelEvent struct{}

type readyEvent struct{}

type offerFetchedEvent struct {
	sessionID string
	resp      *transport.Response
	err       error
}

type metadataFetchedEvent struct {
	sessionID string
	resp      *transport.Response
	err       error
}

type tokenExchangedEvent struct {
	sessionID string
	resp      *transport.Response
	err       error
}

type credentialIssuedEvent struct {
	sessionID       string
	configurationID string
	resp            *transport.Response
	signErr         error
	err             error
}

type requestFetchedEvent struct {
	sessionID string
	resp      *transport.Response
	err       error
}

type proofBuiltEvent struct {
	sessionID  string
	vpToken    string
	submission exchange.PresentationSubmission
	err        error
}

type submittedEvent struct {
	sessionID string
	resp      *transport.Response
	err       error
}

func (scanOfferEvent) isEvent()         {}
func (scanRequestEvent) isEvent()       {}
func (supplyTxCodeEvent) isEvent()      {}
func (selectCredentialsEvent) isEvent() {}
func (cancelEvent) isEvent()            {}
func (readyEvent) isEvent()             {}
func (offerFetchedEvent) isEvent()      {}
func (metadataFetchedEvent) isEvent()   {}
func (tokenExchangedEvent) isEvent()    {}
func (credentialIssuedEvent) isEvent()  {}
func (requestFetchedEvent) isEvent()    {}
func (proofBuiltEvent) isEvent()        {}
func (submittedEvent) isEvent()         {}
