package wallet

// Flaw classifies everything that can go wrong while driving a flow. Fatal
// flaws park the engine in a failed view until the holder acknowledges them;
// non-fatal ones surface as a notice and leave session state alone.
type Flaw string

const (
	FlawMalformedOffer           Flaw = "malformed_offer"
	FlawMalformedRequest         Flaw = "malformed_request"
	FlawIssuerUnreachable        Flaw = "issuer_unreachable"
	FlawUnsupportedConfiguration Flaw = "unsupported_configuration"
	FlawUnsupportedDefinition    Flaw = "unsupported_definition"
	FlawTokenRejected            Flaw = "token_rejected"
	FlawCredentialRejected       Flaw = "credential_rejected"
	FlawVerifierRejected         Flaw = "verifier_rejected"
	FlawNoMatchingCredential     Flaw = "no_matching_credential"
	FlawInvalidSelection         Flaw = "invalid_selection"
	FlawProofGenerationFailed    Flaw = "proof_generation_failed"
	FlawStorageFailure           Flaw = "storage_failure"
	FlawFlowBusy                 Flaw = "flow_busy"
	FlawInvalidTransition        Flaw = "invalid_transition"
)
