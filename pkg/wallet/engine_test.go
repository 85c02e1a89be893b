package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

func TestFlowBusyRejection(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	mockIssuerMetadata(issuerMetadataBody())

	// park a flow waiting on holder input
	harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(true)))
	harness.views.waitFor(t, "awaiting tx code", isIssuanceState(IssuanceStateAwaitingTxCode))

	t.Run("second offer is rejected without disturbing the flow", func(t *testing.T) {
		harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(false)))
		view := harness.views.waitFor(t, "flow busy notice", hasNotice(FlawFlowBusy))
		assert.Equal(t, StatusIssuing, view.Status)
		assert.Equal(t, "another flow is in progress", view.Notice.Message)
		require.NotNil(t, view.Issuance)
		assert.Equal(t, IssuanceStateAwaitingTxCode, view.Issuance.State)
	})

	t.Run("presentation request is rejected too", func(t *testing.T) {
		harness.engine.ScanPresentationRequest("openid4vp://?client_id=whoever")
		view := harness.views.waitFor(t, "flow busy notice", hasNotice(FlawFlowBusy))
		assert.Equal(t, StatusIssuing, view.Status)
	})
}

func TestFailureMustBeAcknowledged(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())

	harness.engine.ScanIssuanceOffer("not a credential offer")
	view := harness.views.waitFor(t, "failed view", isStatus(StatusFailed))
	require.NotNil(t, view.Error)
	assert.Equal(t, FlawMalformedOffer, view.Error.Kind)

	// a failed view blocks new flows until acknowledged
	harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(false)))
	view = harness.views.waitFor(t, "flow busy while failed", hasNotice(FlawFlowBusy))
	assert.Equal(t, "acknowledge the previous error first", view.Notice.Message)

	harness.engine.Ready()
	view = harness.views.waitFor(t, "idle after ready", isStatus(StatusIdle))
	assert.Nil(t, view.Error)
	assert.Empty(t, view.Credentials)
}

func TestCancelReturnsToIdle(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	mockIssuerMetadata(issuerMetadataBody())

	harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(true)))
	harness.views.waitFor(t, "awaiting tx code", isIssuanceState(IssuanceStateAwaitingTxCode))

	harness.engine.Cancel()
	view := harness.views.waitFor(t, "idle after cancel", isStatus(StatusIdle))
	assert.Nil(t, view.Issuance)
	assert.Nil(t, view.Error)
}

func TestReadyWithNothingToAcknowledge(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())

	harness.engine.Ready()
	view := harness.views.waitFor(t, "invalid transition notice", hasNotice(FlawInvalidTransition))
	assert.Equal(t, StatusIdle, view.Status)
}

func TestStaleContinuationAfterCancel(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())

	// metadata arrives only after the holder has already cancelled
	gock.New("https://issuer.example").
		Get("/.well-known/openid-credential-issuer").
		Reply(200).
		Delay(500 * time.Millisecond).
		JSON(issuerMetadataBody())

	harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(false)))
	harness.views.waitFor(t, "issuing", isStatus(StatusIssuing))

	harness.engine.Cancel()
	harness.views.waitFor(t, "idle after cancel", isStatus(StatusIdle))

	// let the delayed continuation land and be discarded
	time.Sleep(time.Second)
	for _, view := range harness.views.history() {
		assert.NotEqual(t, StatusFailed, view.Status)
	}
	harness.engine.Ready()
	view := harness.views.waitFor(t, "still idle", hasNotice(FlawInvalidTransition))
	assert.Equal(t, StatusIdle, view.Status)
}

func TestSucceededAllowsNextFlow(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	mockIssuerMetadata(issuerMetadataBody())
	mockTokenEndpoint()
	mockCredentialEndpoint(t, "cred-1")

	harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(false)))
	view := harness.views.waitFor(t, "succeeded", isStatus(StatusSucceeded))
	assert.Contains(t, view.SuccessNote, "stored 1 credential")

	// a completed flow does not need an acknowledgement before the next one
	mockIssuerMetadata(issuerMetadataBody())
	harness.engine.ScanIssuanceOffer(offerURI(t, simpleOffer(true)))
	harness.views.waitFor(t, "second flow started", isIssuanceState(IssuanceStateAwaitingTxCode))
}
