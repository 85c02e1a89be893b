package wallet

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
)

func firstNameDefinition() map[string]any {
	return map[string]any{
		"id": "def-1",
		"input_descriptors": []map[string]any{
			{
				"id": "employee",
				"constraints": map[string]any{
					"fields": []map[string]any{
						{"path": []string{"$.vc.credentialSubject.firstName"}},
					},
				},
			},
		},
	}
}

func seedCredential(t *testing.T, harness *testHarness, id, firstName string) credential.StoredCredential {
	t.Helper()
	stored, err := harness.credentials.Add(context.Background(), credential.AddCredentialRequest{
		ID:              id,
		Issuer:          "https://issuer.example",
		ConfigurationID: "EmployeeID_JWT",
		Format:          "jwt_vc_json",
		CredentialJWT:   newSignedCredential(t, firstName),
		DisplayName:     "Employee ID",
	})
	require.NoError(t, err)
	return *stored
}

func mockVerifierCallback(status int) {
	gock.New("https://verifier.example").
		Post("/callback").
		BodyString("vp_token=").
		Reply(status).
		JSON(map[string]any{})
}

func TestPresentationAutoAdvance(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")
	mockVerifierCallback(200)

	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", firstNameDefinition())
	harness.engine.ScanPresentationRequest(uri)

	view := harness.views.waitFor(t, "succeeded", isStatus(StatusSucceeded))
	assert.Contains(t, view.SuccessNote, "did:web:verifier.example")

	// a forced choice never pauses for selection
	for _, v := range harness.views.history() {
		if v.Presentation != nil {
			assert.NotEqual(t, PresentationStateAwaitingSelection, v.Presentation.State)
		}
	}
}

func TestPresentationByRequestReference(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")

	gock.New("https://verifier.example").
		Get("/request/xyz").
		Reply(200).
		JSON(map[string]any{
			"client_id":               "did:web:verifier.example",
			"nonce":                   "nonce-2",
			"state":                   "state-2",
			"response_uri":            "https://verifier.example/callback",
			"response_mode":           "direct_post",
			"presentation_definition": firstNameDefinition(),
		})
	mockVerifierCallback(200)

	uri := "openid4vp://?request_uri=" + url.QueryEscape("https://verifier.example/request/xyz")
	harness.engine.ScanPresentationRequest(uri)
	harness.views.waitFor(t, "succeeded", isStatus(StatusSucceeded))
}

func TestPresentationSelection(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")
	seedCredential(t, harness, "cred-2", "Bob")

	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", firstNameDefinition())
	harness.engine.ScanPresentationRequest(uri)

	view := harness.views.waitFor(t, "awaiting selection", isPresentationState(PresentationStateAwaitingSelection))
	require.Len(t, view.Presentation.Candidates["employee"], 2)

	t.Run("selection outside the candidates is refused", func(t *testing.T) {
		harness.engine.SelectCredentials(map[string]string{"employee": "cred-99"})
		view := harness.views.waitFor(t, "invalid selection notice", hasNotice(FlawInvalidSelection))
		require.NotNil(t, view.Presentation)
		assert.Equal(t, PresentationStateAwaitingSelection, view.Presentation.State)
	})

	t.Run("selection missing a descriptor is refused", func(t *testing.T) {
		harness.engine.SelectCredentials(map[string]string{})
		harness.views.waitFor(t, "invalid selection notice", hasNotice(FlawInvalidSelection))
	})

	t.Run("valid selection completes the flow", func(t *testing.T) {
		mockVerifierCallback(200)
		harness.engine.SelectCredentials(map[string]string{"employee": "cred-2"})
		harness.views.waitFor(t, "succeeded", isStatus(StatusSucceeded))
	})
}

func TestPresentationRequireSelection(t *testing.T) {
	cfg := defaultWalletConfig()
	cfg.RequireSelection = true
	harness := newTestHarness(t, cfg)
	seedCredential(t, harness, "cred-1", "Alice")

	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", firstNameDefinition())
	harness.engine.ScanPresentationRequest(uri)

	// even a forced choice pauses when the holder asked to always confirm
	view := harness.views.waitFor(t, "awaiting selection", isPresentationState(PresentationStateAwaitingSelection))
	require.Len(t, view.Presentation.Candidates["employee"], 1)

	mockVerifierCallback(200)
	harness.engine.SelectCredentials(map[string]string{"employee": "cred-1"})
	harness.views.waitFor(t, "succeeded", isStatus(StatusSucceeded))
}

func TestPresentationNoMatchingCredential(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())

	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", firstNameDefinition())
	harness.engine.ScanPresentationRequest(uri)

	view := harness.views.waitFor(t, "failed view", isStatus(StatusFailed))
	assert.Equal(t, FlawNoMatchingCredential, view.Error.Kind)
	// nothing was sent to the verifier
	assert.True(t, gock.IsDone())
}

func TestPresentationFilterMismatch(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")

	definition := map[string]any{
		"id": "def-1",
		"input_descriptors": []map[string]any{
			{
				"id": "employee",
				"constraints": map[string]any{
					"fields": []map[string]any{
						{
							"path":   []string{"$.vc.credentialSubject.firstName"},
							"filter": map[string]any{"type": "string", "const": "Mallory"},
						},
					},
				},
			},
		},
	}
	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", definition)
	harness.engine.ScanPresentationRequest(uri)

	view := harness.views.waitFor(t, "failed view", isStatus(StatusFailed))
	assert.Equal(t, FlawNoMatchingCredential, view.Error.Kind)
}

func TestPresentationUnsupportedDefinition(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")

	definition := map[string]any{
		"id": "def-1",
		"input_descriptors": []map[string]any{
			{"id": "employee", "constraints": map[string]any{"fields": []map[string]any{}}},
		},
	}
	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", definition)
	harness.engine.ScanPresentationRequest(uri)

	view := harness.views.waitFor(t, "failed view", isStatus(StatusFailed))
	assert.Equal(t, FlawUnsupportedDefinition, view.Error.Kind)
}

func TestPresentationMalformedRequest(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())

	for _, uri := range []string{
		"openid4vp://?client_id=did:web:verifier.example",
		"openid4vp://?presentation_definition=notjson&client_id=x&nonce=n&response_uri=https://verifier.example/callback",
	} {
		harness.engine.ScanPresentationRequest(uri)
		view := harness.views.waitFor(t, "failed view", isStatus(StatusFailed))
		assert.Equal(t, FlawMalformedRequest, view.Error.Kind)
		harness.engine.Ready()
		harness.views.waitFor(t, "idle again", isStatus(StatusIdle))
	}
}

func TestPresentationVerifierRejected(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")
	mockVerifierCallback(400)

	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", firstNameDefinition())
	harness.engine.ScanPresentationRequest(uri)

	view := harness.views.waitFor(t, "failed view", isStatus(StatusFailed))
	assert.Equal(t, FlawVerifierRejected, view.Error.Kind)
}

func TestPresentationSelectionOutOfTurn(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())

	harness.engine.SelectCredentials(map[string]string{"employee": "cred-1"})
	view := harness.views.waitFor(t, "invalid transition notice", hasNotice(FlawInvalidTransition))
	assert.Equal(t, StatusIdle, view.Status)
}

func TestSubmissionRidesAlongsideToken(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	seedCredential(t, harness, "cred-1", "Alice")

	// the descriptor map travels as its own form field, next to the vp_token
	gock.New("https://verifier.example").
		Post("/callback").
		BodyString("presentation_submission=").
		Reply(200).
		JSON(map[string]any{})

	uri := presentationURI(t, "did:web:verifier.example", "https://verifier.example/callback", firstNameDefinition())
	harness.engine.ScanPresentationRequest(uri)
	harness.views.waitFor(t, "succeeded", isStatus(StatusSucceeded))
}

// the stored credential JWT round-trips through keyaccess unchanged
func TestSeededCredentialParses(t *testing.T) {
	harness := newTestHarness(t, defaultWalletConfig())
	stored := seedCredential(t, harness, "cred-1", "Alice")

	headers, err := keyaccess.GetJWTHeaders([]byte(stored.CredentialJWT))
	require.NoError(t, err)
	kid, ok := headers.Get("kid")
	require.True(t, ok)
	assert.NotEmpty(t, kid)
}
