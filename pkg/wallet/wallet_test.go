package wallet

import (
	gocrypto "crypto"
	"net/url"
	"sync"
	"testing"
	"time"

	sdkcredential "github.com/TBD54566975/ssi-sdk/credential"
	"github.com/TBD54566975/ssi-sdk/credential/integrity"
	"github.com/TBD54566975/ssi-sdk/crypto"
	"github.com/TBD54566975/ssi-sdk/crypto/jwx"
	"github.com/TBD54566975/ssi-sdk/did/key"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/openwalletlab/wallet-core/config"
	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
	"github.com/openwalletlab/wallet-core/pkg/service/keystore"
	"github.com/openwalletlab/wallet-core/pkg/storage"
	"github.com/openwalletlab/wallet-core/pkg/transport"
)

const viewWaitTimeout = 10 * time.Second

// viewRecorder collects every snapshot the engine renders and exposes them
// both as a stream for waiting and as history for inspection.
type viewRecorder struct {
	mu   sync.Mutex
	seen []View
	ch   chan View
}

func newViewRecorder() *viewRecorder {
	return &viewRecorder{ch: make(chan View, 256)}
}

func (r *viewRecorder) Render(view View) {
	r.mu.Lock()
	r.seen = append(r.seen, view)
	r.mu.Unlock()
	r.ch <- view
}

func (r *viewRecorder) history() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.seen...)
}

// waitFor blocks until a snapshot satisfies the predicate.
func (r *viewRecorder) waitFor(t *testing.T, desc string, predicate func(View) bool) View {
	t.Helper()
	deadline := time.After(viewWaitTimeout)
	for {
		select {
		case view := <-r.ch:
			if predicate(view) {
				return view
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view: %s", desc)
		}
	}
}

type testHarness struct {
	engine      *Engine
	views       *viewRecorder
	credentials *credential.Service
	client      *transport.HTTPClient
}

func newTestHarness(t *testing.T, cfg config.WalletServiceConfig) *testHarness {
	t.Helper()

	db := storage.NewMemoryDB()
	keys, err := keystore.NewKeyStoreService(config.KeyStoreServiceConfig{
		BaseServiceConfig:  &config.BaseServiceConfig{Name: "keystore"},
		ServiceKeyPassword: "test-password",
	}, db)
	require.NoError(t, err)

	credentials, err := credential.NewCredentialService(db)
	require.NoError(t, err)

	client := transport.NewHTTPClient(transport.WithMaxAttempts(1))
	gock.InterceptClient(client.HTTP)
	t.Cleanup(gock.Off)

	views := newViewRecorder()
	engine, err := NewEngine(cfg, client, keys, credentials, views)
	require.NoError(t, err)
	t.Cleanup(engine.Shutdown)

	return &testHarness{
		engine:      engine,
		views:       views,
		credentials: credentials,
		client:      client,
	}
}

func defaultWalletConfig() config.WalletServiceConfig {
	return config.WalletServiceConfig{
		BaseServiceConfig: &config.BaseServiceConfig{Name: "wallet"},
		NetworkRetries:    1,
		StoreRetries:      3,
	}
}

// newSignedCredential builds a self-signed name credential the way a test
// issuer would, returning the compact JWT.
func newSignedCredential(t *testing.T, firstName string) keyaccess.JWT {
	t.Helper()
	privKey, didKey, err := key.GenerateDIDKey(crypto.Ed25519)
	require.NoError(t, err)
	return signCredential(t, privKey, didKey, firstName)
}

func signCredential(t *testing.T, privKey gocrypto.PrivateKey, didKey *key.DIDKey, firstName string) keyaccess.JWT {
	t.Helper()
	builder := sdkcredential.NewVerifiableCredentialBuilder()
	require.NoError(t, builder.SetIssuer(didKey.String()))
	require.NoError(t, builder.SetIssuanceDate(time.Now().Format(time.RFC3339)))
	require.NoError(t, builder.SetCredentialSubject(map[string]any{
		sdkcredential.VerifiableCredentialIDProperty: didKey.String(),
		"firstName": firstName,
	}))
	cred, err := builder.Build()
	require.NoError(t, err)

	didDoc, err := didKey.Expand()
	require.NoError(t, err)
	signer, err := jwx.NewJWXSigner(didKey.String(), didDoc.VerificationMethod[0].ID, privKey)
	require.NoError(t, err)

	credJWT, err := integrity.SignVerifiableCredentialJWT(*signer, *cred)
	require.NoError(t, err)
	return keyaccess.JWT(credJWT)
}

// offerURI query-encodes a credential offer the way issuers embed them in QR codes.
func offerURI(t *testing.T, offer map[string]any) string {
	t.Helper()
	offerBytes, err := json.Marshal(offer)
	require.NoError(t, err)
	return "openid-credential-offer://?credential_offer=" + url.QueryEscape(string(offerBytes))
}

func presentationURI(t *testing.T, clientID, responseURI string, definition map[string]any) string {
	t.Helper()
	definitionBytes, err := json.Marshal(definition)
	require.NoError(t, err)
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("nonce", "nonce-1")
	query.Set("state", "state-1")
	query.Set("response_uri", responseURI)
	query.Set("response_mode", "direct_post")
	query.Set("presentation_definition", string(definitionBytes))
	return "openid4vp://?" + query.Encode()
}

func simpleOffer(txCode bool) map[string]any {
	grant := map[string]any{"pre-authorized_code": "pre-auth-123"}
	if txCode {
		grant["tx_code"] = map[string]any{
			"input_mode":  "numeric",
			"length":      6,
			"description": "enter the emailed code",
		}
	}
	return map[string]any{
		"credential_issuer":            "https://issuer.example",
		"credential_configuration_ids": []string{"EmployeeID_JWT"},
		"grants": map[string]any{
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": grant,
		},
	}
}

func issuerMetadataBody() map[string]any {
	return map[string]any{
		"credential_issuer":   "https://issuer.example",
		"token_endpoint":      "https://issuer.example/token",
		"credential_endpoint": "https://issuer.example/credential",
		"display":             []map[string]any{{"name": "Example Corp", "locale": "en"}},
		"credential_configurations_supported": map[string]any{
			"EmployeeID_JWT": map[string]any{
				"format":  "jwt_vc_json",
				"display": []map[string]any{{"name": "Employee ID", "locale": "en"}},
			},
		},
	}
}

func mockIssuerMetadata(body map[string]any) {
	gock.New("https://issuer.example").
		Get("/.well-known/openid-credential-issuer").
		Reply(200).
		JSON(body)
}

func mockTokenEndpoint() {
	gock.New("https://issuer.example").
		Post("/token").
		Reply(200).
		JSON(map[string]any{
			"access_token": "at-123",
			"token_type":   "bearer",
			"c_nonce":      "nonce-abc",
		})
}

func mockCredentialEndpoint(t *testing.T, credentialID string) {
	gock.New("https://issuer.example").
		Post("/credential").
		Reply(200).
		JSON(map[string]any{
			"credential":    newSignedCredential(t, "Alice").String(),
			"credential_id": credentialID,
		})
}

func isStatus(status Status) func(View) bool {
	return func(v View) bool { return v.Status == status }
}

func isIssuanceState(state IssuanceState) func(View) bool {
	return func(v View) bool {
		return v.Issuance != nil && v.Issuance.State == state
	}
}

func isPresentationState(state PresentationState) func(View) bool {
	return func(v View) bool {
		return v.Presentation != nil && v.Presentation.State == state
	}
}

func hasNotice(kind Flaw) func(View) bool {
	return func(v View) bool {
		return v.Notice != nil && v.Notice.Kind == kind
	}
}
