package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/oidc"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
	"github.com/openwalletlab/wallet-core/pkg/service/keystore"
	"github.com/openwalletlab/wallet-core/pkg/transport"
)

func (e *Engine) handleScanOffer(ev scanOfferEvent) *Notice {
	if !e.canStartFlow() {
		return e.flowBusy()
	}
	logrus.Debugf("scanned issuance offer: %s", util.SanitizeLog(ev.uri))

	offer, offerURI, err := oidc.ParseCredentialOfferURI(ev.uri)
	if err != nil {
		return e.fail(FlawMalformedOffer, err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &IssuanceSession{
		ID:       uuid.NewString(),
		State:    IssuanceStateOfferReceived,
		Offer:    offer,
		OfferURI: offerURI,
		ctx:      ctx,
		cancel:   cancel,
	}
	e.status = StatusIssuing
	e.successNote = ""
	e.issuance = session

	if offerURI != "" {
		e.fetchOffer(session)
		return nil
	}
	e.fetchIssuerMetadata(session)
	return nil
}

func (e *Engine) fetchOffer(s *IssuanceSession) {
	go func(sessionID, uri string, ctx context.Context) {
		resp, err := transport.Get(ctx, e.network, uri)
		e.enqueue(offerFetchedEvent{sessionID: sessionID, resp: resp, err: err})
	}(s.ID, s.OfferURI, s.ctx)
}

func (e *Engine) handleOfferFetched(ev offerFetchedEvent) *Notice {
	if ev.err != nil {
		return e.fail(FlawIssuerUnreachable, ev.err.Error())
	}
	if !ev.resp.Is2xx() {
		return e.fail(FlawMalformedOffer, fmt.Sprintf("offer reference returned status %d", ev.resp.StatusCode))
	}
	offer, err := oidc.ParseCredentialOffer(ev.resp.Body)
	if err != nil {
		return e.fail(FlawMalformedOffer, err.Error())
	}
	e.issuance.Offer = offer
	e.fetchIssuerMetadata(e.issuance)
	return nil
}

func (e *Engine) fetchIssuerMetadata(s *IssuanceSession) {
	metadataURL := strings.TrimSuffix(s.Offer.CredentialIssuer, "/") + oidc.WellKnownIssuerMetadata
	go func(sessionID, url string, ctx context.Context) {
		resp, err := transport.Get(ctx, e.network, url)
		e.enqueue(metadataFetchedEvent{sessionID: sessionID, resp: resp, err: err})
	}(s.ID, metadataURL, s.ctx)
}

func (e *Engine) handleMetadataFetched(ev metadataFetchedEvent) *Notice {
	if ev.err != nil {
		return e.fail(FlawIssuerUnreachable, ev.err.Error())
	}
	if !ev.resp.Is2xx() {
		return e.fail(FlawIssuerUnreachable, fmt.Sprintf("issuer metadata returned status %d", ev.resp.StatusCode))
	}
	metadata, err := oidc.ParseIssuerMetadata(ev.resp.Body)
	if err != nil {
		return e.fail(FlawMalformedOffer, err.Error())
	}

	s := e.issuance
	s.Metadata = metadata

	// every requested configuration must be advertised by the issuer
	metadataWantsTxCode := false
	for _, configID := range s.Offer.CredentialConfigurationIDs {
		configuration, ok := metadata.CredentialConfigurationsSupported[configID]
		if !ok {
			return e.fail(FlawUnsupportedConfiguration, fmt.Sprintf("issuer does not offer configuration %q", configID))
		}
		if configuration.Format != oidc.FormatJWTVCJSON {
			return e.fail(FlawUnsupportedConfiguration, fmt.Sprintf("configuration %q has unsupported format %q", configID, configuration.Format))
		}
		if configuration.TxCodeRequired {
			metadataWantsTxCode = true
		}
	}

	// the issuer can demand a transaction code either on the offer's grant or
	// in configuration metadata; metadata demanding one without the grant
	// describing it leaves the holder no way to know what to enter
	if metadataWantsTxCode && !s.Offer.TxCodeRequired() {
		return e.fail(FlawUnsupportedConfiguration, "issuer metadata requires a transaction code the offer does not describe")
	}

	s.State = IssuanceStateMetadataResolved
	if s.Offer.TxCodeRequired() {
		s.State = IssuanceStateAwaitingTxCode
		return nil
	}
	e.exchangeToken(s)
	return nil
}

func (e *Engine) handleSupplyTxCode(ev supplyTxCodeEvent) *Notice {
	s := e.issuance
	if e.status != StatusIssuing || s == nil || s.State != IssuanceStateAwaitingTxCode {
		return &Notice{Kind: FlawInvalidTransition, Message: "no flow is waiting for a transaction code"}
	}
	if strings.TrimSpace(ev.code) == "" {
		// the issuer validates the code's content; the wallet only refuses to
		// send nothing
		return &Notice{Kind: FlawInvalidTransition, Message: "transaction code cannot be empty"}
	}
	s.TxCode = ev.code
	e.exchangeToken(s)
	return nil
}

func (e *Engine) tokenEndpoint(s *IssuanceSession) string {
	if s.Metadata.TokenEndpoint != "" {
		return s.Metadata.TokenEndpoint
	}
	return strings.TrimSuffix(s.Offer.CredentialIssuer, "/") + "/token"
}

func (e *Engine) exchangeToken(s *IssuanceSession) {
	form := oidc.BuildPreAuthorizedTokenRequest(s.Offer.Grants.PreAuthorizedCode.PreAuthorizedCode, s.TxCode)
	go func(sessionID, endpoint, form string, ctx context.Context) {
		resp, err := transport.PostForm(ctx, e.network, endpoint, form)
		e.enqueue(tokenExchangedEvent{sessionID: sessionID, resp: resp, err: err})
	}(s.ID, e.tokenEndpoint(s), form, s.ctx)
}

func (e *Engine) handleTokenExchanged(ev tokenExchangedEvent) *Notice {
	if ev.err != nil {
		return e.fail(FlawIssuerUnreachable, ev.err.Error())
	}
	if !ev.resp.Is2xx() {
		return e.fail(FlawTokenRejected, fmt.Sprintf("token exchange returned status %d", ev.resp.StatusCode))
	}

	var token oidc.TokenResponse
	if err := json.Unmarshal(ev.resp.Body, &token); err != nil {
		return e.fail(FlawTokenRejected, "token response could not be parsed")
	}
	if token.AccessToken == "" {
		return e.fail(FlawTokenRejected, "token response carried no access token")
	}

	s := e.issuance
	s.AccessToken = token.AccessToken
	s.CNonce = token.CNonce
	s.State = IssuanceStateTokenAcquired

	s.State = IssuanceStateCredentialRequested
	e.requestCredential(s)
	return nil
}

// requestCredential signs a proof of possession over the issuer's nonce and
// submits the credential request for the configuration under the cursor.
func (e *Engine) requestCredential(s *IssuanceSession) {
	configID := s.currentConfigurationID()
	configuration := s.Metadata.CredentialConfigurationsSupported[configID]

	claims := map[string]any{
		"aud":   s.Offer.CredentialIssuer,
		"iat":   time.Now().Unix(),
		"nonce": s.CNonce,
	}

	go func(sessionID, configID, endpoint, accessToken string, format string, ctx context.Context) {
		holder, signErr := e.keys.GetOrCreateKey(ctx, keystore.PurposeHolder)
		if signErr != nil {
			e.enqueue(credentialIssuedEvent{sessionID: sessionID, configurationID: configID, signErr: signErr})
			return
		}
		claims["iss"] = holder.Controller
		proof, signErr := e.keys.Sign(ctx, keystore.PurposeHolder, claims)
		if signErr != nil {
			e.enqueue(credentialIssuedEvent{sessionID: sessionID, configurationID: configID, signErr: signErr})
			return
		}

		request := oidc.CredentialRequest{
			Format:                    format,
			CredentialConfigurationID: configID,
			Proof:                     oidc.Proof{ProofType: "jwt", JWT: proof.String()},
		}
		body, err := json.Marshal(request)
		if err != nil {
			e.enqueue(credentialIssuedEvent{sessionID: sessionID, configurationID: configID, signErr: err})
			return
		}

		resp, err := transport.PostJSON(ctx, e.network, endpoint, accessToken, body)
		e.enqueue(credentialIssuedEvent{sessionID: sessionID, configurationID: configID, resp: resp, err: err})
	}(s.ID, configID, s.Metadata.CredentialEndpoint, s.AccessToken, configuration.Format, s.ctx)
}

func (e *Engine) handleCredentialIssued(ev credentialIssuedEvent) *Notice {
	if ev.signErr != nil {
		return e.fail(FlawProofGenerationFailed, ev.signErr.Error())
	}
	if ev.err != nil {
		return e.fail(FlawIssuerUnreachable, ev.err.Error())
	}
	if !ev.resp.Is2xx() {
		return e.fail(FlawCredentialRejected, fmt.Sprintf("credential request for %q returned status %d", ev.configurationID, ev.resp.StatusCode))
	}

	var response oidc.CredentialResponse
	if err := json.Unmarshal(ev.resp.Body, &response); err != nil {
		return e.fail(FlawCredentialRejected, "credential response could not be parsed")
	}
	if response.Credential == "" {
		return e.fail(FlawCredentialRejected, "credential response carried no credential")
	}

	s := e.issuance
	configuration := s.Metadata.CredentialConfigurationsSupported[ev.configurationID]

	stored, err := e.storeWithRetries(s, credential.AddCredentialRequest{
		ID:                response.CredentialID,
		Issuer:            s.Offer.CredentialIssuer,
		ConfigurationID:   ev.configurationID,
		Format:            configuration.Format,
		CredentialJWT:     keyaccess.JWT(response.Credential),
		DisplayName:       configuration.DisplayName(),
		IssuerDisplayName: s.Metadata.DisplayName(),
	})
	if err != nil {
		return e.fail(FlawStorageFailure, err.Error())
	}
	s.StoredIDs = append(s.StoredIDs, stored.ID)

	// fresh nonce for the next proof, when the issuer rotates it
	if response.CNonce != "" {
		s.CNonce = response.CNonce
	}

	s.Cursor++
	if s.Cursor < len(s.Offer.CredentialConfigurationIDs) {
		e.requestCredential(s)
		return nil
	}

	s.State = IssuanceStateStored
	note := fmt.Sprintf("stored %d credential(s) from %s", len(s.StoredIDs), s.Offer.CredentialIssuer)
	return e.succeed(note)
}

// storeWithRetries persists a credential, retrying a bounded number of times
// before giving up. Writes are idempotent on ID so retries are safe.
func (e *Engine) storeWithRetries(s *IssuanceSession, request credential.AddCredentialRequest) (*credential.StoredCredential, error) {
	attempts := e.cfg.StoreRetries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		stored, err := e.credentials.Add(s.ctx, request)
		if err == nil {
			return stored, nil
		}
		lastErr = err
		logrus.WithError(err).Warnf("store attempt %d of %d failed", i+1, attempts)
	}
	return nil, lastErr
}
