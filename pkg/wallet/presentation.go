package wallet

import (
	"context"
	"fmt"
	"regexp"

	"github.com/TBD54566975/ssi-sdk/credential/exchange"
	sdkcrypto "github.com/TBD54566975/ssi-sdk/crypto"
	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/oliveagle/jsonpath"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/oidc"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
	"github.com/openwalletlab/wallet-core/pkg/service/keystore"
	"github.com/openwalletlab/wallet-core/pkg/transport"
)

func (e *Engine) handleScanRequest(ev scanRequestEvent) *Notice {
	if !e.canStartFlow() {
		return e.flowBusy()
	}
	logrus.Debugf("scanned presentation request: %s", util.SanitizeLog(ev.uri))

	request, requestURI, err := oidc.ParsePresentationRequestURI(ev.uri)
	if err != nil {
		return e.fail(FlawMalformedRequest, err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &PresentationSession{
		ID:         uuid.NewString(),
		State:      PresentationStateRequestReceived,
		Request:    request,
		RequestURI: requestURI,
		ctx:        ctx,
		cancel:     cancel,
	}
	e.status = StatusPresenting
	e.successNote = ""
	e.presentation = session

	if requestURI != "" {
		e.fetchRequestObject(session)
		return nil
	}
	return e.resolveDefinition(session)
}

func (e *Engine) fetchRequestObject(s *PresentationSession) {
	go func(sessionID, uri string, ctx context.Context) {
		resp, err := transport.Get(ctx, e.network, uri)
		e.enqueue(requestFetchedEvent{sessionID: sessionID, resp: resp, err: err})
	}(s.ID, s.RequestURI, s.ctx)
}

func (e *Engine) handleRequestFetched(ev requestFetchedEvent) *Notice {
	if ev.err != nil {
		return e.fail(FlawIssuerUnreachable, ev.err.Error())
	}
	if !ev.resp.Is2xx() {
		return e.fail(FlawMalformedRequest, fmt.Sprintf("request reference returned status %d", ev.resp.StatusCode))
	}
	request, err := oidc.ParseRequestObjectResponse(ev.resp.Body)
	if err != nil {
		return e.fail(FlawMalformedRequest, err.Error())
	}
	e.presentation.Request = request
	return e.resolveDefinition(e.presentation)
}

// resolveDefinition checks the presentation definition is one the wallet can
// in principle satisfy, then proceeds to matching.
func (e *Engine) resolveDefinition(s *PresentationSession) *Notice {
	definition := s.Request.PresentationDefinition
	for _, descriptor := range definition.InputDescriptors {
		if descriptor.Constraints == nil || len(descriptor.Constraints.Fields) == 0 {
			return e.fail(FlawUnsupportedDefinition, fmt.Sprintf("descriptor %q carries no field constraints", descriptor.ID))
		}
		for _, field := range descriptor.Constraints.Fields {
			if len(field.Path) == 0 {
				return e.fail(FlawUnsupportedDefinition, fmt.Sprintf("descriptor %q has a field without a path", descriptor.ID))
			}
		}
		if descriptor.Format != nil && descriptor.Format.JWTVC == nil {
			return e.fail(FlawUnsupportedDefinition, fmt.Sprintf("descriptor %q demands a format the wallet does not hold", descriptor.ID))
		}
	}
	s.State = PresentationStateDefinitionResolved
	return e.matchCredentials(s)
}

// matchCredentials evaluates every stored credential against each input
// descriptor and either advances automatically, suspends for selection, or
// fails when a descriptor has no candidates.
func (e *Engine) matchCredentials(s *PresentationSession) *Notice {
	stored, err := e.credentials.List(s.ctx)
	if err != nil {
		return e.fail(FlawStorageFailure, err.Error())
	}

	definition := s.Request.PresentationDefinition
	candidates := make(map[string][]credential.StoredCredential, len(definition.InputDescriptors))
	for _, descriptor := range definition.InputDescriptors {
		for _, cred := range stored {
			ok, err := credentialSatisfiesDescriptor(cred, descriptor)
			if err != nil {
				logrus.WithError(err).Debugf("skipping credential %s for descriptor %s", cred.ID, descriptor.ID)
				continue
			}
			if ok {
				candidates[descriptor.ID] = append(candidates[descriptor.ID], cred)
			}
		}
		if len(candidates[descriptor.ID]) == 0 {
			return e.fail(FlawNoMatchingCredential, fmt.Sprintf("no stored credential satisfies descriptor %q", descriptor.ID))
		}
	}

	s.Candidates = candidates
	s.State = PresentationStateCredentialsMatched

	// advance without a pause only when the choice is forced and the holder
	// has not asked to always confirm
	if !e.cfg.RequireSelection && everyDescriptorHasOneCandidate(definition, candidates) {
		selection := make(map[string]string, len(definition.InputDescriptors))
		for _, descriptor := range definition.InputDescriptors {
			selection[descriptor.ID] = candidates[descriptor.ID][0].ID
		}
		s.Selection = selection
		e.buildProof(s)
		return nil
	}

	s.State = PresentationStateAwaitingSelection
	return nil
}

func everyDescriptorHasOneCandidate(definition *exchange.PresentationDefinition, candidates map[string][]credential.StoredCredential) bool {
	for _, descriptor := range definition.InputDescriptors {
		if len(candidates[descriptor.ID]) != 1 {
			return false
		}
	}
	return true
}

func (e *Engine) handleSelectCredentials(ev selectCredentialsEvent) *Notice {
	s := e.presentation
	if e.status != StatusPresenting || s == nil || s.State != PresentationStateAwaitingSelection {
		return &Notice{Kind: FlawInvalidTransition, Message: "no flow is waiting for a credential selection"}
	}

	definition := s.Request.PresentationDefinition
	for _, descriptor := range definition.InputDescriptors {
		chosenID, ok := ev.selection[descriptor.ID]
		if !ok {
			return &Notice{Kind: FlawInvalidSelection, Message: fmt.Sprintf("no credential selected for descriptor %q", descriptor.ID)}
		}
		if !isCandidate(s.Candidates[descriptor.ID], chosenID) {
			return &Notice{Kind: FlawInvalidSelection, Message: fmt.Sprintf("credential %q does not satisfy descriptor %q", chosenID, descriptor.ID)}
		}
	}

	s.Selection = ev.selection
	e.buildProof(s)
	return nil
}

func isCandidate(candidates []credential.StoredCredential, id string) bool {
	for _, candidate := range candidates {
		if candidate.ID == id {
			return true
		}
	}
	return false
}

// buildProof signs the selected credentials into a verifiable presentation
// token addressed to the verifier.
func (e *Engine) buildProof(s *PresentationSession) {
	definition := *s.Request.PresentationDefinition
	requester := s.Request.ClientID

	selected := make([]credential.StoredCredential, 0, len(definition.InputDescriptors))
	byID := make(map[string]credential.StoredCredential)
	for _, creds := range s.Candidates {
		for _, cred := range creds {
			byID[cred.ID] = cred
		}
	}
	for _, descriptor := range definition.InputDescriptors {
		selected = append(selected, byID[s.Selection[descriptor.ID]])
	}

	go func(sessionID string, ctx context.Context) {
		vpToken, submission, err := e.signPresentation(ctx, requester, definition, selected)
		e.enqueue(proofBuiltEvent{sessionID: sessionID, vpToken: vpToken, submission: submission, err: err})
	}(s.ID, s.ctx)
}

func (e *Engine) signPresentation(ctx context.Context, requester string, definition exchange.PresentationDefinition, selected []credential.StoredCredential) (string, exchange.PresentationSubmission, error) {
	var submission exchange.PresentationSubmission

	if _, err := e.keys.GetOrCreateKey(ctx, keystore.PurposeHolder); err != nil {
		return "", submission, errors.Wrap(err, "resolving holder key")
	}
	signer, err := e.keys.Signer(ctx, keystore.PurposeHolder)
	if err != nil {
		return "", submission, errors.Wrap(err, "getting holder signer")
	}

	claims := make([]exchange.PresentationClaim, 0, len(selected))
	for _, cred := range selected {
		claims = append(claims, exchange.PresentationClaim{
			Token:                         sdkutil.StringPtr(cred.CredentialJWT.String()),
			JWTFormat:                     exchange.JWTVC.Ptr(),
			SignatureAlgorithmOrProofType: string(sdkcrypto.EdDSA),
		})
	}

	vpTokenBytes, err := exchange.BuildPresentationSubmission(*signer.Signer, requester, definition, claims, exchange.JWTVPTarget)
	if err != nil {
		return "", submission, errors.Wrap(err, "building presentation submission")
	}

	submission, err = extractSubmission(vpTokenBytes)
	if err != nil {
		return "", submission, err
	}
	return string(vpTokenBytes), submission, nil
}

// extractSubmission pulls the descriptor map out of the signed presentation
// so it can ride alongside the vp_token in the direct_post form.
func extractSubmission(vpToken []byte) (exchange.PresentationSubmission, error) {
	var submission exchange.PresentationSubmission
	msg, err := jws.Parse(vpToken)
	if err != nil {
		return submission, errors.Wrap(err, "parsing presentation token")
	}
	var payload struct {
		VP struct {
			PresentationSubmission exchange.PresentationSubmission `json:"presentation_submission"`
		} `json:"vp"`
	}
	if err = json.Unmarshal(msg.Payload(), &payload); err != nil {
		return submission, errors.Wrap(err, "unmarshalling presentation token payload")
	}
	return payload.VP.PresentationSubmission, nil
}

func (e *Engine) handleProofBuilt(ev proofBuiltEvent) *Notice {
	if ev.err != nil {
		return e.fail(FlawProofGenerationFailed, ev.err.Error())
	}
	s := e.presentation
	s.VPToken = ev.vpToken
	s.Submission = ev.submission
	s.State = PresentationStateProofBuilt

	response := oidc.ResponseRequest{
		VPToken:                s.VPToken,
		PresentationSubmission: s.Submission,
		State:                  s.Request.State,
	}
	form, err := response.Encode()
	if err != nil {
		return e.fail(FlawProofGenerationFailed, err.Error())
	}

	go func(sessionID, responseURI, form string, ctx context.Context) {
		resp, err := transport.PostForm(ctx, e.network, responseURI, form)
		e.enqueue(submittedEvent{sessionID: sessionID, resp: resp, err: err})
	}(s.ID, s.Request.ResponseURI, form, s.ctx)
	return nil
}

func (e *Engine) handleSubmitted(ev submittedEvent) *Notice {
	if ev.err != nil {
		return e.fail(FlawIssuerUnreachable, ev.err.Error())
	}
	if !ev.resp.Is2xx() {
		return e.fail(FlawVerifierRejected, fmt.Sprintf("verifier returned status %d", ev.resp.StatusCode))
	}
	s := e.presentation
	s.State = PresentationStateSubmitted
	return e.succeed(fmt.Sprintf("presentation submitted to %s", s.Request.ClientID))
}

// credentialSatisfiesDescriptor evaluates an input descriptor's field
// constraints against the decoded credential payload.
func credentialSatisfiesDescriptor(cred credential.StoredCredential, descriptor exchange.InputDescriptor) (bool, error) {
	payload, err := decodeCredentialPayload(cred)
	if err != nil {
		return false, err
	}
	for _, field := range descriptor.Constraints.Fields {
		matched := false
		for _, path := range field.Path {
			value, err := jsonpath.JsonPathLookup(payload, path)
			if err != nil {
				continue
			}
			if field.Filter == nil || filterMatches(field.Filter, value) {
				matched = true
				break
			}
		}
		if !matched {
			if field.Optional {
				continue
			}
			return false, nil
		}
	}
	return true, nil
}

func decodeCredentialPayload(cred credential.StoredCredential) (map[string]any, error) {
	msg, err := jws.Parse([]byte(cred.CredentialJWT))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing credential %s", cred.ID)
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(msg.Payload(), &payload); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling credential %s payload", cred.ID)
	}
	return payload, nil
}

func filterMatches(filter *exchange.Filter, value any) bool {
	if filter.Const != nil {
		return fmt.Sprint(filter.Const) == fmt.Sprint(value)
	}
	if len(filter.Enum) > 0 {
		for _, allowed := range filter.Enum {
			if fmt.Sprint(allowed) == fmt.Sprint(value) {
				return true
			}
		}
		return false
	}
	if filter.Pattern != "" {
		str, ok := value.(string)
		if !ok {
			return false
		}
		matched, err := regexp.MatchString(filter.Pattern, str)
		return err == nil && matched
	}
	if filter.MinLength > 0 {
		str, ok := value.(string)
		return ok && len(str) >= filter.MinLength
	}
	return true
}
