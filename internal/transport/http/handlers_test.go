package httptransport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/document"
	"onboarding-gateway/internal/onboarding/otp"
	"onboarding-gateway/internal/onboarding/process"
	"onboarding-gateway/internal/onboarding/store"
	providermock "onboarding-gateway/internal/provider/mock"
	"onboarding-gateway/internal/statemachine"
	"onboarding-gateway/pkg/testutil"
)

var signingKey = []byte("test-signing-key")

type HandlerSuite struct {
	suite.Suite
	ctx     context.Context
	stores  store.Stores
	otps    *otp.Service
	handler *Handler
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores = store.NewMemory().Stores()
	logger := zap.NewNop()

	processes, err := process.New(s.stores.Processes, s.stores.Verifications, process.DefaultLimits())
	s.Require().NoError(err)
	s.otps, err = otp.New(s.stores, processes, process.DefaultLimits(), otp.DefaultConfig())
	s.Require().NoError(err)

	docVendor := providermock.NewDocumentProvider(false, signingKey, logger)
	presence := providermock.NewPresenceProvider(logger)
	documents := document.New(s.stores, docVendor, nil, logger)

	features := statemachine.Features{PresenceCheckEnabled: true, OtpVerificationEnabled: true}
	guards := statemachine.NewGuards(s.stores.Documents, s.stores.Otps, features)
	actions := statemachine.NewActions(s.stores, processes, s.otps, docVendor, presence, features, nil, logger)
	engine := statemachine.NewEngine(statemachine.DefaultTable(guards, actions), s.stores, logger, nil)

	s.handler = NewHandler(s.stores, processes, s.otps, documents, engine, docVendor, logger)
	s.router = NewRouter(s.handler, signingKey)
}

func (s *HandlerSuite) TestOnboardingStartCreatesProcessAndOtp() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/start",
		startRequest{UserID: "user-1", ActivationID: "activation-1"}))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[processResponse](s.T(), rr)
	s.NotEmpty(resp.ProcessID)
	s.Equal(onboarding.ProcessActivationInProgress, resp.OnboardingStatus)

	o, err := s.stores.Otps.FindNewestByProcessAndType(s.ctx, resp.ProcessID, onboarding.OtpTypeActivation)
	s.Require().NoError(err)
	s.Equal(onboarding.OtpActive, o.Status)
}

func (s *HandlerSuite) TestOnboardingStartValidatesRequest() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/start",
		startRequest{UserID: "user-1"}))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalidRequest")
}

func (s *HandlerSuite) TestOnboardingStatusUnknownProcess() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/status",
		processRequest{ProcessID: "no-such-process"}))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "notFound")
}

func (s *HandlerSuite) TestOnboardingOtpVerifyWrongCode() {
	processID := s.startProcess("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/otp/verify",
		otpVerifyRequest{ProcessID: processID, OtpCode: "wrong-code"}))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[otpVerifyResponse](s.T(), rr)
	s.False(resp.Verified)
	s.Equal(otp.DefaultConfig().MaxFailedAttempts-1, resp.RemainingAttempts)
}

func (s *HandlerSuite) TestOnboardingOtpVerifyCorrectCode() {
	processID := s.startProcess("user-1", "activation-1")
	s.overrideOtpCode(processID, onboarding.OtpTypeActivation, "12345678")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/otp/verify",
		otpVerifyRequest{ProcessID: processID, OtpCode: "12345678"}))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[otpVerifyResponse](s.T(), rr)
	s.True(resp.Verified)
}

func (s *HandlerSuite) TestOnboardingOtpResendTooSoon() {
	processID := s.startProcess("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/otp/resend",
		processRequest{ProcessID: processID}))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, "otpResendTooSoon")
}

func (s *HandlerSuite) TestOnboardingCleanupCancelsProcess() {
	processID := s.startProcess("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/cleanup",
		processRequest{ProcessID: processID}))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "onboardingStatus", string(onboarding.ProcessFailed))

	p, err := s.stores.Processes.FindByID(s.ctx, processID)
	s.Require().NoError(err)
	s.Equal(onboarding.ProcessFailed, p.Status)
	s.Equal(onboarding.ErrorProcessCanceled, p.ErrorDetail)

	o, err := s.stores.Otps.FindNewestByProcessAndType(s.ctx, processID, onboarding.OtpTypeActivation)
	s.Require().NoError(err)
	s.Equal(onboarding.OtpFailed, o.Status)
}

func (s *HandlerSuite) TestIdentityRoutesRequireAuth() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/init", nil))

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestIdentityInitStartsVerification() {
	s.startProcess("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/init", nil), "user-1", "activation-1"))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[identityStateResponse](s.T(), rr)
	s.Equal(statemachine.StateDocumentUploadInProgress, resp.State)
	s.NotEmpty(resp.IdentityVerificationID)
}

func (s *HandlerSuite) TestIdentityStatusBeforeInit() {
	processID := s.startProcess("user-1", "activation-1")

	// Handler invoked directly with the identity injected, the way the auth
	// middleware would have done it.
	req := testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/api/identity/status"), "user-1", "activation-1")
	rr := testutil.DoRequest(http.HandlerFunc(s.handler.handleIdentityStatus), req)

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[identityStateResponse](s.T(), rr)
	s.Equal(processID, resp.ProcessID)
	s.Equal(statemachine.StateInitial, resp.State)
}

func (s *HandlerSuite) TestDocumentSubmitAdvancesVerification() {
	s.startProcess("user-1", "activation-1")
	s.initIdentity("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/document/submit", map[string]any{
			"documents": []map[string]any{
				{"filename": "id_card_front.jpg", "type": "ID_CARD", "side": "FRONT", "data": []byte("front")},
				{"filename": "id_card_back.jpg", "type": "ID_CARD", "side": "BACK", "data": []byte("back")},
				{"filename": "driving_license.jpg", "type": "DRIVING_LICENSE", "data": []byte("license")},
			},
		}), "user-1", "activation-1"))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[documentSubmitResponse](s.T(), rr)
	s.Require().Len(resp.Documents, 3)
	for _, d := range resp.Documents {
		s.Equal(onboarding.DocumentVerificationPending, d.Status)
		s.NotEmpty(d.UploadID)
	}

	// The full synchronous batch clears upload, vendor verification and the
	// final check in the nudge fired after submission.
	status := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewRequest(s.T(), http.MethodGet, "/api/identity/status"), "user-1", "activation-1"))
	statusResp := testutil.UnmarshalResponse[identityStateResponse](s.T(), status)
	s.Equal(statemachine.StateClientEvaluationInProgress, statusResp.State)
}

func (s *HandlerSuite) TestDocumentSubmitBeforeInit() {
	s.startProcess("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/document/submit", map[string]any{
			"documents": []map[string]any{
				{"filename": "id_card_front.jpg", "type": "ID_CARD", "side": "FRONT", "data": []byte("x")},
			},
		}), "user-1", "activation-1"))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "notFound")
}

func (s *HandlerSuite) TestPresenceCheckInitInWrongState() {
	s.startProcess("user-1", "activation-1")
	s.initIdentity("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/presence-check/init", nil), "user-1", "activation-1"))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalidState")
}

func (s *HandlerSuite) TestSdkInitReturnsVendorAttributes() {
	s.startProcess("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/document/sdk-init",
			sdkInitRequest{Attributes: map[string]string{"sdk-version": "1.0"}}), "user-1", "activation-1"))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[sdkInitResponse](s.T(), rr)
	s.NotEmpty(resp.Attributes["sdk-init-response"])
}

func (s *HandlerSuite) TestIdentityCleanupResetsVerification() {
	processID := s.startProcess("user-1", "activation-1")
	s.initIdentity("user-1", "activation-1")

	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/cleanup", nil), "user-1", "activation-1"))

	testutil.AssertStatusOK(s.T(), rr)

	v, err := s.stores.Verifications.FindNewestByProcessID(s.ctx, processID)
	s.Require().NoError(err)
	s.Equal(onboarding.PhaseCompleted, v.Phase)
	s.Equal(onboarding.StatusFailed, v.Status)
}

// --- helpers ---

func (s *HandlerSuite) startProcess(userID, activationID string) string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/onboarding/start",
		startRequest{UserID: userID, ActivationID: activationID}))
	testutil.AssertStatusOK(s.T(), rr)
	return testutil.UnmarshalResponse[processResponse](s.T(), rr).ProcessID
}

func (s *HandlerSuite) initIdentity(userID, activationID string) {
	rr := testutil.DoRequest(s.router, s.authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/identity/init", nil), userID, activationID))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *HandlerSuite) authenticated(req *http.Request, userID, activationID string) *http.Request {
	claims := jwt.MapClaims{
		"sub":           userID,
		"activation_id": activationID,
		"iat":           time.Now().Unix(),
		"exp":           time.Now().Add(5 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// overrideOtpCode swaps the stored digest for a known code, since the plain
// code never leaves the delivery channel.
func (s *HandlerSuite) overrideOtpCode(processID string, otpType onboarding.OtpType, code string) {
	o, err := s.stores.Otps.FindNewestByProcessAndType(s.ctx, processID, otpType)
	s.Require().NoError(err)
	digest, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	s.Require().NoError(err)
	o.CodeDigest = digest
	s.Require().NoError(s.stores.Otps.Update(s.ctx, o))
}
