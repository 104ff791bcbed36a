// Package httptransport is the thin REST surface over the onboarding domain.
// Handlers translate requests into state machine events and service calls;
// business rules stay below this layer.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding/document"
	"onboarding-gateway/internal/onboarding/otp"
	"onboarding-gateway/internal/onboarding/process"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/platform/middleware"
	"onboarding-gateway/internal/provider"
	"onboarding-gateway/internal/statemachine"
)

// Handler is the HTTP layer over the onboarding services.
type Handler struct {
	stores    store.Stores
	processes *process.Service
	otps      *otp.Service
	documents *document.Service
	engine    *statemachine.Engine
	docVendor provider.DocumentProvider
	logger    *zap.Logger
}

func NewHandler(
	stores store.Stores,
	processes *process.Service,
	otps *otp.Service,
	documents *document.Service,
	engine *statemachine.Engine,
	docVendor provider.DocumentProvider,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		stores:    stores,
		processes: processes,
		otps:      otps,
		documents: documents,
		engine:    engine,
		docVendor: docVendor,
		logger:    logger,
	}
}

// NewRouter wires the public API. The onboarding routes run before device
// activation and are unauthenticated; the identity verification routes
// require the activation bearer token.
func NewRouter(h *Handler, authSigningKey []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ClientDevice)

	r.Route("/api/onboarding", func(r chi.Router) {
		r.Post("/start", h.handleOnboardingStart)
		r.Post("/status", h.handleOnboardingStatus)
		r.Post("/otp/resend", h.handleOnboardingOtpResend)
		r.Post("/otp/verify", h.handleOnboardingOtpVerify)
		r.Post("/cleanup", h.handleOnboardingCleanup)
	})

	r.Route("/api/identity", func(r chi.Router) {
		r.Use(middleware.RequireAuth(authSigningKey, h.logger))
		r.Post("/init", h.handleIdentityInit)
		r.Get("/status", h.handleIdentityStatus)
		r.Post("/document/submit", h.handleDocumentSubmit)
		r.Post("/document/sdk-init", h.handleSdkInit)
		r.Post("/presence-check/init", h.handlePresenceCheckInit)
		r.Post("/presence-check/submit", h.handlePresenceCheckSubmit)
		r.Post("/otp/send", h.handleIdentityOtpSend)
		r.Post("/otp/resend", h.handleIdentityOtpResend)
		r.Post("/otp/verify", h.handleIdentityOtpVerify)
		r.Post("/cleanup", h.handleIdentityCleanup)
	})

	return r
}
