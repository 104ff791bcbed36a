package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
)

func TestParseRejectionReasons(t *testing.T) {
	p := NewDocumentProvider(false, []byte("test-key"), zap.NewNop())

	reasons, err := p.ParseRejectionReasons(onboarding.DocumentResult{
		VerificationResult: `{"verificationResult": "rejected"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rejection reason"}, reasons)

	reasons, err = p.ParseRejectionReasons(onboarding.DocumentResult{
		VerificationResult: `{"verificationResult": "data-upload-1"}`,
	})
	require.NoError(t, err)
	assert.Empty(t, reasons)
}

func TestVendorCapabilities(t *testing.T) {
	documents := NewDocumentProvider(false, []byte("test-key"), zap.NewNop())
	assert.True(t, documents.ShouldStoreSelfie())

	presence := NewPresenceProvider(zap.NewNop())
	assert.True(t, presence.ShouldProvideTrustedPhoto())
}
