package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"onboarding-gateway/internal/onboarding"
)

func doc(t onboarding.DocumentType, side onboarding.CardSide, status onboarding.DocumentStatus) onboarding.DocumentVerification {
	return onboarding.DocumentVerification{Type: t, Side: side, Status: status}
}

func accepted(t onboarding.DocumentType, side onboarding.CardSide) onboarding.DocumentVerification {
	return doc(t, side, onboarding.DocumentAccepted)
}

func TestRequiredDocumentsPresent(t *testing.T) {
	tests := []struct {
		name      string
		documents []onboarding.DocumentVerification
		want      bool
	}{
		{
			name: "id card both sides and driving licence",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentIDCard, onboarding.SideFront),
				accepted(onboarding.DocumentIDCard, onboarding.SideBack),
				accepted(onboarding.DocumentDrivingLicense, ""),
			},
			want: true,
		},
		{
			name: "passport and driving licence",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentPassport, ""),
				accepted(onboarding.DocumentDrivingLicense, ""),
			},
			want: true,
		},
		{
			name: "passport and id card both sides",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentPassport, ""),
				accepted(onboarding.DocumentIDCard, onboarding.SideFront),
				accepted(onboarding.DocumentIDCard, onboarding.SideBack),
			},
			want: true,
		},
		{
			name: "id card missing back side",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentIDCard, onboarding.SideFront),
				accepted(onboarding.DocumentDrivingLicense, ""),
			},
			want: false,
		},
		{
			name: "single document type only",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentPassport, ""),
			},
			want: false,
		},
		{
			name: "driving licence alone has no primary document",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentDrivingLicense, ""),
			},
			want: false,
		},
		{
			name: "rejected documents do not count",
			documents: []onboarding.DocumentVerification{
				accepted(onboarding.DocumentIDCard, onboarding.SideFront),
				doc(onboarding.DocumentIDCard, onboarding.SideBack, onboarding.DocumentRejected),
				accepted(onboarding.DocumentDrivingLicense, ""),
			},
			want: false,
		},
		{
			name: "pending documents do not count",
			documents: []onboarding.DocumentVerification{
				doc(onboarding.DocumentPassport, "", onboarding.DocumentVerificationPending),
				accepted(onboarding.DocumentDrivingLicense, ""),
			},
			want: false,
		},
		{
			name:      "no documents",
			documents: nil,
			want:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredDocumentsPresent(tt.documents))
		})
	}
}
