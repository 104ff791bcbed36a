package document

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
	providermock "onboarding-gateway/internal/provider/mock"
)

type DocumentSuite struct {
	suite.Suite
	ctx     context.Context
	stores  store.Stores
	service *Service
	owner   provider.Owner
}

func TestDocumentSuite(t *testing.T) {
	suite.Run(t, new(DocumentSuite))
}

func (s *DocumentSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores = store.NewMemory().Stores()
	logger := zap.NewNop()
	s.service = New(s.stores, providermock.NewDocumentProvider(false, []byte("test-key"), logger), nil, logger)
	s.owner = provider.Owner{ProcessID: uuid.NewString(), ActivationID: uuid.NewString(), UserID: "user-1"}
}

func (s *DocumentSuite) TestSubmitAcceptsMatchingDocuments() {
	v := s.givenVerification(onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)

	created, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "id_card_front.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("front")},
		{Filename: "id_card_back.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideBack, Data: []byte("back")},
	})

	s.Require().NoError(err)
	s.Require().Len(created, 2)
	for _, d := range created {
		s.Equal(onboarding.DocumentVerificationPending, d.Status)
		s.NotEmpty(d.UploadID)
		s.True(d.UsedForVerification)
	}
	// Front and back of the same card are linked both ways.
	s.Equal(created[1].ID, created[0].OtherSideID)
	s.Equal(created[0].ID, created[1].OtherSideID)

	filename, data, err := s.stores.DocumentData.Find(s.ctx, created[0].ID)
	s.Require().NoError(err)
	s.Equal("id_card_front.jpg", filename)
	s.Equal([]byte("front"), data)
}

func (s *DocumentSuite) TestSubmitRejectsWrongSide() {
	v := s.givenVerification(onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)

	created, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "id_card_back.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("x")},
	})

	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(onboarding.DocumentRejected, created[0].Status)
	s.NotEmpty(created[0].RejectReason)
	s.Equal(onboarding.OriginDocumentVerification, created[0].ErrorOrigin)
}

func (s *DocumentSuite) TestSubmitLeavesUnreadableUploadInProgress() {
	v := s.givenVerification(onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)

	created, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "random.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("x")},
	})

	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(onboarding.DocumentUploadInProgress, created[0].Status)
}

func (s *DocumentSuite) TestSubmitOutsideUploadStage() {
	v := s.givenVerification(onboarding.PhaseDocumentVerification, onboarding.StatusInProgress)

	_, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "id_card_front.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("x")},
	})

	s.ErrorIs(err, ErrNotUploadStage)
}

func (s *DocumentSuite) TestResubmitSupersedesPreviousUpload() {
	v := s.givenVerification(onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)

	first, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "id_card_front.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("one")},
	})
	s.Require().NoError(err)
	second, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "id_card_front.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("two")},
	})
	s.Require().NoError(err)

	s.Equal(first[0].ID, second[0].OriginalDocumentID)

	previous, err := s.stores.Documents.FindByID(s.ctx, first[0].ID)
	s.Require().NoError(err)
	s.False(previous.UsedForVerification)

	used, err := s.stores.Documents.ListUsedForVerification(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Require().Len(used, 1)
	s.Equal(second[0].ID, used[0].ID)
}

func (s *DocumentSuite) TestCleanupRetiresAllDocuments() {
	v := s.givenVerification(onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)
	created, err := s.service.Submit(s.ctx, s.owner, v, []SubmitRequest{
		{Filename: "id_card_front.jpg", Type: onboarding.DocumentIDCard, Side: onboarding.SideFront, Data: []byte("x")},
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Cleanup(s.ctx, s.owner, v.ID))

	d, err := s.stores.Documents.FindByID(s.ctx, created[0].ID)
	s.Require().NoError(err)
	s.False(d.UsedForVerification)

	used, err := s.stores.Documents.ListUsedForVerification(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Empty(used)
}

func (s *DocumentSuite) givenVerification(phase onboarding.Phase, status onboarding.VerificationStatus) onboarding.IdentityVerification {
	now := time.Now()
	v := onboarding.IdentityVerification{
		ID:        uuid.NewString(),
		ProcessID: s.owner.ProcessID,
		UserID:    s.owner.UserID,
		Phase:     phase,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.stores.Verifications.Create(s.ctx, v))
	return v
}
