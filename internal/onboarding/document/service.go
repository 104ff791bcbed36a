// Package document handles document submission: persisting uploads, handing
// them to the verification vendor and applying the immediate outcome.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
)

// ErrNotUploadStage is returned when documents arrive outside the upload
// stage of the identity verification.
var ErrNotUploadStage = errors.New("identity verification does not accept documents")

// SubmitRequest is one document side uploaded by the client.
type SubmitRequest struct {
	Filename string
	Type     onboarding.DocumentType
	Side     onboarding.CardSide
	Data     []byte
}

// Service persists and submits uploaded documents.
type Service struct {
	stores   store.Stores
	provider provider.DocumentProvider
	auditor  *audit.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func New(stores store.Stores, documentProvider provider.DocumentProvider, auditor *audit.Publisher, logger *zap.Logger) *Service {
	return &Service{
		stores:   stores,
		provider: documentProvider,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit stores the uploaded documents, supersedes any earlier upload of the
// same type and side, and hands the batch to the provider. With a synchronous
// provider the submission outcome lands on the rows immediately; otherwise
// the rows stay in upload progress for the reconciliation job.
func (s *Service) Submit(ctx context.Context, owner provider.Owner, v onboarding.IdentityVerification, requests []SubmitRequest) ([]onboarding.DocumentVerification, error) {
	if v.Phase != onboarding.PhaseDocumentUpload || v.Status != onboarding.StatusInProgress {
		return nil, ErrNotUploadStage
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("no documents submitted")
	}

	now := s.now()
	created := make([]onboarding.DocumentVerification, 0, len(requests))
	submitted := make([]provider.SubmittedDocument, 0, len(requests))
	for _, request := range requests {
		d := onboarding.DocumentVerification{
			ID:                     uuid.NewString(),
			IdentityVerificationID: v.ID,
			Type:                   request.Type,
			Side:                   request.Side,
			Status:                 onboarding.DocumentUploadInProgress,
			UsedForVerification:    true,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := s.supersedePrevious(ctx, v.ID, &d); err != nil {
			return nil, err
		}
		if err := s.stores.Documents.Create(ctx, d); err != nil {
			return nil, err
		}
		if err := s.stores.DocumentData.Save(ctx, d.ID, request.Filename, request.Data); err != nil {
			return nil, err
		}
		created = append(created, d)
		submitted = append(submitted, provider.SubmittedDocument{
			DocumentID: d.ID,
			Type:       d.Type,
			Side:       d.Side,
			Photo:      provider.Image{Filename: request.Filename, Data: request.Data},
		})
	}
	linkCardSides(created)

	result, err := s.provider.SubmitDocuments(ctx, owner, submitted)
	if err != nil {
		return nil, err
	}
	perDocument := make(map[string]provider.DocumentSubmitResult, len(result.Results))
	for _, r := range result.Results {
		perDocument[r.DocumentID] = r
	}

	for i := range created {
		d := &created[i]
		s.applySubmitResult(d, perDocument[d.ID], result.ExtractedPhotoID)
		d.UpdatedAt = s.now()
		if err := s.stores.Documents.Update(ctx, *d); err != nil {
			return nil, err
		}
	}

	s.auditor.Emit(ctx, audit.Event{
		ProcessID:              v.ProcessID,
		IdentityVerificationID: v.ID,
		UserID:                 v.UserID,
		Entity:                 audit.EntityDocumentVerification,
		Action:                 "documents_submitted",
		Detail:                 fmt.Sprintf("count: %d", len(created)),
	})
	return created, nil
}

// Cleanup disposes the documents of the verification at the provider and
// marks them unused, so a fresh upload can start over.
func (s *Service) Cleanup(ctx context.Context, owner provider.Owner, verificationID string) error {
	documents, err := s.stores.Documents.ListUsedForVerification(ctx, verificationID)
	if err != nil {
		return err
	}
	uploadIDs := make([]string, 0, len(documents))
	for _, d := range documents {
		if d.UploadID != "" {
			uploadIDs = append(uploadIDs, d.UploadID)
		}
	}
	if len(uploadIDs) > 0 {
		if err := s.provider.CleanupDocuments(ctx, owner, uploadIDs); err != nil {
			return err
		}
	}
	now := s.now()
	for _, d := range documents {
		d.UsedForVerification = false
		d.UpdatedAt = now
		if err := s.stores.Documents.Update(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// supersedePrevious retires an earlier upload of the same type and side and
// links the replacement to it.
func (s *Service) supersedePrevious(ctx context.Context, verificationID string, d *onboarding.DocumentVerification) error {
	existing, err := s.stores.Documents.ListUsedForVerification(ctx, verificationID)
	if err != nil {
		return err
	}
	for _, previous := range existing {
		if previous.Type != d.Type || previous.Side != d.Side {
			continue
		}
		previous.UsedForVerification = false
		previous.UpdatedAt = s.now()
		if err := s.stores.Documents.Update(ctx, previous); err != nil {
			return err
		}
		d.OriginalDocumentID = previous.ID
		s.logger.Info("superseded document upload",
			zap.String("document_id", previous.ID), zap.String("replacement_id", d.ID))
	}
	return nil
}

func (s *Service) applySubmitResult(d *onboarding.DocumentVerification, r provider.DocumentSubmitResult, extractedPhotoID string) {
	if r.UploadID != "" {
		d.UploadID = r.UploadID
	}
	if d.PhotoID == "" && extractedPhotoID != "" {
		d.PhotoID = extractedPhotoID
	}
	switch {
	case r.ErrorDetail != "":
		d.Status = onboarding.DocumentFailed
		d.ErrorDetail = r.ErrorDetail
		d.ErrorOrigin = onboarding.OriginDocumentVerification
	case r.RejectReason != "":
		d.Status = onboarding.DocumentRejected
		d.RejectReason = r.RejectReason
		d.ErrorOrigin = onboarding.OriginDocumentVerification
	case r.ExtractedData != "":
		d.Status = onboarding.DocumentVerificationPending
	}
	// Otherwise the upload is still being processed by the provider and the
	// submit check job resolves it.
}

// linkCardSides pairs the front and back of the same physical card uploaded
// in one batch.
func linkCardSides(documents []onboarding.DocumentVerification) {
	byType := make(map[onboarding.DocumentType][]*onboarding.DocumentVerification)
	for i := range documents {
		d := &documents[i]
		if d.Side == "" {
			continue
		}
		byType[d.Type] = append(byType[d.Type], d)
	}
	for _, sides := range byType {
		if len(sides) != 2 || sides[0].Side == sides[1].Side {
			continue
		}
		sides[0].OtherSideID = sides[1].ID
		sides[1].OtherSideID = sides[0].ID
	}
}
