package statemachine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/otp"
	"onboarding-gateway/internal/onboarding/process"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
)

// Actions bundles the transition actions and their collaborators. Actions
// mutate the flow's verification row; the engine persists it afterwards.
type Actions struct {
	stores    store.Stores
	processes *process.Service
	otps      *otp.Service
	documents provider.DocumentProvider
	presence  provider.PresenceProvider
	features  Features
	auditor   *audit.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewActions(
	stores store.Stores,
	processes *process.Service,
	otps *otp.Service,
	documents provider.DocumentProvider,
	presence provider.PresenceProvider,
	features Features,
	auditor *audit.Publisher,
	logger *zap.Logger,
) *Actions {
	return &Actions{
		stores:    stores,
		processes: processes,
		otps:      otps,
		documents: documents,
		presence:  presence,
		features:  features,
		auditor:   auditor,
		logger:    logger,
		now:       time.Now,
	}
}

// InitVerification creates a fresh identity verification for the process and
// switches the process into the verification stage.
func (a *Actions) InitVerification(ctx context.Context, f *Flow) error {
	now := a.now()
	v := onboarding.IdentityVerification{
		ID:           uuid.NewString(),
		ProcessID:    f.Process.ID,
		ActivationID: f.Process.ActivationID,
		UserID:       f.Process.UserID,
		Phase:        onboarding.PhaseDocumentUpload,
		Status:       onboarding.StatusInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.stores.Verifications.Create(ctx, v); err != nil {
		return err
	}

	p, err := a.processes.MoveToVerification(ctx, f.Process)
	if err != nil {
		return err
	}
	f.Process = p
	f.Verification = v
	f.HasVerification = true

	a.auditor.Emit(ctx, audit.Event{
		ProcessID:              f.Process.ID,
		IdentityVerificationID: v.ID,
		UserID:                 f.Process.UserID,
		Entity:                 audit.EntityIdentityVerification,
		Action:                 "identity_verification_initialized",
	})
	return nil
}

// MoveToUploadVerificationPending marks the upload stage as finished.
func (a *Actions) MoveToUploadVerificationPending(_ context.Context, f *Flow) error {
	f.Verification.Status = onboarding.StatusVerificationPending
	return nil
}

// StartDocumentVerification submits the uploaded document set to the provider
// for verification and applies the immediate outcome.
func (a *Actions) StartDocumentVerification(ctx context.Context, f *Flow) error {
	documents, err := a.stores.Documents.ListUsedForVerification(ctx, f.Verification.ID)
	if err != nil {
		return err
	}
	uploadIDs := make([]string, 0, len(documents))
	for _, d := range documents {
		uploadIDs = append(uploadIDs, d.UploadID)
	}

	result, err := a.documents.VerifyDocuments(ctx, f.Owner, uploadIDs)
	if err != nil {
		return err
	}

	now := a.now()
	documentStatus := documentStatusForResult(result.Status)
	for _, d := range documents {
		d.VerificationID = result.VerificationID
		d.Status = documentStatus
		d.UpdatedAt = now
		if err := a.stores.Documents.Update(ctx, d); err != nil {
			return err
		}
	}

	f.Verification.Phase = onboarding.PhaseDocumentVerification
	a.applyResultStatus(f, result.Status, strings.Join(result.RejectReasons, "; "), result.ErrorDetail)
	return nil
}

// FinalizeDocumentVerification runs the cross-document final verification.
func (a *Actions) FinalizeDocumentVerification(ctx context.Context, f *Flow) error {
	documents, err := a.stores.Documents.ListUsedForVerification(ctx, f.Verification.ID)
	if err != nil {
		return err
	}
	uploadIDs := make([]string, 0, len(documents))
	for _, d := range documents {
		uploadIDs = append(uploadIDs, d.UploadID)
	}

	result, err := a.documents.VerifyDocuments(ctx, f.Owner, uploadIDs)
	if err != nil {
		return err
	}

	f.Verification.Phase = onboarding.PhaseDocumentVerificationFinal
	a.applyResultStatus(f, result.Status, strings.Join(result.RejectReasons, "; "), result.ErrorDetail)
	return nil
}

// InitClientEvaluation moves the verification into the fraud scoring stage.
// The evaluation itself resolves asynchronously through the reconciler.
func (a *Actions) InitClientEvaluation(_ context.Context, f *Flow) error {
	f.Verification.Phase = onboarding.PhaseClientEvaluation
	f.Verification.Status = onboarding.StatusInProgress
	return nil
}

// MoveToPresenceCheckNotInitialized parks the verification until the client
// starts the presence check.
func (a *Actions) MoveToPresenceCheckNotInitialized(_ context.Context, f *Flow) error {
	f.Verification.Phase = onboarding.PhasePresenceCheck
	f.Verification.Status = onboarding.StatusNotInitialized
	return nil
}

// InitPresenceCheck uploads the reference photo to the presence vendor and
// starts a session, storing the session attributes on the row. Vendors that
// source their own reference image skip the photo upload.
func (a *Actions) InitPresenceCheck(ctx context.Context, f *Flow) error {
	var photo provider.Image
	if a.presence.ShouldProvideTrustedPhoto() {
		var err error
		photo, err = a.referencePhoto(ctx, f)
		if err != nil {
			return err
		}
	}
	if err := a.presence.InitPresenceCheck(ctx, f.Owner, photo); err != nil {
		return err
	}
	session, err := a.presence.StartPresenceCheck(ctx, f.Owner)
	if err != nil {
		return err
	}
	encoded, err := provider.EncodeSession(session)
	if err != nil {
		return err
	}
	f.Verification.SessionInfo = encoded
	f.Verification.Status = onboarding.StatusInProgress

	a.auditor.Emit(ctx, audit.Event{
		ProcessID:              f.Process.ID,
		IdentityVerificationID: f.Verification.ID,
		UserID:                 f.Process.UserID,
		Entity:                 audit.EntityIdentityVerification,
		Action:                 "presence_check_initialized",
	})
	return nil
}

// MoveToPresenceVerificationPending records that the client submitted the
// presence check on the device.
func (a *Actions) MoveToPresenceVerificationPending(_ context.Context, f *Flow) error {
	f.Verification.Status = onboarding.StatusVerificationPending
	return nil
}

// EvaluatePresenceResult polls the vendor for the presence check outcome. On
// acceptance the flow continues straight into OTP verification or completion,
// mirroring the branch the feature flags select.
func (a *Actions) EvaluatePresenceResult(ctx context.Context, f *Flow) error {
	session, err := provider.DecodeSession(f.Verification.SessionInfo)
	if err != nil {
		return err
	}
	result, err := a.presence.GetPresenceCheckResult(ctx, f.Owner, session)
	if err != nil {
		return err
	}

	switch result.Status {
	case provider.ResultAccepted:
		if a.documents.ShouldStoreSelfie() {
			if err := a.storeSelfie(ctx, f, result.Photo); err != nil {
				return err
			}
		}
		if a.features.OtpVerificationEnabled {
			return a.SendOtp(ctx, f)
		}
		return a.Finish(ctx, f)
	case provider.ResultInProgress:
		// Not resolved yet; the next tick polls again.
		return nil
	case provider.ResultRejected:
		f.Verification.Status = onboarding.StatusRejected
		f.Verification.RejectReason = result.RejectReason
		f.Verification.ErrorOrigin = onboarding.OriginPresenceCheck
	case provider.ResultFailed:
		f.Verification.Status = onboarding.StatusFailed
		f.Verification.ErrorDetail = result.ErrorDetail
		f.Verification.ErrorOrigin = onboarding.OriginPresenceCheck
	}
	return nil
}

// SendOtp issues a fresh user verification code and parks the flow waiting
// for it. Delivery runs out of band; only the issuance is recorded here.
func (a *Actions) SendOtp(ctx context.Context, f *Flow) error {
	f.Verification.Phase = onboarding.PhaseOtpVerification
	f.Verification.Status = onboarding.StatusVerificationPending

	if _, err := a.otps.Generate(ctx, f.Process, onboarding.OtpTypeUserVerification); err != nil {
		return err
	}
	a.auditor.Emit(ctx, audit.Event{
		ProcessID:              f.Process.ID,
		IdentityVerificationID: f.Verification.ID,
		UserID:                 f.Process.UserID,
		Entity:                 audit.EntityOtp,
		Action:                 "otp_sent",
	})
	return nil
}

// ResendOtp invalidates the previous code and issues a new one, within the
// resend window limits.
func (a *Actions) ResendOtp(ctx context.Context, f *Flow) error {
	if _, err := a.otps.Resend(ctx, f.Process, onboarding.OtpTypeUserVerification); err != nil {
		return err
	}
	return nil
}

// Finish completes the verification and the process.
func (a *Actions) Finish(ctx context.Context, f *Flow) error {
	f.Verification.Phase = onboarding.PhaseCompleted
	f.Verification.Status = onboarding.StatusAccepted

	p, err := a.processes.Finish(ctx, f.Process)
	if err != nil {
		return err
	}
	f.Process = p

	if a.features.PresenceCheckEnabled {
		if err := a.presence.CleanupIdentityData(ctx, f.Owner); err != nil {
			a.logger.Warn("presence identity data cleanup failed",
				zap.String("process_id", f.Process.ID), zap.Error(err))
		}
	}
	return nil
}

// storeSelfie submits the person photo from an accepted presence check to the
// document vendor and keeps it as a selfie document. The selfie never joins
// the document set used for verification.
func (a *Actions) storeSelfie(ctx context.Context, f *Flow, photo provider.Image) error {
	if len(photo.Data) == 0 {
		return fmt.Errorf("missing person photo from presence verification for process %s", f.Process.ID)
	}

	submitted := provider.SubmittedDocument{
		DocumentID: truncate("selfie-photo-"+f.Process.ActivationID, 36),
		Type:       onboarding.DocumentSelfiePhoto,
		Photo:      photo,
	}
	result, err := a.documents.SubmitDocuments(ctx, f.Owner, []provider.SubmittedDocument{submitted})
	if err != nil {
		return err
	}

	now := a.now()
	d := onboarding.DocumentVerification{
		ID:                     uuid.NewString(),
		IdentityVerificationID: f.Verification.ID,
		Type:                   onboarding.DocumentSelfiePhoto,
		Status:                 onboarding.DocumentVerificationPending,
		UsedForVerification:    false,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if len(result.Results) > 0 {
		r := result.Results[0]
		d.UploadID = r.UploadID
		if r.ErrorDetail != "" {
			d.Status = onboarding.DocumentFailed
			d.ErrorDetail = r.ErrorDetail
			d.ErrorOrigin = onboarding.OriginPresenceCheck
		}
	}
	return a.stores.Documents.Create(ctx, d)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// referencePhoto fetches the extracted document photo used as the presence
// check reference.
func (a *Actions) referencePhoto(ctx context.Context, f *Flow) (provider.Image, error) {
	documents, err := a.stores.Documents.ListUsedForVerification(ctx, f.Verification.ID)
	if err != nil {
		return provider.Image{}, err
	}
	for _, d := range documents {
		if d.PhotoID != "" {
			return a.documents.GetPhoto(ctx, d.PhotoID)
		}
	}
	return provider.Image{}, fmt.Errorf("no document photo available for verification %s", f.Verification.ID)
}

// applyResultStatus maps a provider outcome onto the verification row.
func (a *Actions) applyResultStatus(f *Flow, status provider.ResultStatus, rejectReason, errorDetail string) {
	switch status {
	case provider.ResultAccepted:
		f.Verification.Status = onboarding.StatusAccepted
	case provider.ResultInProgress:
		f.Verification.Status = onboarding.StatusInProgress
	case provider.ResultRejected:
		f.Verification.Status = onboarding.StatusRejected
		f.Verification.RejectReason = rejectReason
		f.Verification.ErrorOrigin = onboarding.OriginDocumentVerification
	case provider.ResultFailed:
		f.Verification.Status = onboarding.StatusFailed
		f.Verification.ErrorDetail = errorDetail
		f.Verification.ErrorOrigin = onboarding.OriginDocumentVerification
	}
}

func documentStatusForResult(status provider.ResultStatus) onboarding.DocumentStatus {
	switch status {
	case provider.ResultAccepted:
		return onboarding.DocumentAccepted
	case provider.ResultRejected:
		return onboarding.DocumentRejected
	case provider.ResultFailed:
		return onboarding.DocumentFailed
	default:
		return onboarding.DocumentVerificationInProgress
	}
}
