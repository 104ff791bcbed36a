package jobs

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/provider"
)

// CheckDocumentSubmits polls the provider for documents whose upload has not
// resolved yet, in submission order.
func (j *Jobs) CheckDocumentSubmits(ctx context.Context) error {
	documents, err := j.stores.Documents.ListByStatus(ctx, onboarding.DocumentUploadInProgress)
	if err != nil {
		return err
	}
	for _, d := range documents {
		v, err := j.stores.Verifications.FindByID(ctx, d.IdentityVerificationID)
		if err != nil {
			j.rowFailed(LockDocumentSubmitCheck, err, zap.String("document_id", d.ID))
			continue
		}
		result, err := j.documents.CheckDocumentUpload(ctx, ownerOf(v), d)
		if err != nil {
			j.rowFailed(LockDocumentSubmitCheck, err, zap.String("document_id", d.ID))
			continue
		}
		if len(result.Results) == 0 {
			// The provider has not processed the upload yet.
			continue
		}
		j.applySubmitResult(ctx, &d, result.Results[0], result.ExtractedPhotoID)
		j.nudge(ctx, v.ProcessID)
	}
	return nil
}

// CheckSubmitVerifications resolves per-submission verifications the provider
// runs while the identity verification is still in the upload stage. Results
// are applied to every document sharing the remote verification and a
// snapshot is kept per document.
func (j *Jobs) CheckSubmitVerifications(ctx context.Context) error {
	documents, err := j.stores.Documents.ListByStatus(ctx, onboarding.DocumentVerificationInProgress)
	if err != nil {
		return err
	}

	batches := make(map[string][]onboarding.DocumentVerification)
	order := make([]string, 0)
	for _, d := range documents {
		v, err := j.stores.Verifications.FindByID(ctx, d.IdentityVerificationID)
		if err != nil {
			j.rowFailed(LockDocumentSubmitVerifications, err, zap.String("document_id", d.ID))
			continue
		}
		// Set-level verifications in later phases belong to the document
		// verification job.
		if v.Phase != onboarding.PhaseDocumentUpload || d.VerificationID == "" {
			continue
		}
		if _, seen := batches[d.VerificationID]; !seen {
			order = append(order, d.VerificationID)
		}
		batches[d.VerificationID] = append(batches[d.VerificationID], d)
	}

	for _, verificationID := range order {
		batch := batches[verificationID]
		v, err := j.stores.Verifications.FindByID(ctx, batch[0].IdentityVerificationID)
		if err != nil {
			j.rowFailed(LockDocumentSubmitVerifications, err, zap.String("verification_id", verificationID))
			continue
		}
		result, err := j.documents.GetVerificationResult(ctx, ownerOf(v), verificationID)
		if err != nil {
			j.rowFailed(LockDocumentSubmitVerifications, err, zap.String("verification_id", verificationID))
			continue
		}
		if result.Status == provider.ResultInProgress {
			continue
		}
		j.applyVerificationToBatch(ctx, batch, result, onboarding.PhaseDocumentUpload)
		j.nudge(ctx, v.ProcessID)
	}
	return nil
}

// applySubmitResult moves one document out of the upload stage based on the
// provider's submission outcome.
func (j *Jobs) applySubmitResult(ctx context.Context, d *onboarding.DocumentVerification, r provider.DocumentSubmitResult, extractedPhotoID string) {
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
	case r.ExtractedData == "":
		// Nothing extracted yet; checked again next tick.
		return
	default:
		d.Status = onboarding.DocumentVerificationPending
	}
	d.UpdatedAt = j.now()
	if err := j.stores.Documents.Update(ctx, *d); err != nil {
		j.rowFailed(LockDocumentSubmitCheck, err, zap.String("document_id", d.ID))
		return
	}
	j.snapshotResult(ctx, onboarding.DocumentResult{
		DocumentVerificationID: d.ID,
		Phase:                  onboarding.PhaseDocumentUpload,
		ExtractedData:          r.ExtractedData,
		VerificationResult:     r.ValidationResult,
		ErrorDetail:            r.ErrorDetail,
	})
}

// applyVerificationToBatch writes a resolved provider verification onto every
// document of the batch, matching per-document results by upload id.
func (j *Jobs) applyVerificationToBatch(ctx context.Context, batch []onboarding.DocumentVerification, result provider.DocumentsVerificationResult, phase onboarding.Phase) {
	perUpload := make(map[string]provider.DocumentVerificationResult, len(result.Results))
	for _, r := range result.Results {
		perUpload[r.UploadID] = r
	}

	for _, d := range batch {
		r := perUpload[d.UploadID]
		snapshot := onboarding.DocumentResult{
			DocumentVerificationID: d.ID,
			Phase:                  phase,
			ExtractedData:          r.ExtractedData,
			VerificationResult:     r.VerificationResult,
			ErrorDetail:            firstNonEmpty(r.ErrorDetail, result.ErrorDetail),
		}
		switch result.Status {
		case provider.ResultAccepted:
			if phase == onboarding.PhaseDocumentUpload {
				// Cleared for the set-level verification.
				d.Status = onboarding.DocumentVerificationPending
			} else {
				d.Status = onboarding.DocumentAccepted
			}
		case provider.ResultRejected:
			snapshot.RejectReasons = j.rejectionReasons(snapshot, result)
			d.Status = onboarding.DocumentRejected
			d.RejectReason = firstNonEmpty(r.RejectReason, joinReasons(snapshot.RejectReasons))
			d.ErrorOrigin = onboarding.OriginDocumentVerification
		case provider.ResultFailed:
			d.Status = onboarding.DocumentFailed
			d.ErrorDetail = snapshot.ErrorDetail
			d.ErrorOrigin = onboarding.OriginDocumentVerification
		}
		d.UpdatedAt = j.now()
		if err := j.stores.Documents.Update(ctx, d); err != nil {
			j.rowFailed(LockDocumentSubmitVerifications, err, zap.String("document_id", d.ID))
			continue
		}
		j.snapshotResult(ctx, snapshot)
	}
}

// rejectionReasons asks the vendor to interpret the raw payload of a rejected
// result. The set-level reasons serve as fallback when the payload carries
// none or cannot be parsed.
func (j *Jobs) rejectionReasons(snapshot onboarding.DocumentResult, result provider.DocumentsVerificationResult) []string {
	reasons, err := j.documents.ParseRejectionReasons(snapshot)
	if err != nil {
		j.logger.Warn("rejection reason parsing failed",
			zap.String("document_id", snapshot.DocumentVerificationID), zap.Error(err))
		return result.RejectReasons
	}
	if len(reasons) == 0 {
		return result.RejectReasons
	}
	return reasons
}

// snapshotResult keeps an immutable record of the provider outcome.
func (j *Jobs) snapshotResult(ctx context.Context, snapshot onboarding.DocumentResult) {
	snapshot.ID = uuid.NewString()
	snapshot.CreatedAt = j.now()
	if err := j.stores.Results.Create(ctx, snapshot); err != nil {
		j.logger.Error("document result snapshot failed",
			zap.String("document_id", snapshot.DocumentVerificationID), zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
