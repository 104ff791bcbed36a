// Package mock provides in-process vendor implementations driven by document
// filenames. They back local development and tests; outcomes are deterministic
// so scenarios can steer rejections through crafted filenames.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/provider"
)

const sdkInitResponseKey = "sdk-init-response"

var documentTypesWithExtractedPhoto = []onboarding.DocumentType{
	onboarding.DocumentIDCard,
	onboarding.DocumentPassport,
	onboarding.DocumentDrivingLicense,
}

// DocumentProvider simulates a document verification vendor. When Async is
// set, submissions and verifications resolve on a later poll instead of
// immediately, which exercises the reconciliation path.
type DocumentProvider struct {
	Async        bool
	SigningKey   []byte
	logger       *zap.Logger
	mu           sync.Mutex
	submitted    map[string]provider.DocumentSubmitResult // by upload id
	verification map[string][]string                      // verification id -> upload ids
}

func NewDocumentProvider(async bool, signingKey []byte, logger *zap.Logger) *DocumentProvider {
	logger.Warn("using mocked document verification provider")
	return &DocumentProvider{
		Async:        async,
		SigningKey:   signingKey,
		logger:       logger,
		submitted:    make(map[string]provider.DocumentSubmitResult),
		verification: make(map[string][]string),
	}
}

func (p *DocumentProvider) SubmitDocuments(_ context.Context, owner provider.Owner, documents []provider.SubmittedDocument) (provider.DocumentsSubmitResult, error) {
	result := provider.DocumentsSubmitResult{}
	for _, doc := range documents {
		if hasExtractedPhoto(doc.Type) {
			result.ExtractedPhotoID = "extracted-photo-id"
		}
		submitResult := p.toSubmitResult(doc)
		result.Results = append(result.Results, submitResult)

		p.mu.Lock()
		p.submitted[submitResult.UploadID] = submitResult
		p.mu.Unlock()
	}
	p.logger.Info("mock submitted documents",
		zap.Int("count", len(documents)), zap.Bool("async", p.Async),
		zap.String("owner", owner.String()))
	return result, nil
}

func (p *DocumentProvider) CheckDocumentUpload(_ context.Context, owner provider.Owner, document onboarding.DocumentVerification) (provider.DocumentsSubmitResult, error) {
	result := provider.DocumentsSubmitResult{}
	if hasExtractedPhoto(document.Type) {
		result.ExtractedPhotoID = "extracted-photo-id"
	}

	p.mu.Lock()
	submitResult, ok := p.submitted[document.UploadID]
	p.mu.Unlock()
	if ok {
		if submitResult.ExtractedData == "" && submitResult.RejectReason == "" {
			submitResult.ExtractedData = fmt.Sprintf(`{"extracted": {"data": %q}}`, document.UploadID)
		}
		result.Results = []provider.DocumentSubmitResult{submitResult}
	}

	p.logger.Info("mock check document upload", zap.String("owner", owner.String()))
	return result, nil
}

func (p *DocumentProvider) VerifyDocuments(_ context.Context, owner provider.Owner, uploadIDs []string) (provider.DocumentsVerificationResult, error) {
	verificationID := uuid.NewString()

	p.mu.Lock()
	p.verification[verificationID] = append([]string{}, uploadIDs...)
	p.mu.Unlock()

	var result provider.DocumentsVerificationResult
	if p.Async {
		result = provider.DocumentsVerificationResult{
			VerificationID: verificationID,
			Status:         provider.ResultInProgress,
		}
	} else {
		result = successfulVerificationResult(verificationID, uploadIDs)
	}

	p.logger.Info("mock verifying documents",
		zap.Strings("upload_ids", uploadIDs), zap.Bool("async", p.Async),
		zap.String("owner", owner.String()))
	return result, nil
}

func (p *DocumentProvider) GetVerificationResult(_ context.Context, owner provider.Owner, verificationID string) (provider.DocumentsVerificationResult, error) {
	p.mu.Lock()
	uploadIDs, ok := p.verification[verificationID]
	p.mu.Unlock()

	if !ok {
		return provider.DocumentsVerificationResult{
			VerificationID: verificationID,
			Status:         provider.ResultFailed,
			ErrorDetail:    "not existing verificationId: " + verificationID,
		}, nil
	}

	p.logger.Info("mock getting verification result",
		zap.String("verification_id", verificationID), zap.String("owner", owner.String()))
	return successfulVerificationResult(verificationID, uploadIDs), nil
}

func (p *DocumentProvider) GetPhoto(_ context.Context, photoID string) (provider.Image, error) {
	p.logger.Info("mock getting photo", zap.String("photo_id", photoID))
	return provider.Image{Filename: "id_photo.jpg", Data: []byte("mock-photo")}, nil
}

// ParseRejectionReasons reads the mock's raw result payload. Anything carrying
// a "rejected" marker yields the single canned reason.
func (p *DocumentProvider) ParseRejectionReasons(result onboarding.DocumentResult) ([]string, error) {
	if strings.Contains(result.VerificationResult, "rejected") {
		return []string{"Rejection reason"}, nil
	}
	return nil, nil
}

func (p *DocumentProvider) ShouldStoreSelfie() bool {
	return true
}

func (p *DocumentProvider) CleanupDocuments(_ context.Context, owner provider.Owner, uploadIDs []string) error {
	p.mu.Lock()
	for _, id := range uploadIDs {
		delete(p.submitted, id)
	}
	p.mu.Unlock()
	p.logger.Info("mock cleaned up documents",
		zap.Strings("upload_ids", uploadIDs), zap.String("owner", owner.String()))
	return nil
}

// InitVerificationSDK hands the client a short-lived signed token carrying the
// init attributes, the way a real vendor SDK handshake would.
func (p *DocumentProvider) InitVerificationSDK(_ context.Context, owner provider.Owner, initAttributes map[string]string) (provider.SdkInfo, error) {
	claims := jwt.MapClaims{
		"sub": owner.ProcessID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}
	for k, v := range initAttributes {
		claims["attr_"+k] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.SigningKey)
	if err != nil {
		return provider.SdkInfo{}, fmt.Errorf("sign sdk init token: %w", err)
	}
	p.logger.Info("mock initialized verification sdk", zap.String("owner", owner.String()))
	return provider.SdkInfo{Attributes: map[string]string{sdkInitResponseKey: token}}, nil
}

func (p *DocumentProvider) toSubmitResult(doc provider.SubmittedDocument) provider.DocumentSubmitResult {
	docID := doc.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	uploadID := docID
	if !strings.HasPrefix(docID, "upload") {
		uploadID = truncate("uploaded-"+docID, 36)
	}
	result := provider.DocumentSubmitResult{
		DocumentID:       docID,
		UploadID:         uploadID,
		ValidationResult: fmt.Sprintf(`{"validationResult": {"data": %q}}`, docID),
	}
	if p.Async {
		return result
	}
	filename := strings.ToLower(doc.Photo.Filename)
	switch {
	case strings.Contains(filename, "random"):
		// No data extracted; the document stays unreadable.
	case doc.Side != "" && !strings.Contains(filename, strings.ToLower(string(doc.Side))):
		result.RejectReason = "Different document side than expected"
	case doc.Type != "" && doc.Type != onboarding.DocumentSelfiePhoto && !strings.Contains(filename, strings.ToLower(string(doc.Type))):
		result.RejectReason = "Different document type than expected"
	default:
		result.ExtractedData = fmt.Sprintf(`{"extracted": {"data": %q}}`, docID)
	}
	return result
}

func successfulVerificationResult(verificationID string, uploadIDs []string) provider.DocumentsVerificationResult {
	result := provider.DocumentsVerificationResult{
		VerificationID: verificationID,
		Status:         provider.ResultAccepted,
	}
	for _, uploadID := range uploadIDs {
		result.Results = append(result.Results, provider.DocumentVerificationResult{
			UploadID:           uploadID,
			ExtractedData:      fmt.Sprintf(`{"extracted": "data-%s"}`, uploadID),
			VerificationResult: fmt.Sprintf(`{"verificationResult": "data-%s"}`, uploadID),
		})
	}
	return result
}

func hasExtractedPhoto(t onboarding.DocumentType) bool {
	for _, candidate := range documentTypesWithExtractedPhoto {
		if t == candidate {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
