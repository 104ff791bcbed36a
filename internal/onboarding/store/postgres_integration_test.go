//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	stores Stores
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := new(PostgresStoreSuite)
	s.ctx = context.Background()

	pg := containers.NewPostgresContainer(t)
	if err := EnsureSchema(s.ctx, pg.DB); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	s.stores = PostgresStores(pg.DB)

	suite.Run(t, s)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) TestProcessRoundtrip() {
	p := s.givenProcess("user-roundtrip")

	found, err := s.stores.Processes.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.UserID, found.UserID)
	s.Equal(onboarding.ProcessActivationInProgress, found.Status)
	s.Nil(found.FinishedAt)

	found.Status = onboarding.ProcessVerificationInProgress
	found.ErrorScore = 3
	found.UpdatedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.stores.Processes.Update(s.ctx, found))

	updated, err := s.stores.Processes.FindByActivationID(s.ctx, p.ActivationID)
	s.Require().NoError(err)
	s.Equal(onboarding.ProcessVerificationInProgress, updated.Status)
	s.Equal(3, updated.ErrorScore)
}

func (s *PostgresStoreSuite) TestProcessNotFound() {
	_, err := s.stores.Processes.FindByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, onboarding.ErrProcessNotFound)

	missing := onboarding.Process{ID: uuid.NewString(), Status: onboarding.ProcessFailed, UpdatedAt: s.now}
	s.ErrorIs(s.stores.Processes.Update(s.ctx, missing), onboarding.ErrProcessNotFound)
}

func (s *PostgresStoreSuite) TestProcessDailyCount() {
	userID := "user-" + uuid.NewString()
	for i := 0; i < 3; i++ {
		p := s.newProcess(userID)
		p.CreatedAt = s.now.Add(time.Duration(i) * time.Hour)
		s.Require().NoError(s.stores.Processes.Create(s.ctx, p))
	}

	n, err := s.stores.Processes.CountByUserCreatedAfter(s.ctx, userID, s.now.Add(30*time.Minute))
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *PostgresStoreSuite) TestProcessTerminateSkipsTerminalRows() {
	active := s.givenProcess("user-terminate")
	finished := s.newProcess("user-terminate")
	finished.Status = onboarding.ProcessFinished
	s.Require().NoError(s.stores.Processes.Create(s.ctx, finished))

	n, err := s.stores.Processes.Terminate(s.ctx, []string{active.ID, finished.ID}, s.now,
		onboarding.ErrorProcessExpiredOnboarding, onboarding.OriginCleaning)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	p, err := s.stores.Processes.FindByID(s.ctx, active.ID)
	s.Require().NoError(err)
	s.Equal(onboarding.ProcessFailed, p.Status)
	s.Equal(onboarding.ErrorProcessExpiredOnboarding, p.ErrorDetail)
	s.NotNil(p.FailedAt)

	p, err = s.stores.Processes.FindByID(s.ctx, finished.ID)
	s.Require().NoError(err)
	s.Equal(onboarding.ProcessFinished, p.Status)
}

func (s *PostgresStoreSuite) TestVerificationNewestWins() {
	p := s.givenProcess("user-verification")
	s.givenVerification(p.ID, onboarding.PhaseCompleted, onboarding.StatusFailed, s.now)
	newest := s.givenVerification(p.ID, onboarding.PhaseDocumentUpload, onboarding.StatusInProgress, s.now.Add(time.Minute))

	v, err := s.stores.Verifications.FindNewestByProcessID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(newest.ID, v.ID)

	all, err := s.stores.Verifications.ListByProcessID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresStoreSuite) TestVerificationListByPhaseStatus() {
	p := s.givenProcess("user-pairs")
	match := s.givenVerification(p.ID, onboarding.PhaseClientEvaluation, onboarding.StatusAccepted, s.now)
	s.givenVerification(p.ID, onboarding.PhaseClientEvaluation, onboarding.StatusInProgress, s.now.Add(time.Second))

	out, err := s.stores.Verifications.ListByPhaseStatus(s.ctx, []PhaseStatus{
		{Phase: onboarding.PhaseClientEvaluation, Status: onboarding.StatusAccepted},
		{Phase: onboarding.PhasePresenceCheck, Status: onboarding.StatusNotInitialized},
	})
	s.Require().NoError(err)

	ids := make([]string, 0, len(out))
	for _, v := range out {
		ids = append(ids, v.ID)
	}
	s.Contains(ids, match.ID)
	for _, v := range out {
		s.NotEqual(onboarding.StatusInProgress, v.Status)
	}
}

func (s *PostgresStoreSuite) TestDocumentRoundtripAndTerminate() {
	p := s.givenProcess("user-documents")
	v := s.givenVerification(p.ID, onboarding.PhaseDocumentUpload, onboarding.StatusInProgress, s.now)

	d := onboarding.DocumentVerification{
		ID:                     uuid.NewString(),
		IdentityVerificationID: v.ID,
		Type:                   onboarding.DocumentIDCard,
		Side:                   onboarding.SideFront,
		Status:                 onboarding.DocumentUploadInProgress,
		UsedForVerification:    true,
		CreatedAt:              s.now,
		UpdatedAt:              s.now,
	}
	s.Require().NoError(s.stores.Documents.Create(s.ctx, d))

	d.Status = onboarding.DocumentVerificationPending
	d.UploadID = "uploaded-" + d.ID
	d.UpdatedAt = s.now.Add(time.Second)
	s.Require().NoError(s.stores.Documents.Update(s.ctx, d))

	used, err := s.stores.Documents.ListUsedForVerification(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Require().Len(used, 1)
	s.Equal(d.UploadID, used[0].UploadID)

	unfinished, err := s.stores.Documents.FindUnfinishedIDsByVerificationIDs(s.ctx, []string{v.ID})
	s.Require().NoError(err)
	s.Equal([]string{d.ID}, unfinished)

	n, err := s.stores.Documents.Terminate(s.ctx, unfinished, s.now,
		onboarding.ErrorDocumentVerificationExpired, onboarding.OriginCleaning)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	terminated, err := s.stores.Documents.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(onboarding.DocumentFailed, terminated.Status)
}

func (s *PostgresStoreSuite) TestOtpAttemptsAggregate() {
	p := s.givenProcess("user-otp")

	for i := 0; i < 2; i++ {
		o := onboarding.Otp{
			ID:             uuid.NewString(),
			ProcessID:      p.ID,
			CodeDigest:     []byte("digest"),
			Status:         onboarding.OtpFailed,
			Type:           onboarding.OtpTypeActivation,
			FailedAttempts: 2,
			TotalAttempts:  2,
			CreatedAt:      s.now.Add(time.Duration(i) * time.Minute),
			ExpiresAt:      s.now.Add(time.Hour),
			UpdatedAt:      s.now,
		}
		s.Require().NoError(s.stores.Otps.Create(s.ctx, o))
	}

	total, err := s.stores.Otps.CountFailedAttempts(s.ctx, p.ID, onboarding.OtpTypeActivation)
	s.Require().NoError(err)
	s.Equal(4, total)

	// The user-verification type has its own budget.
	total, err = s.stores.Otps.CountFailedAttempts(s.ctx, p.ID, onboarding.OtpTypeUserVerification)
	s.Require().NoError(err)
	s.Equal(0, total)
}

func (s *PostgresStoreSuite) TestOtpExpiryScanAndTerminate() {
	p := s.givenProcess("user-otp-expiry")
	o := onboarding.Otp{
		ID:         uuid.NewString(),
		ProcessID:  p.ID,
		CodeDigest: []byte("digest"),
		Status:     onboarding.OtpActive,
		Type:       onboarding.OtpTypeActivation,
		CreatedAt:  s.now,
		ExpiresAt:  s.now.Add(30 * time.Second),
		UpdatedAt:  s.now,
	}
	s.Require().NoError(s.stores.Otps.Create(s.ctx, o))

	ids, err := s.stores.Otps.FindActiveIDsCreatedBefore(s.ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Contains(ids, o.ID)

	n, err := s.stores.Otps.Terminate(s.ctx, []string{o.ID}, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	expired, err := s.stores.Otps.FindNewestByProcessAndType(s.ctx, p.ID, onboarding.OtpTypeActivation)
	s.Require().NoError(err)
	s.Equal(onboarding.OtpFailed, expired.Status)
	s.Equal(onboarding.ErrorOtpExpired, expired.ErrorDetail)
}

func (s *PostgresStoreSuite) TestResultSnapshotsOrdered() {
	p := s.givenProcess("user-results")
	v := s.givenVerification(p.ID, onboarding.PhaseDocumentUpload, onboarding.StatusInProgress, s.now)
	d := onboarding.DocumentVerification{
		ID:                     uuid.NewString(),
		IdentityVerificationID: v.ID,
		Type:                   onboarding.DocumentPassport,
		Status:                 onboarding.DocumentVerificationPending,
		CreatedAt:              s.now,
		UpdatedAt:              s.now,
	}
	s.Require().NoError(s.stores.Documents.Create(s.ctx, d))

	s.Require().NoError(s.stores.Results.Create(s.ctx, onboarding.DocumentResult{
		ID:                     uuid.NewString(),
		DocumentVerificationID: d.ID,
		Phase:                  onboarding.PhaseDocumentUpload,
		ExtractedData:          `{"extracted": true}`,
		CreatedAt:              s.now,
	}))
	s.Require().NoError(s.stores.Results.Create(s.ctx, onboarding.DocumentResult{
		ID:                     uuid.NewString(),
		DocumentVerificationID: d.ID,
		Phase:                  onboarding.PhaseDocumentVerification,
		VerificationResult:     `{"verificationResult": "rejected"}`,
		RejectReasons:          []string{"blurry photo"},
		CreatedAt:              s.now.Add(time.Minute),
	}))

	results, err := s.stores.Results.ListByDocument(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Equal(onboarding.PhaseDocumentUpload, results[0].Phase)
	s.Equal(`{"verificationResult": "rejected"}`, results[1].VerificationResult)
	s.Equal([]string{"blurry photo"}, results[1].RejectReasons)
}

func (s *PostgresStoreSuite) TestDocumentDataRetention() {
	p := s.givenProcess("user-data")
	v := s.givenVerification(p.ID, onboarding.PhaseDocumentUpload, onboarding.StatusInProgress, s.now)
	d := onboarding.DocumentVerification{
		ID:                     uuid.NewString(),
		IdentityVerificationID: v.ID,
		Type:                   onboarding.DocumentIDCard,
		Side:                   onboarding.SideFront,
		Status:                 onboarding.DocumentUploadInProgress,
		CreatedAt:              s.now,
		UpdatedAt:              s.now,
	}
	s.Require().NoError(s.stores.Documents.Create(s.ctx, d))

	s.Require().NoError(s.stores.DocumentData.Save(s.ctx, d.ID, "id_card_front.jpg", []byte("payload")))
	// Saving again replaces the payload.
	s.Require().NoError(s.stores.DocumentData.Save(s.ctx, d.ID, "id_card_front_2.jpg", []byte("payload-2")))

	filename, data, err := s.stores.DocumentData.Find(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal("id_card_front_2.jpg", filename)
	s.Equal([]byte("payload-2"), data)

	n, err := s.stores.DocumentData.DeleteCreatedBefore(s.ctx, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.GreaterOrEqual(n, int64(1))

	_, _, err = s.stores.DocumentData.Find(s.ctx, d.ID)
	s.Error(err)
}

// --- fixtures ---

func (s *PostgresStoreSuite) newProcess(userID string) onboarding.Process {
	return onboarding.Process{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivationID: "activation-" + uuid.NewString(),
		Status:       onboarding.ProcessActivationInProgress,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
}

func (s *PostgresStoreSuite) givenProcess(userID string) onboarding.Process {
	p := s.newProcess(userID)
	s.Require().NoError(s.stores.Processes.Create(s.ctx, p))
	return p
}

func (s *PostgresStoreSuite) givenVerification(processID string, phase onboarding.Phase, status onboarding.VerificationStatus, createdAt time.Time) onboarding.IdentityVerification {
	v := onboarding.IdentityVerification{
		ID:        uuid.NewString(),
		ProcessID: processID,
		Phase:     phase,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	s.Require().NoError(s.stores.Verifications.Create(s.ctx, v))
	return v
}
