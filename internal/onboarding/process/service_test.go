package process

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
)

type ProcessSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	stores  store.Stores
	service *Service
}

func TestProcessSuite(t *testing.T) {
	suite.Run(t, new(ProcessSuite))
}

func (s *ProcessSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.stores = store.NewMemory().Stores()
	s.service = s.newService(DefaultLimits())
}

func (s *ProcessSuite) newService(limits Limits) *Service {
	svc, err := New(s.stores.Processes, s.stores.Verifications, limits,
		WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	return svc
}

func (s *ProcessSuite) TestStartCreatesProcess() {
	p, err := s.service.Start(s.ctx, "user-1", "activation-1")

	s.Require().NoError(err)
	s.Equal(onboarding.ProcessActivationInProgress, p.Status)
	s.Equal("user-1", p.UserID)
	s.NotEmpty(p.ID)
}

func (s *ProcessSuite) TestStartResumesExistingProcess() {
	first, err := s.service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)

	second, err := s.service.Start(s.ctx, "user-1", "activation-1")

	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
}

func (s *ProcessSuite) TestStartAfterTerminalProcessCreatesNew() {
	first, err := s.service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)
	_, err = s.service.Fail(s.ctx, first, onboarding.ErrorProcessCanceled, onboarding.OriginUserRequest)
	s.Require().NoError(err)

	second, err := s.service.Start(s.ctx, "user-1", "activation-1")

	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)
}

func (s *ProcessSuite) TestStartEnforcesDailyLimit() {
	service := s.newService(Limits{MaxProcessesPerDay: 2})

	_, err := service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)
	s.now = s.now.Add(time.Minute)
	_, err = service.Start(s.ctx, "user-1", "activation-2")
	s.Require().NoError(err)
	s.now = s.now.Add(time.Minute)

	_, err = service.Start(s.ctx, "user-1", "activation-3")

	var procErr *onboarding.ProcessError
	s.Require().ErrorAs(err, &procErr)
	s.Equal(onboarding.ErrorTooManyProcesses, procErr.Code)
	s.Equal(onboarding.OriginProcessLimitCheck, procErr.Origin)
}

func (s *ProcessSuite) TestDailyLimitIgnoresOldProcesses() {
	service := s.newService(Limits{MaxProcessesPerDay: 1})

	_, err := service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)

	// A process older than a day no longer counts against the cap.
	s.now = s.now.Add(25 * time.Hour)
	_, err = service.Start(s.ctx, "user-1", "activation-2")
	s.Require().NoError(err)
}

func (s *ProcessSuite) TestErrorScoreThresholdFailsProcess() {
	service := s.newService(Limits{MaxErrorScore: 5})
	p, err := service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)

	p, err = service.IncrementErrorScore(s.ctx, p, 6)
	s.Require().NoError(err)
	p, err = service.CheckErrorLimits(s.ctx, p)
	s.Require().NoError(err)

	s.Equal(onboarding.ProcessFailed, p.Status)
	s.Equal(onboarding.ErrorMaxErrorScoreExceeded, p.ErrorDetail)
	s.Equal(onboarding.OriginProcessLimitCheck, p.ErrorOrigin)
}

func (s *ProcessSuite) TestResetTerminatesCurrentVerification() {
	p, err := s.service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)
	verificationID := s.givenVerification(p.ID, onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)

	s.Require().NoError(s.service.ResetIdentityVerification(s.ctx, p.ID))

	v, err := s.stores.Verifications.FindByID(s.ctx, verificationID)
	s.Require().NoError(err)
	s.Equal(onboarding.PhaseCompleted, v.Phase)
	s.Equal(onboarding.StatusFailed, v.Status)

	// The reset raises the error score but keeps the process alive.
	p, err = s.stores.Processes.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(DefaultLimits().ScoreIdentityVerificationReset, p.ErrorScore)
	s.NotEqual(onboarding.ProcessFailed, p.Status)
}

func (s *ProcessSuite) TestResetFailsProcessAtAttemptCap() {
	service := s.newService(Limits{MaxErrorScore: 100, MaxIdentityVerifications: 2})
	p, err := service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)
	s.givenVerification(p.ID, onboarding.PhaseCompleted, onboarding.StatusFailed)
	s.givenVerification(p.ID, onboarding.PhaseDocumentUpload, onboarding.StatusInProgress)

	err = service.ResetIdentityVerification(s.ctx, p.ID)

	var procErr *onboarding.ProcessError
	s.Require().ErrorAs(err, &procErr)
	s.Equal(onboarding.ErrorMaxFailedAttemptsVerification, procErr.Code)

	p, err = s.stores.Processes.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(onboarding.ProcessFailed, p.Status)
}

func (s *ProcessSuite) TestFinishIsIdempotent() {
	p, err := s.service.Start(s.ctx, "user-1", "activation-1")
	s.Require().NoError(err)

	p, err = s.service.Finish(s.ctx, p)
	s.Require().NoError(err)
	finishedAt := p.FinishedAt
	s.Require().NotNil(finishedAt)

	s.now = s.now.Add(time.Minute)
	p, err = s.service.Finish(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(finishedAt, p.FinishedAt)
}

func (s *ProcessSuite) givenVerification(processID string, phase onboarding.Phase, status onboarding.VerificationStatus) string {
	v := onboarding.IdentityVerification{
		ID:        uuid.NewString(),
		ProcessID: processID,
		Phase:     phase,
		Status:    status,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.now = s.now.Add(time.Second)
	s.Require().NoError(s.stores.Verifications.Create(s.ctx, v))
	return v.ID
}
