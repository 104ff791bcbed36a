package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"onboarding-gateway/internal/onboarding"
)

// Memory is an in-memory implementation of every store interface. It backs
// unit tests and local development, mirroring the postgres variant's query
// semantics including ordering. All sub-stores share one dataset and lock.
type Memory struct {
	data *memoryData
}

type memoryData struct {
	mu            sync.RWMutex
	now           func() time.Time
	processes     map[string]onboarding.Process
	verifications map[string]onboarding.IdentityVerification
	documents     map[string]onboarding.DocumentVerification
	otps          map[string]onboarding.Otp
	results       map[string][]onboarding.DocumentResult
	documentData  map[string]memoryDocumentData
}

type memoryDocumentData struct {
	filename  string
	data      []byte
	createdAt time.Time
}

// NewMemory builds an empty in-memory store bundle.
func NewMemory() *Memory {
	return &Memory{data: &memoryData{
		now:           time.Now,
		processes:     make(map[string]onboarding.Process),
		verifications: make(map[string]onboarding.IdentityVerification),
		documents:     make(map[string]onboarding.DocumentVerification),
		otps:          make(map[string]onboarding.Otp),
		results:       make(map[string][]onboarding.DocumentResult),
		documentData:  make(map[string]memoryDocumentData),
	}}
}

// WithClock replaces the bundle's clock. Test hook.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.data.now = now
	return m
}

// Stores exposes the bundle view over the shared dataset.
func (m *Memory) Stores() Stores {
	return Stores{
		Processes:     &memoryProcessStore{m.data},
		Verifications: &memoryVerificationStore{m.data},
		Documents:     &memoryDocumentStore{m.data},
		Otps:          &memoryOtpStore{m.data},
		Results:       &memoryResultStore{m.data},
		DocumentData:  &memoryDocumentDataStore{m.data},
	}
}

// --- ProcessStore ---

type memoryProcessStore struct{ d *memoryData }

func (s *memoryProcessStore) Create(_ context.Context, p onboarding.Process) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.processes[p.ID] = p
	return nil
}

func (s *memoryProcessStore) Update(_ context.Context, p onboarding.Process) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.processes[p.ID]; !ok {
		return onboarding.ErrProcessNotFound
	}
	s.d.processes[p.ID] = p
	return nil
}

func (s *memoryProcessStore) FindByID(_ context.Context, id string) (onboarding.Process, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	p, ok := s.d.processes[id]
	if !ok {
		return onboarding.Process{}, onboarding.ErrProcessNotFound
	}
	return p, nil
}

func (s *memoryProcessStore) FindByActivationID(_ context.Context, activationID string) (onboarding.Process, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var found onboarding.Process
	ok := false
	for _, p := range s.d.processes {
		if p.ActivationID != activationID {
			continue
		}
		if !ok || p.CreatedAt.After(found.CreatedAt) {
			found = p
			ok = true
		}
	}
	if !ok {
		return onboarding.Process{}, onboarding.ErrProcessNotFound
	}
	return found, nil
}

func (s *memoryProcessStore) CountByUserCreatedAfter(_ context.Context, userID string, after time.Time) (int, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	n := 0
	for _, p := range s.d.processes {
		if p.UserID == userID && p.CreatedAt.After(after) {
			n++
		}
	}
	return n, nil
}

func (s *memoryProcessStore) FindIDsByStatusCreatedBefore(_ context.Context, status onboarding.ProcessStatus, cutoff time.Time) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.Process
	for _, p := range s.d.processes {
		if p.Status == status && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return processIDsSortedByCreation(out), nil
}

func (s *memoryProcessStore) FindIDsCreatedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.Process
	for _, p := range s.d.processes {
		if !onboarding.ProcessIsTerminal(p) && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return processIDsSortedByCreation(out), nil
}

func (s *memoryProcessStore) Terminate(_ context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for _, id := range ids {
		p, ok := s.d.processes[id]
		if !ok || onboarding.ProcessIsTerminal(p) {
			continue
		}
		failedAt := now
		p.Status = onboarding.ProcessFailed
		p.ErrorDetail = errorDetail
		p.ErrorOrigin = origin
		p.UpdatedAt = now
		p.FailedAt = &failedAt
		s.d.processes[id] = p
		n++
	}
	return n, nil
}

func (s *memoryProcessStore) ListFailedWithActivation(_ context.Context, limit int) ([]onboarding.Process, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.Process
	for _, p := range s.d.processes {
		if p.Status == onboarding.ProcessFailed && !p.ActivationRemoved && p.ActivationID != "" {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryProcessStore) MarkActivationRemoved(_ context.Context, ids []string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, id := range ids {
		if p, ok := s.d.processes[id]; ok {
			p.ActivationRemoved = true
			s.d.processes[id] = p
		}
	}
	return nil
}

// --- VerificationStore ---

type memoryVerificationStore struct{ d *memoryData }

func (s *memoryVerificationStore) Create(_ context.Context, v onboarding.IdentityVerification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.verifications[v.ID] = v
	return nil
}

func (s *memoryVerificationStore) Update(_ context.Context, v onboarding.IdentityVerification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.verifications[v.ID]; !ok {
		return onboarding.ErrVerificationNotFound
	}
	s.d.verifications[v.ID] = v
	return nil
}

func (s *memoryVerificationStore) FindByID(_ context.Context, id string) (onboarding.IdentityVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	v, ok := s.d.verifications[id]
	if !ok {
		return onboarding.IdentityVerification{}, onboarding.ErrVerificationNotFound
	}
	return v, nil
}

func (s *memoryVerificationStore) FindNewestByProcessID(_ context.Context, processID string) (onboarding.IdentityVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var found onboarding.IdentityVerification
	ok := false
	for _, v := range s.d.verifications {
		if v.ProcessID != processID {
			continue
		}
		if !ok || v.CreatedAt.After(found.CreatedAt) {
			found = v
			ok = true
		}
	}
	if !ok {
		return onboarding.IdentityVerification{}, onboarding.ErrVerificationNotFound
	}
	return found, nil
}

func (s *memoryVerificationStore) ListByProcessID(_ context.Context, processID string) ([]onboarding.IdentityVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.IdentityVerification
	for _, v := range s.d.verifications {
		if v.ProcessID == processID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryVerificationStore) ListByPhaseStatus(_ context.Context, pairs []PhaseStatus) ([]onboarding.IdentityVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.IdentityVerification
	for _, v := range s.d.verifications {
		for _, ps := range pairs {
			if v.Phase == ps.Phase && v.Status == ps.Status {
				out = append(out, v)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryVerificationStore) FindUnfinishedIDsByProcessIDs(_ context.Context, processIDs []string) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	wanted := make(map[string]bool, len(processIDs))
	for _, id := range processIDs {
		wanted[id] = true
	}
	var out []string
	for _, v := range s.d.verifications {
		if wanted[v.ProcessID] && !onboarding.VerificationIsCompleted(v) {
			out = append(out, v.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryVerificationStore) FindUnfinishedIDsCreatedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []string
	for _, v := range s.d.verifications {
		if !onboarding.VerificationIsCompleted(v) && v.CreatedAt.Before(cutoff) {
			out = append(out, v.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryVerificationStore) Terminate(_ context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for _, id := range ids {
		v, ok := s.d.verifications[id]
		if !ok || onboarding.VerificationIsCompleted(v) {
			continue
		}
		v.Phase = onboarding.PhaseCompleted
		v.Status = onboarding.StatusFailed
		v.ErrorDetail = errorDetail
		v.ErrorOrigin = origin
		v.UpdatedAt = now
		s.d.verifications[id] = v
		n++
	}
	return n, nil
}

// --- DocumentStore ---

type memoryDocumentStore struct{ d *memoryData }

func (s *memoryDocumentStore) Create(_ context.Context, d onboarding.DocumentVerification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.documents[d.ID] = d
	return nil
}

func (s *memoryDocumentStore) Update(_ context.Context, d onboarding.DocumentVerification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.documents[d.ID] = d
	return nil
}

func (s *memoryDocumentStore) FindByID(_ context.Context, id string) (onboarding.DocumentVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	d, ok := s.d.documents[id]
	if !ok {
		return onboarding.DocumentVerification{}, onboarding.ErrVerificationNotFound
	}
	return d, nil
}

func (s *memoryDocumentStore) ListUsedForVerification(_ context.Context, verificationID string) ([]onboarding.DocumentVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.DocumentVerification
	for _, d := range s.d.documents {
		if d.IdentityVerificationID == verificationID && d.UsedForVerification {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryDocumentStore) ListByStatus(_ context.Context, status onboarding.DocumentStatus) ([]onboarding.DocumentVerification, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []onboarding.DocumentVerification
	for _, d := range s.d.documents {
		if d.Status == status {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryDocumentStore) FindUnfinishedIDsByVerificationIDs(_ context.Context, verificationIDs []string) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	wanted := make(map[string]bool, len(verificationIDs))
	for _, id := range verificationIDs {
		wanted[id] = true
	}
	var out []string
	for _, d := range s.d.documents {
		if wanted[d.IdentityVerificationID] && !onboarding.DocumentIsFinished(d) {
			out = append(out, d.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryDocumentStore) FindUnfinishedIDsCreatedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []string
	for _, d := range s.d.documents {
		if !onboarding.DocumentIsFinished(d) && d.CreatedAt.Before(cutoff) {
			out = append(out, d.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryDocumentStore) Terminate(_ context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for _, id := range ids {
		d, ok := s.d.documents[id]
		if !ok || onboarding.DocumentIsFinished(d) {
			continue
		}
		d.Status = onboarding.DocumentFailed
		d.ErrorDetail = errorDetail
		d.ErrorOrigin = origin
		d.UpdatedAt = now
		s.d.documents[id] = d
		n++
	}
	return n, nil
}

// --- OtpStore ---

type memoryOtpStore struct{ d *memoryData }

func (s *memoryOtpStore) Create(_ context.Context, o onboarding.Otp) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.otps[o.ID] = o
	return nil
}

func (s *memoryOtpStore) Update(_ context.Context, o onboarding.Otp) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.otps[o.ID]; !ok {
		return onboarding.ErrOtpNotFound
	}
	s.d.otps[o.ID] = o
	return nil
}

func (s *memoryOtpStore) FindNewestByProcessAndType(_ context.Context, processID string, t onboarding.OtpType) (onboarding.Otp, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var found onboarding.Otp
	ok := false
	for _, o := range s.d.otps {
		if o.ProcessID != processID || o.Type != t {
			continue
		}
		if !ok || o.CreatedAt.After(found.CreatedAt) {
			found = o
			ok = true
		}
	}
	if !ok {
		return onboarding.Otp{}, onboarding.ErrOtpNotFound
	}
	return found, nil
}

func (s *memoryOtpStore) CountFailedAttempts(_ context.Context, processID string, t onboarding.OtpType) (int, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	total := 0
	for _, o := range s.d.otps {
		if o.ProcessID == processID && o.Type == t {
			total += o.FailedAttempts
		}
	}
	return total, nil
}

func (s *memoryOtpStore) FindActiveIDsCreatedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var out []string
	for _, o := range s.d.otps {
		if o.Status == onboarding.OtpActive && o.CreatedAt.Before(cutoff) {
			out = append(out, o.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryOtpStore) Terminate(_ context.Context, ids []string, now time.Time) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for _, id := range ids {
		o, ok := s.d.otps[id]
		if !ok || o.Status != onboarding.OtpActive {
			continue
		}
		failedAt := now
		o.Status = onboarding.OtpFailed
		o.ErrorDetail = onboarding.ErrorOtpExpired
		o.ErrorOrigin = onboarding.OriginOtpVerification
		o.UpdatedAt = now
		o.FailedAt = &failedAt
		s.d.otps[id] = o
		n++
	}
	return n, nil
}

// --- ResultStore ---

type memoryResultStore struct{ d *memoryData }

func (s *memoryResultStore) Create(_ context.Context, r onboarding.DocumentResult) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.results[r.DocumentVerificationID] = append(s.d.results[r.DocumentVerificationID], r)
	return nil
}

func (s *memoryResultStore) ListByDocument(_ context.Context, documentVerificationID string) ([]onboarding.DocumentResult, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	return append([]onboarding.DocumentResult{}, s.d.results[documentVerificationID]...), nil
}

// --- DocumentDataStore ---

type memoryDocumentDataStore struct{ d *memoryData }

func (s *memoryDocumentDataStore) Save(_ context.Context, documentVerificationID, filename string, data []byte) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.documentData[documentVerificationID] = memoryDocumentData{
		filename:  filename,
		data:      append([]byte{}, data...),
		createdAt: s.d.now(),
	}
	return nil
}

func (s *memoryDocumentDataStore) Find(_ context.Context, documentVerificationID string) (string, []byte, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	dd, ok := s.d.documentData[documentVerificationID]
	if !ok {
		return "", nil, onboarding.ErrVerificationNotFound
	}
	return dd.filename, append([]byte{}, dd.data...), nil
}

func (s *memoryDocumentDataStore) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var n int64
	for id, dd := range s.d.documentData {
		if dd.createdAt.Before(cutoff) {
			delete(s.d.documentData, id)
			n++
		}
	}
	return n, nil
}

func processIDsSortedByCreation(processes []onboarding.Process) []string {
	sort.Slice(processes, func(i, j int) bool { return processes[i].CreatedAt.Before(processes[j].CreatedAt) })
	ids := make([]string, 0, len(processes))
	for _, p := range processes {
		ids = append(ids, p.ID)
	}
	return ids
}
