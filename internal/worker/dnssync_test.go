package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/queue"
)

type MockSyncRunStore struct{ mock.Mock }

func (m *MockSyncRunStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSyncRunStore) Finish(ctx context.Context, run *models.SyncRun) error {
	return m.Called(ctx, run).Error(0)
}

type MockDomainStore struct{ mock.Mock }

func (m *MockDomainStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Domain, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Domain), args.Error(1)
}

type MockAccountStore struct{ mock.Mock }

func (m *MockAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

type MockHostnameSource struct{ mock.Mock }

func (m *MockHostnameSource) ListHostnamesForDomain(ctx context.Context, domainID uuid.UUID) ([]models.HostnameTarget, error) {
	args := m.Called(ctx, domainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HostnameTarget), args.Error(1)
}

type MockDNSReconciler struct{ mock.Mock }

func (m *MockDNSReconciler) EnsureCNAME(ctx context.Context, zoneID, name, target string) (cloudflare.EnsureOutcome, error) {
	args := m.Called(ctx, zoneID, name, target)
	return args.Get(0).(cloudflare.EnsureOutcome), args.Error(1)
}

type plaintextKMS struct{}

func (plaintextKMS) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

func dnsSyncTask(t *testing.T, p queue.DNSSyncPayload) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeDNSSync, b)
}

func TestDNSSyncProcessor_CountsOutcomes(t *testing.T) {
	runs := new(MockSyncRunStore)
	domains := new(MockDomainStore)
	accounts := new(MockAccountStore)
	hostnames := new(MockHostnameSource)
	reconciler := new(MockDNSReconciler)

	domainID := uuid.New()
	accountID := uuid.New()
	runID := uuid.New()

	domain := &models.Domain{ID: domainID, AccountID: accountID, ZoneID: "zone1", Name: "example.com"}
	account := &models.Account{ID: accountID, CFAccountID: "acct1", APITokenEnc: "token"}

	domains.On("GetByID", mock.Anything, domainID).Return(domain, nil)
	accounts.On("GetByID", mock.Anything, accountID).Return(account, nil)
	hostnames.On("ListHostnamesForDomain", mock.Anything, domainID).Return([]models.HostnameTarget{
		{Hostname: "a.example.com", TunnelID: "uuid-1"},
		{Hostname: "b.example.com", TunnelID: "uuid-1"},
		{Hostname: "c.example.com", TunnelID: "uuid-2"},
	}, nil)

	reconciler.On("EnsureCNAME", mock.Anything, "zone1", "a.example.com", "uuid-1.cfargotunnel.com").
		Return(cloudflare.EnsureCreated, nil)
	reconciler.On("EnsureCNAME", mock.Anything, "zone1", "b.example.com", "uuid-1.cfargotunnel.com").
		Return(cloudflare.EnsureSkipped, nil)
	reconciler.On("EnsureCNAME", mock.Anything, "zone1", "c.example.com", "uuid-2.cfargotunnel.com").
		Return(cloudflare.EnsureUpdated, nil)

	runs.On("MarkRunning", mock.Anything, runID).Return(nil)
	runs.On("Finish", mock.Anything, mock.MatchedBy(func(run *models.SyncRun) bool {
		return run.Status == models.SyncStatusDone &&
			run.Created == 1 && run.Updated == 1 && run.Skipped == 1 && run.Failed == 0
	})).Return(nil)

	p := NewDNSSyncProcessor(runs, domains, accounts, hostnames, plaintextKMS{}, nil, config.CloudflareConfig{}, zap.NewNop())
	p.newClient = func(config.CloudflareConfig, string, string) DNSReconciler { return reconciler }

	err := p.ProcessTask(context.Background(), dnsSyncTask(t, queue.DNSSyncPayload{DomainID: domainID, SyncRunID: runID}))
	require.NoError(t, err)

	runs.AssertExpectations(t)
	reconciler.AssertExpectations(t)
}

func TestDNSSyncProcessor_ConflictCountsAsFailedAndContinues(t *testing.T) {
	runs := new(MockSyncRunStore)
	domains := new(MockDomainStore)
	accounts := new(MockAccountStore)
	hostnames := new(MockHostnameSource)
	reconciler := new(MockDNSReconciler)

	domainID := uuid.New()
	accountID := uuid.New()
	runID := uuid.New()

	domains.On("GetByID", mock.Anything, domainID).
		Return(&models.Domain{ID: domainID, AccountID: accountID, ZoneID: "zone1", Name: "example.com"}, nil)
	accounts.On("GetByID", mock.Anything, accountID).
		Return(&models.Account{ID: accountID, CFAccountID: "acct1", APITokenEnc: "token"}, nil)
	hostnames.On("ListHostnamesForDomain", mock.Anything, domainID).Return([]models.HostnameTarget{
		{Hostname: "taken.example.com", TunnelID: "uuid-1"},
		{Hostname: "free.example.com", TunnelID: "uuid-1"},
	}, nil)

	reconciler.On("EnsureCNAME", mock.Anything, "zone1", "taken.example.com", "uuid-1.cfargotunnel.com").
		Return(cloudflare.EnsureOutcome(""), &cloudflare.RecordConflictError{Name: "taken.example.com", Type: "A"})
	reconciler.On("EnsureCNAME", mock.Anything, "zone1", "free.example.com", "uuid-1.cfargotunnel.com").
		Return(cloudflare.EnsureCreated, nil)

	runs.On("MarkRunning", mock.Anything, runID).Return(nil)

	var finished *models.SyncRun
	runs.On("Finish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		finished = args.Get(1).(*models.SyncRun)
	}).Return(nil)

	p := NewDNSSyncProcessor(runs, domains, accounts, hostnames, plaintextKMS{}, nil, config.CloudflareConfig{}, zap.NewNop())
	p.newClient = func(config.CloudflareConfig, string, string) DNSReconciler { return reconciler }

	err := p.ProcessTask(context.Background(), dnsSyncTask(t, queue.DNSSyncPayload{DomainID: domainID, SyncRunID: runID}))
	require.NoError(t, err, "per-hostname conflicts must not fail the task")

	require.NotNil(t, finished)
	assert.Equal(t, models.SyncStatusFailed, finished.Status)
	assert.Equal(t, 1, finished.Created, "sweep must continue past the conflict")
	assert.Equal(t, 1, finished.Failed)
	assert.Contains(t, finished.ErrMsg, "taken.example.com")
	reconciler.AssertExpectations(t)
}

func TestDNSSyncProcessor_DomainLookupFailureFailsRun(t *testing.T) {
	runs := new(MockSyncRunStore)
	domains := new(MockDomainStore)

	domainID := uuid.New()
	runID := uuid.New()

	runs.On("MarkRunning", mock.Anything, runID).Return(nil)
	domains.On("GetByID", mock.Anything, domainID).Return(nil, assert.AnError)
	runs.On("Finish", mock.Anything, mock.MatchedBy(func(run *models.SyncRun) bool {
		return run.Status == models.SyncStatusFailed && run.ErrMsg != ""
	})).Return(nil)

	p := NewDNSSyncProcessor(runs, domains, new(MockAccountStore), new(MockHostnameSource), plaintextKMS{}, nil, config.CloudflareConfig{}, zap.NewNop())

	err := p.ProcessTask(context.Background(), dnsSyncTask(t, queue.DNSSyncPayload{DomainID: domainID, SyncRunID: runID}))
	require.Error(t, err)
	runs.AssertExpectations(t)
}
