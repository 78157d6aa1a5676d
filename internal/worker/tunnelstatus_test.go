package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

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

type MockTunnelStore struct{ mock.Mock }

func (m *MockTunnelStore) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Tunnel, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tunnel), args.Error(1)
}

func (m *MockTunnelStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, connsActiveAt *time.Time) error {
	return m.Called(ctx, id, status, connsActiveAt).Error(0)
}

type MockTunnelInspector struct{ mock.Mock }

func (m *MockTunnelInspector) TunnelDetails(ctx context.Context, tunnelID string) (*cloudflare.Tunnel, error) {
	args := m.Called(ctx, tunnelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cloudflare.Tunnel), args.Error(1)
}

type MockStatusPublisher struct{ mock.Mock }

func (m *MockStatusPublisher) PublishTunnelStatus(t *models.Tunnel) {
	m.Called(t)
}

func tunnelStatusTask(t *testing.T, p queue.TunnelStatusPayload) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeTunnelStatus, b)
}

func TestTunnelStatusProcessor_PublishesChangesOnly(t *testing.T) {
	tunnels := new(MockTunnelStore)
	accounts := new(MockAccountStore)
	inspector := new(MockTunnelInspector)
	publisher := new(MockStatusPublisher)

	accountID := uuid.New()
	changedID := uuid.New()
	unchangedID := uuid.New()

	accounts.On("GetByID", mock.Anything, accountID).
		Return(&models.Account{ID: accountID, CFAccountID: "acct1", APITokenEnc: "token"}, nil)
	tunnels.On("ListByAccount", mock.Anything, accountID).Return([]*models.Tunnel{
		{ID: changedID, TunnelID: "uuid-1", Name: "edge", Status: "down"},
		{ID: unchangedID, TunnelID: "uuid-2", Name: "lab", Status: "healthy"},
	}, nil)

	activeAt := time.Now().UTC()
	inspector.On("TunnelDetails", mock.Anything, "uuid-1").
		Return(&cloudflare.Tunnel{ID: "uuid-1", Status: "healthy", ConnsActiveAt: &activeAt}, nil)
	inspector.On("TunnelDetails", mock.Anything, "uuid-2").
		Return(&cloudflare.Tunnel{ID: "uuid-2", Status: "healthy"}, nil)

	tunnels.On("UpdateStatus", mock.Anything, changedID, "healthy", &activeAt).Return(nil)
	publisher.On("PublishTunnelStatus", mock.MatchedBy(func(tn *models.Tunnel) bool {
		return tn.ID == changedID && tn.Status == "healthy"
	})).Return()

	p := NewTunnelStatusProcessor(tunnels, accounts, plaintextKMS{}, publisher, config.CloudflareConfig{}, zap.NewNop())
	p.newClient = func(config.CloudflareConfig, string, string) TunnelInspector { return inspector }

	err := p.ProcessTask(context.Background(), tunnelStatusTask(t, queue.TunnelStatusPayload{AccountID: accountID}))
	require.NoError(t, err)

	tunnels.AssertExpectations(t)
	publisher.AssertExpectations(t)
	publisher.AssertNumberOfCalls(t, "PublishTunnelStatus", 1)
}

func TestTunnelStatusProcessor_NilDetailsReadAsUnknown(t *testing.T) {
	tunnels := new(MockTunnelStore)
	accounts := new(MockAccountStore)
	inspector := new(MockTunnelInspector)

	accountID := uuid.New()
	tunnelID := uuid.New()

	accounts.On("GetByID", mock.Anything, accountID).
		Return(&models.Account{ID: accountID, CFAccountID: "acct1", APITokenEnc: "token"}, nil)
	tunnels.On("ListByAccount", mock.Anything, accountID).Return([]*models.Tunnel{
		{ID: tunnelID, TunnelID: "uuid-gone", Status: "healthy"},
	}, nil)

	// Vendor rejection reads as nil details, not an error.
	inspector.On("TunnelDetails", mock.Anything, "uuid-gone").Return(nil, nil)
	tunnels.On("UpdateStatus", mock.Anything, tunnelID, "unknown", (*time.Time)(nil)).Return(nil)

	p := NewTunnelStatusProcessor(tunnels, accounts, plaintextKMS{}, nil, config.CloudflareConfig{}, zap.NewNop())
	p.newClient = func(config.CloudflareConfig, string, string) TunnelInspector { return inspector }

	err := p.ProcessTask(context.Background(), tunnelStatusTask(t, queue.TunnelStatusPayload{AccountID: accountID}))
	assert.NoError(t, err)
	tunnels.AssertExpectations(t)
}
