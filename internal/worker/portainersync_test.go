package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/portainer"
	"github.com/slimani-dev/muraqib/internal/queue"
)

type MockStackSource struct{ mock.Mock }

func (m *MockStackSource) ListStacks(ctx context.Context, endpointID int) ([]portainer.Stack, error) {
	args := m.Called(ctx, endpointID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]portainer.Stack), args.Error(1)
}

type MockStackStore struct{ mock.Mock }

func (m *MockStackStore) Upsert(ctx context.Context, s *models.Stack) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStackStore) DeleteStale(ctx context.Context, endpointID int, since time.Time) error {
	return m.Called(ctx, endpointID, since).Error(0)
}

func TestPortainerSyncProcessor_MirrorsAndPrunes(t *testing.T) {
	source := new(MockStackSource)
	store := new(MockStackStore)

	source.On("ListStacks", mock.Anything, 3).Return([]portainer.Stack{
		{ID: 7, Name: "media", EndpointID: 3, Status: 1},
		{ID: 9, Name: "monitoring", EndpointID: 3, Status: 2},
	}, nil)

	store.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Stack) bool {
		return s.StackID == 7 && s.Name == "media" && s.Status == "active"
	})).Return(nil)
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(s *models.Stack) bool {
		return s.StackID == 9 && s.Name == "monitoring" && s.Status == "inactive"
	})).Return(nil)
	store.On("DeleteStale", mock.Anything, 3, mock.AnythingOfType("time.Time")).Return(nil)

	p := NewPortainerSyncProcessor(source, store, zap.NewNop())

	b, err := json.Marshal(queue.PortainerSyncPayload{EndpointID: 3})
	require.NoError(t, err)
	err = p.ProcessTask(context.Background(), asynq.NewTask(queue.TypePortainerSync, b))
	require.NoError(t, err)

	source.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestPortainerSyncProcessor_StampsSweepTimeOnMirrors(t *testing.T) {
	source := new(MockStackSource)
	store := new(MockStackStore)

	source.On("ListStacks", mock.Anything, 3).Return([]portainer.Stack{
		{ID: 7, Name: "media", EndpointID: 3, Status: 1},
		{ID: 9, Name: "monitoring", EndpointID: 3, Status: 2},
	}, nil)

	var stamps []time.Time
	store.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stamps = append(stamps, args.Get(1).(*models.Stack).SyncedAt)
	}).Return(nil)

	var pruneSince time.Time
	store.On("DeleteStale", mock.Anything, 3, mock.AnythingOfType("time.Time")).Run(func(args mock.Arguments) {
		pruneSince = args.Get(2).(time.Time)
	}).Return(nil)

	p := NewPortainerSyncProcessor(source, store, zap.NewNop())

	b, err := json.Marshal(queue.PortainerSyncPayload{EndpointID: 3})
	require.NoError(t, err)
	err = p.ProcessTask(context.Background(), asynq.NewTask(queue.TypePortainerSync, b))
	require.NoError(t, err)

	// Rows written this sweep carry the exact prune cutoff, so clock skew
	// between app and database cannot drop them.
	require.Len(t, stamps, 2)
	for _, stamp := range stamps {
		require.True(t, stamp.Equal(pruneSince))
	}
}

func TestPortainerSyncProcessor_ListFailureStopsBeforePrune(t *testing.T) {
	source := new(MockStackSource)
	store := new(MockStackStore)

	source.On("ListStacks", mock.Anything, 3).Return(nil, context.DeadlineExceeded)

	p := NewPortainerSyncProcessor(source, store, zap.NewNop())

	b, err := json.Marshal(queue.PortainerSyncPayload{EndpointID: 3})
	require.NoError(t, err)
	err = p.ProcessTask(context.Background(), asynq.NewTask(queue.TypePortainerSync, b))
	require.Error(t, err)

	store.AssertNotCalled(t, "DeleteStale", mock.Anything, mock.Anything, mock.Anything)
}
