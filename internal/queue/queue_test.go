package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSSyncTask_PayloadRoundTrip(t *testing.T) {
	p := DNSSyncPayload{DomainID: uuid.New(), SyncRunID: uuid.New()}

	task, err := NewDNSSyncTask(p)
	require.NoError(t, err)
	assert.Equal(t, TypeDNSSync, task.Type())

	got, err := ParseDNSSyncPayload(task)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPortainerSyncTask_PayloadRoundTrip(t *testing.T) {
	task, err := NewPortainerSyncTask(PortainerSyncPayload{EndpointID: 3})
	require.NoError(t, err)
	assert.Equal(t, TypePortainerSync, task.Type())

	got, err := ParsePortainerSyncPayload(task)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EndpointID)
}

func TestTunnelStatusTask_PayloadRoundTrip(t *testing.T) {
	accountID := uuid.New()
	task, err := NewTunnelStatusTask(TunnelStatusPayload{AccountID: accountID})
	require.NoError(t, err)
	assert.Equal(t, TypeTunnelStatus, task.Type())

	got, err := ParseTunnelStatusPayload(task)
	require.NoError(t, err)
	assert.Equal(t, accountID, got.AccountID)
}
