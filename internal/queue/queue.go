package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeDNSSync       = "dns:sync"
	TypePortainerSync = "portainer:sync"
	TypeTunnelStatus  = "tunnel:status"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// DNSSyncPayload is the task payload for TypeDNSSync. One task sweeps one
// domain, ensuring a CNAME per published hostname, and reports into the
// referenced sync run row.
type DNSSyncPayload struct {
	DomainID  uuid.UUID `json:"domain_id"`
	SyncRunID uuid.UUID `json:"sync_run_id"`
}

// PortainerSyncPayload is the task payload for TypePortainerSync.
type PortainerSyncPayload struct {
	EndpointID int `json:"endpoint_id"`
}

// TunnelStatusPayload is the task payload for TypeTunnelStatus.
type TunnelStatusPayload struct {
	AccountID uuid.UUID `json:"account_id"`
}

func NewDNSSyncTask(p DNSSyncPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal DNSSync: %w", err)
	}
	// DNS sweeps are user-triggered and watched; no retry, the run row
	// records the failure instead.
	return asynq.NewTask(TypeDNSSync, b, asynq.Queue(QueueCritical), asynq.MaxRetry(0)), nil
}

func NewPortainerSyncTask(p PortainerSyncPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal PortainerSync: %w", err)
	}
	return asynq.NewTask(TypePortainerSync, b, asynq.Queue(QueueDefault)), nil
}

func NewTunnelStatusTask(p TunnelStatusPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal TunnelStatus: %w", err)
	}
	return asynq.NewTask(TypeTunnelStatus, b, asynq.Queue(QueueLow)), nil
}

func ParseDNSSyncPayload(t *asynq.Task) (DNSSyncPayload, error) {
	var p DNSSyncPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

func ParsePortainerSyncPayload(t *asynq.Task) (PortainerSyncPayload, error) {
	var p PortainerSyncPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

func ParseTunnelStatusPayload(t *asynq.Task) (TunnelStatusPayload, error) {
	var p TunnelStatusPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}
