package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/portainer"
)

// Interfaces for dependency injection to allow testing.

// SyncRunStore records the lifecycle of one DNS sweep.
type SyncRunStore interface {
	MarkRunning(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, run *models.SyncRun) error
}

// DomainStore resolves domains for sweeps.
type DomainStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Domain, error)
}

// AccountStore resolves accounts and their encrypted credentials.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// HostnameSource yields the hostname→tunnel pairs a domain's sweep must ensure.
type HostnameSource interface {
	ListHostnamesForDomain(ctx context.Context, domainID uuid.UUID) ([]models.HostnameTarget, error)
}

// DNSReconciler is the slice of the Cloudflare client a DNS sweep needs.
type DNSReconciler interface {
	EnsureCNAME(ctx context.Context, zoneID, name, target string) (cloudflare.EnsureOutcome, error)
}

// TunnelInspector is the slice of the Cloudflare client a status refresh needs.
type TunnelInspector interface {
	TunnelDetails(ctx context.Context, tunnelID string) (*cloudflare.Tunnel, error)
}

// TunnelStore reads and updates mirrored tunnels.
type TunnelStore interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Tunnel, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, connsActiveAt *time.Time) error
}

// Decryptor recovers plaintext credentials from their at-rest form.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// StackSource lists stacks from Portainer.
type StackSource interface {
	ListStacks(ctx context.Context, endpointID int) ([]portainer.Stack, error)
}

// StackStore mirrors Portainer stacks locally.
type StackStore interface {
	Upsert(ctx context.Context, s *models.Stack) error
	DeleteStale(ctx context.Context, endpointID int, since time.Time) error
}

// StatusPublisher pushes tunnel status changes to connected dashboards.
type StatusPublisher interface {
	PublishTunnelStatus(t *models.Tunnel)
}
