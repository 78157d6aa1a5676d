package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusRunning SyncStatus = "running"
	SyncStatusDone    SyncStatus = "done"
	SyncStatusFailed  SyncStatus = "failed"
)

// Account is a Cloudflare credential pair. The API token is encrypted at
// rest; plaintext never leaves the handler/worker that decrypts it.
type Account struct {
	ID          uuid.UUID `db:"id"               json:"id"`
	Name        string    `db:"name"             json:"name"`
	CFAccountID string    `db:"cf_account_id"    json:"cf_account_id"`
	APITokenEnc string    `db:"cf_api_token_enc" json:"-"`
	CreatedAt   time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"       json:"updated_at"`
}

// Tunnel mirrors a remote Cloudflare Tunnel. Status is a cache of the last
// status fetch, not a source of truth.
type Tunnel struct {
	ID            uuid.UUID  `db:"id"              json:"id"`
	AccountID     uuid.UUID  `db:"account_id"      json:"account_id"`
	TunnelID      string     `db:"tunnel_id"       json:"tunnel_id"`
	Name          string     `db:"name"            json:"name"`
	Status        string     `db:"status"          json:"status"`
	ConnsActiveAt *time.Time `db:"conns_active_at" json:"conns_active_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"      json:"updated_at"`
}

// IngressRule is an ordered routing entry belonging to one tunnel. A rule
// with an empty hostname (or the explicit flag) is a catch-all. The
// origin-request overrides are stored and forwarded opaquely.
type IngressRule struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	TunnelID      uuid.UUID       `db:"tunnel_id"      json:"tunnel_id"`
	Hostname      string          `db:"hostname"       json:"hostname"`
	Path          string          `db:"path"           json:"path,omitempty"`
	Service       string          `db:"service"        json:"service"`
	IsCatchAll    bool            `db:"is_catch_all"   json:"is_catch_all"`
	OriginRequest json.RawMessage `db:"origin_request" json:"origin_request,omitempty"`
	Position      int             `db:"position"       json:"position"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
}

// Domain is a Cloudflare zone registered under an account.
type Domain struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	ZoneID    string    `db:"zone_id"    json:"zone_id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DNSRecord mirrors a remote DNS record managed through the dashboard.
type DNSRecord struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	DomainID  uuid.UUID `db:"domain_id"  json:"domain_id"`
	RecordID  string    `db:"record_id"  json:"record_id"`
	Type      string    `db:"type"       json:"type"`
	Name      string    `db:"name"       json:"name"`
	Content   string    `db:"content"    json:"content"`
	Proxied   bool      `db:"proxied"    json:"proxied"`
	TTL       int       `db:"ttl"        json:"ttl"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccessProtection is the local record of a Zero Trust triple (service
// token, application, policy) gating one hostname.
//
// TokenID is the service token's remote UUID. Rows created before it was
// recorded carry an empty TokenID; deletion then falls back to resolving
// the UUID by listing tokens and matching on ClientID.
type AccessProtection struct {
	ID              uuid.UUID `db:"id"                json:"id"`
	DomainID        uuid.UUID `db:"domain_id"         json:"domain_id"`
	Hostname        string    `db:"hostname"          json:"hostname"`
	AppID           string    `db:"app_id"            json:"app_id"`
	TokenID         string    `db:"token_id"          json:"token_id,omitempty"`
	ClientID        string    `db:"client_id"         json:"client_id"`
	ClientSecretEnc string    `db:"client_secret_enc" json:"-"`
	PolicyID        string    `db:"policy_id"         json:"policy_id"`
	CreatedAt       time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"        json:"updated_at"`
}

// Stack mirrors a Portainer stack.
type Stack struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	EndpointID int       `db:"endpoint_id" json:"endpoint_id"`
	StackID    int       `db:"stack_id"    json:"stack_id"`
	Name       string    `db:"name"        json:"name"`
	Status     string    `db:"status"      json:"status"`
	SyncedAt   time.Time `db:"synced_at"   json:"synced_at"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// SyncRun records the outcome of one batch DNS reconciliation for a domain.
type SyncRun struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	DomainID   uuid.UUID  `db:"domain_id"   json:"domain_id"`
	Status     SyncStatus `db:"status"      json:"status"`
	Created    int        `db:"created"     json:"created"`
	Updated    int        `db:"updated"     json:"updated"`
	Skipped    int        `db:"skipped"     json:"skipped"`
	Failed     int        `db:"failed"      json:"failed"`
	ErrMsg     string     `db:"err_msg"     json:"err_msg,omitempty"`
	StartedAt  *time.Time `db:"started_at"  json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
}

// HostnameTarget pairs a published hostname with the remote tunnel ID its
// CNAME must point at. Produced by joining ingress rules with tunnels.
type HostnameTarget struct {
	Hostname string `json:"hostname"`
	TunnelID string `json:"tunnel_id"`
}
