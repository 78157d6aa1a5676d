package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slimani-dev/muraqib/internal/models"
)

// ── AccountRepository ─────────────────────────────────────────────────────────

type AccountRepository struct{ db *pgxpool.Pool }

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	const q = `INSERT INTO accounts(id,name,cf_account_id,cf_api_token_enc,created_at,updated_at)
		VALUES($1,$2,$3,$4,now(),now()) RETURNING created_at,updated_at`
	return r.db.QueryRow(ctx, q, a.ID, a.Name, a.CFAccountID, a.APITokenEnc).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const q = `SELECT id,name,cf_account_id,cf_api_token_enc,created_at,updated_at
		FROM accounts WHERE id=$1`
	a := &models.Account{}
	err := r.db.QueryRow(ctx, q, id).Scan(
		&a.ID, &a.Name, &a.CFAccountID, &a.APITokenEnc, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	const q = `SELECT id,name,cf_account_id,cf_api_token_enc,created_at,updated_at
		FROM accounts ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.ID, &a.Name, &a.CFAccountID, &a.APITokenEnc,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepository) UpdateToken(ctx context.Context, id uuid.UUID, tokenEnc string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET cf_api_token_enc=$2, updated_at=now() WHERE id=$1`, id, tokenEnc)
	return err
}

func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	return err
}

// ── TunnelRepository ──────────────────────────────────────────────────────────

type TunnelRepository struct{ db *pgxpool.Pool }

func NewTunnelRepository(db *pgxpool.Pool) *TunnelRepository {
	return &TunnelRepository{db: db}
}

func (r *TunnelRepository) Create(ctx context.Context, t *models.Tunnel) error {
	const q = `INSERT INTO tunnels(id,account_id,tunnel_id,name,status,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,now(),now()) RETURNING created_at,updated_at`
	return r.db.QueryRow(ctx, q, t.ID, t.AccountID, t.TunnelID, t.Name, t.Status).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TunnelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tunnel, error) {
	const q = `SELECT id,account_id,tunnel_id,name,status,conns_active_at,created_at,updated_at
		FROM tunnels WHERE id=$1`
	t := &models.Tunnel{}
	err := r.db.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.AccountID, &t.TunnelID, &t.Name, &t.Status, &t.ConnsActiveAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("tunnel get: %w", err)
	}
	return t, nil
}

func (r *TunnelRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Tunnel, error) {
	const q = `SELECT id,account_id,tunnel_id,name,status,conns_active_at,created_at,updated_at
		FROM tunnels WHERE account_id=$1 ORDER BY created_at DESC`
	return r.scanTunnels(ctx, q, accountID)
}

func (r *TunnelRepository) List(ctx context.Context) ([]*models.Tunnel, error) {
	const q = `SELECT id,account_id,tunnel_id,name,status,conns_active_at,created_at,updated_at
		FROM tunnels ORDER BY created_at DESC`
	return r.scanTunnels(ctx, q)
}

func (r *TunnelRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, connsActiveAt *time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tunnels SET status=$2, conns_active_at=$3, updated_at=now() WHERE id=$1`,
		id, status, connsActiveAt)
	return err
}

func (r *TunnelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tunnels WHERE id=$1`, id)
	return err
}

func (r *TunnelRepository) scanTunnels(ctx context.Context, q string, args ...interface{}) ([]*models.Tunnel, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Tunnel
	for rows.Next() {
		t := &models.Tunnel{}
		if err := rows.Scan(&t.ID, &t.AccountID, &t.TunnelID, &t.Name, &t.Status,
			&t.ConnsActiveAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── IngressRuleRepository ─────────────────────────────────────────────────────

type IngressRuleRepository struct{ db *pgxpool.Pool }

func NewIngressRuleRepository(db *pgxpool.Pool) *IngressRuleRepository {
	return &IngressRuleRepository{db: db}
}

func (r *IngressRuleRepository) Create(ctx context.Context, rule *models.IngressRule) error {
	const q = `INSERT INTO ingress_rules
		(id,tunnel_id,hostname,path,service,is_catch_all,origin_request,position,created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,now()) RETURNING created_at`
	return r.db.QueryRow(ctx, q,
		rule.ID, rule.TunnelID, rule.Hostname, rule.Path, rule.Service,
		rule.IsCatchAll, rule.OriginRequest, rule.Position,
	).Scan(&rule.CreatedAt)
}

// ListByTunnel returns the tunnel's rules in publish order.
func (r *IngressRuleRepository) ListByTunnel(ctx context.Context, tunnelID uuid.UUID) ([]models.IngressRule, error) {
	const q = `SELECT id,tunnel_id,hostname,path,service,is_catch_all,origin_request,position,created_at
		FROM ingress_rules WHERE tunnel_id=$1 ORDER BY position ASC, created_at ASC`
	rows, err := r.db.Query(ctx, q, tunnelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.IngressRule
	for rows.Next() {
		var rule models.IngressRule
		if err := rows.Scan(&rule.ID, &rule.TunnelID, &rule.Hostname, &rule.Path,
			&rule.Service, &rule.IsCatchAll, &rule.OriginRequest, &rule.Position,
			&rule.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ListHostnamesForDomain joins published ingress rules with their tunnels,
// yielding the hostname→tunnel pairs a domain's CNAME sweep must ensure.
// Catch-all rules have no hostname to publish and are excluded.
func (r *IngressRuleRepository) ListHostnamesForDomain(ctx context.Context, domainID uuid.UUID) ([]models.HostnameTarget, error) {
	const q = `SELECT ir.hostname, t.tunnel_id
		FROM ingress_rules ir
		JOIN tunnels t ON t.id = ir.tunnel_id
		JOIN domains d ON d.account_id = t.account_id
		WHERE d.id = $1
		  AND ir.is_catch_all = false
		  AND ir.hostname <> ''
		  AND (ir.hostname = d.name OR ir.hostname LIKE '%.' || d.name)
		ORDER BY ir.hostname`
	rows, err := r.db.Query(ctx, q, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HostnameTarget
	for rows.Next() {
		var ht models.HostnameTarget
		if err := rows.Scan(&ht.Hostname, &ht.TunnelID); err != nil {
			return nil, err
		}
		out = append(out, ht)
	}
	return out, rows.Err()
}

func (r *IngressRuleRepository) Update(ctx context.Context, rule *models.IngressRule) error {
	const q = `UPDATE ingress_rules
		SET hostname=$2, path=$3, service=$4, is_catch_all=$5, origin_request=$6, position=$7
		WHERE id=$1`
	_, err := r.db.Exec(ctx, q,
		rule.ID, rule.Hostname, rule.Path, rule.Service, rule.IsCatchAll,
		rule.OriginRequest, rule.Position)
	return err
}

func (r *IngressRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM ingress_rules WHERE id=$1`, id)
	return err
}

// ── DomainRepository ──────────────────────────────────────────────────────────

type DomainRepository struct{ db *pgxpool.Pool }

func NewDomainRepository(db *pgxpool.Pool) *DomainRepository {
	return &DomainRepository{db: db}
}

func (r *DomainRepository) Create(ctx context.Context, d *models.Domain) error {
	const q = `INSERT INTO domains(id,account_id,zone_id,name,created_at)
		VALUES($1,$2,$3,$4,now()) RETURNING created_at`
	return r.db.QueryRow(ctx, q, d.ID, d.AccountID, d.ZoneID, d.Name).Scan(&d.CreatedAt)
}

func (r *DomainRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Domain, error) {
	const q = `SELECT id,account_id,zone_id,name,created_at FROM domains WHERE id=$1`
	d := &models.Domain{}
	err := r.db.QueryRow(ctx, q, id).Scan(&d.ID, &d.AccountID, &d.ZoneID, &d.Name, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("domain get: %w", err)
	}
	return d, nil
}

func (r *DomainRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Domain, error) {
	const q = `SELECT id,account_id,zone_id,name,created_at
		FROM domains WHERE account_id=$1 ORDER BY name`
	rows, err := r.db.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Domain
	for rows.Next() {
		d := &models.Domain{}
		if err := rows.Scan(&d.ID, &d.AccountID, &d.ZoneID, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DomainRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM domains WHERE id=$1`, id)
	return err
}

// ── DNSRecordRepository ───────────────────────────────────────────────────────

type DNSRecordRepository struct{ db *pgxpool.Pool }

func NewDNSRecordRepository(db *pgxpool.Pool) *DNSRecordRepository {
	return &DNSRecordRepository{db: db}
}

// Upsert mirrors a remote record locally, keyed by its remote ID.
func (r *DNSRecordRepository) Upsert(ctx context.Context, rec *models.DNSRecord) error {
	const q = `INSERT INTO dns_records
		(id,domain_id,record_id,type,name,content,proxied,ttl,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		ON CONFLICT (domain_id,record_id) DO UPDATE
		SET type=EXCLUDED.type, name=EXCLUDED.name, content=EXCLUDED.content,
		    proxied=EXCLUDED.proxied, ttl=EXCLUDED.ttl, updated_at=now()
		RETURNING created_at,updated_at`
	return r.db.QueryRow(ctx, q,
		rec.ID, rec.DomainID, rec.RecordID, rec.Type, rec.Name, rec.Content,
		rec.Proxied, rec.TTL,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *DNSRecordRepository) ListByDomain(ctx context.Context, domainID uuid.UUID) ([]*models.DNSRecord, error) {
	const q = `SELECT id,domain_id,record_id,type,name,content,proxied,ttl,created_at,updated_at
		FROM dns_records WHERE domain_id=$1 ORDER BY name`
	rows, err := r.db.Query(ctx, q, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.DNSRecord
	for rows.Next() {
		rec := &models.DNSRecord{}
		if err := rows.Scan(&rec.ID, &rec.DomainID, &rec.RecordID, &rec.Type, &rec.Name,
			&rec.Content, &rec.Proxied, &rec.TTL, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *DNSRecordRepository) DeleteByRecordID(ctx context.Context, domainID uuid.UUID, recordID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM dns_records WHERE domain_id=$1 AND record_id=$2`, domainID, recordID)
	return err
}

// ── ProtectionRepository ──────────────────────────────────────────────────────

type ProtectionRepository struct{ db *pgxpool.Pool }

func NewProtectionRepository(db *pgxpool.Pool) *ProtectionRepository {
	return &ProtectionRepository{db: db}
}

func (r *ProtectionRepository) Create(ctx context.Context, p *models.AccessProtection) error {
	const q = `INSERT INTO access_protections
		(id,domain_id,hostname,app_id,token_id,client_id,client_secret_enc,policy_id,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,now(),now()) RETURNING created_at,updated_at`
	return r.db.QueryRow(ctx, q,
		p.ID, p.DomainID, p.Hostname, p.AppID, p.TokenID, p.ClientID,
		p.ClientSecretEnc, p.PolicyID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProtectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessProtection, error) {
	const q = `SELECT id,domain_id,hostname,app_id,token_id,client_id,client_secret_enc,policy_id,created_at,updated_at
		FROM access_protections WHERE id=$1`
	p := &models.AccessProtection{}
	err := r.db.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.DomainID, &p.Hostname, &p.AppID, &p.TokenID, &p.ClientID,
		&p.ClientSecretEnc, &p.PolicyID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("protection get: %w", err)
	}
	return p, nil
}

func (r *ProtectionRepository) GetByHostname(ctx context.Context, hostname string) (*models.AccessProtection, error) {
	const q = `SELECT id,domain_id,hostname,app_id,token_id,client_id,client_secret_enc,policy_id,created_at,updated_at
		FROM access_protections WHERE hostname=$1`
	p := &models.AccessProtection{}
	err := r.db.QueryRow(ctx, q, hostname).Scan(
		&p.ID, &p.DomainID, &p.Hostname, &p.AppID, &p.TokenID, &p.ClientID,
		&p.ClientSecretEnc, &p.PolicyID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("protection get: %w", err)
	}
	return p, nil
}

func (r *ProtectionRepository) ListByDomain(ctx context.Context, domainID uuid.UUID) ([]*models.AccessProtection, error) {
	const q = `SELECT id,domain_id,hostname,app_id,token_id,client_id,client_secret_enc,policy_id,created_at,updated_at
		FROM access_protections WHERE domain_id=$1 ORDER BY hostname`
	rows, err := r.db.Query(ctx, q, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.AccessProtection
	for rows.Next() {
		p := &models.AccessProtection{}
		if err := rows.Scan(&p.ID, &p.DomainID, &p.Hostname, &p.AppID, &p.TokenID,
			&p.ClientID, &p.ClientSecretEnc, &p.PolicyID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateCredentials overwrites the remote IDs and secret after a rotation.
func (r *ProtectionRepository) UpdateCredentials(ctx context.Context, p *models.AccessProtection) error {
	const q = `UPDATE access_protections
		SET app_id=$2, token_id=$3, client_id=$4, client_secret_enc=$5, policy_id=$6, updated_at=now()
		WHERE id=$1`
	_, err := r.db.Exec(ctx, q,
		p.ID, p.AppID, p.TokenID, p.ClientID, p.ClientSecretEnc, p.PolicyID)
	return err
}

func (r *ProtectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM access_protections WHERE id=$1`, id)
	return err
}

// ── StackRepository ───────────────────────────────────────────────────────────

type StackRepository struct{ db *pgxpool.Pool }

func NewStackRepository(db *pgxpool.Pool) *StackRepository {
	return &StackRepository{db: db}
}

// Upsert mirrors one Portainer stack, keyed by endpoint and remote stack ID.
// synced_at comes from the caller's sweep clock, not the database clock, so
// DeleteStale compares timestamps from a single clock.
func (r *StackRepository) Upsert(ctx context.Context, s *models.Stack) error {
	const q = `INSERT INTO stacks(id,endpoint_id,stack_id,name,status,synced_at,created_at)
		VALUES($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (endpoint_id,stack_id) DO UPDATE
		SET name=EXCLUDED.name, status=EXCLUDED.status, synced_at=EXCLUDED.synced_at
		RETURNING created_at`
	return r.db.QueryRow(ctx, q, s.ID, s.EndpointID, s.StackID, s.Name, s.Status, s.SyncedAt).
		Scan(&s.CreatedAt)
}

func (r *StackRepository) List(ctx context.Context) ([]*models.Stack, error) {
	const q = `SELECT id,endpoint_id,stack_id,name,status,synced_at,created_at
		FROM stacks ORDER BY endpoint_id, name`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Stack
	for rows.Next() {
		s := &models.Stack{}
		if err := rows.Scan(&s.ID, &s.EndpointID, &s.StackID, &s.Name, &s.Status,
			&s.SyncedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteStale drops mirrored stacks not seen since the given sweep start, so
// stacks removed in Portainer disappear locally after a sync.
func (r *StackRepository) DeleteStale(ctx context.Context, endpointID int, since time.Time) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM stacks WHERE endpoint_id=$1 AND synced_at < $2`, endpointID, since)
	return err
}

// ── SyncRunRepository ─────────────────────────────────────────────────────────

type SyncRunRepository struct{ db *pgxpool.Pool }

func NewSyncRunRepository(db *pgxpool.Pool) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Create(ctx context.Context, s *models.SyncRun) error {
	const q = `INSERT INTO sync_runs(id,domain_id,status,created_at)
		VALUES($1,$2,$3,now()) RETURNING created_at`
	return r.db.QueryRow(ctx, q, s.ID, s.DomainID, s.Status).Scan(&s.CreatedAt)
}

func (r *SyncRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	const q = `SELECT id,domain_id,status,created,updated,skipped,failed,err_msg,started_at,finished_at,created_at
		FROM sync_runs WHERE id=$1`
	s := &models.SyncRun{}
	err := r.db.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.DomainID, &s.Status, &s.Created, &s.Updated, &s.Skipped, &s.Failed,
		&s.ErrMsg, &s.StartedAt, &s.FinishedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sync_run get: %w", err)
	}
	return s, nil
}

func (r *SyncRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sync_runs SET status=$2, started_at=now() WHERE id=$1`,
		id, models.SyncStatusRunning)
	return err
}

// Finish records the terminal status and the created/updated/skipped/failed
// counts of one sweep.
func (r *SyncRunRepository) Finish(ctx context.Context, s *models.SyncRun) error {
	const q = `UPDATE sync_runs
		SET status=$2, created=$3, updated=$4, skipped=$5, failed=$6, err_msg=$7, finished_at=now()
		WHERE id=$1`
	_, err := r.db.Exec(ctx, q,
		s.ID, s.Status, s.Created, s.Updated, s.Skipped, s.Failed, s.ErrMsg)
	return err
}

func (r *SyncRunRepository) ListByDomain(ctx context.Context, domainID uuid.UUID, limit int) ([]*models.SyncRun, error) {
	const q = `SELECT id,domain_id,status,created,updated,skipped,failed,err_msg,started_at,finished_at,created_at
		FROM sync_runs WHERE domain_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, q, domainID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.SyncRun
	for rows.Next() {
		s := &models.SyncRun{}
		if err := rows.Scan(&s.ID, &s.DomainID, &s.Status, &s.Created, &s.Updated,
			&s.Skipped, &s.Failed, &s.ErrMsg, &s.StartedAt, &s.FinishedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
