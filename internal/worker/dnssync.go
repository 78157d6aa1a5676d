package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/notifications"
	"github.com/slimani-dev/muraqib/internal/queue"
)

// DNSSyncProcessor sweeps one domain, ensuring a proxied CNAME for every
// hostname published through a tunnel, and records the outcome counts on the
// sync run row.
type DNSSyncProcessor struct {
	runs      SyncRunStore
	domains   DomainStore
	accounts  AccountStore
	hostnames HostnameSource
	kms       Decryptor
	notifier  notifications.Notifier // optional
	cfCfg     config.CloudflareConfig
	log       *zap.Logger
	limiter   *rate.Limiter

	// newClient is swapped in tests.
	newClient func(cfg config.CloudflareConfig, accountID, apiToken string) DNSReconciler
}

func NewDNSSyncProcessor(runs SyncRunStore, domains DomainStore, accounts AccountStore, hostnames HostnameSource, kms Decryptor, notifier notifications.Notifier, cfCfg config.CloudflareConfig, log *zap.Logger) *DNSSyncProcessor {
	var limiter *rate.Limiter
	if cfCfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfCfg.RateLimit), 1)
	}
	return &DNSSyncProcessor{
		runs:      runs,
		domains:   domains,
		accounts:  accounts,
		hostnames: hostnames,
		kms:       kms,
		notifier:  notifier,
		cfCfg:     cfCfg,
		log:       log,
		limiter:   limiter,
		newClient: func(cfg config.CloudflareConfig, accountID, apiToken string) DNSReconciler {
			return cloudflare.NewClient(cfg, accountID, apiToken)
		},
	}
}

func (p *DNSSyncProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseDNSSyncPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	run := &models.SyncRun{ID: payload.SyncRunID, DomainID: payload.DomainID}
	if err := p.runs.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	domain, err := p.domains.GetByID(ctx, payload.DomainID)
	if err != nil {
		return p.failRun(ctx, run, fmt.Errorf("get domain: %w", err))
	}
	account, err := p.accounts.GetByID(ctx, domain.AccountID)
	if err != nil {
		return p.failRun(ctx, run, fmt.Errorf("get account: %w", err))
	}

	apiToken, err := p.kms.Decrypt(account.APITokenEnc)
	if err != nil {
		return p.failRun(ctx, run, fmt.Errorf("decrypt api token: %w", err))
	}

	targets, err := p.hostnames.ListHostnamesForDomain(ctx, domain.ID)
	if err != nil {
		return p.failRun(ctx, run, fmt.Errorf("list hostnames: %w", err))
	}

	client := p.newClient(p.cfCfg, account.CFAccountID, apiToken)

	var failures []string
	for _, target := range targets {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return p.failRun(ctx, run, fmt.Errorf("rate limiter: %w", err))
			}
		}

		outcome, err := client.EnsureCNAME(ctx, domain.ZoneID, target.Hostname, target.TunnelID+".cfargotunnel.com")
		if err != nil {
			run.Failed++
			failures = append(failures, target.Hostname+": "+err.Error())

			// A foreign record owning the name is a per-hostname condition,
			// not a sweep failure. Anything else on a context that is done
			// will fail every remaining hostname too, so stop.
			var conflict *cloudflare.RecordConflictError
			if !errors.As(err, &conflict) && ctx.Err() != nil {
				break
			}
			continue
		}

		switch outcome {
		case cloudflare.EnsureCreated:
			run.Created++
		case cloudflare.EnsureUpdated:
			run.Updated++
		case cloudflare.EnsureSkipped:
			run.Skipped++
		}
	}

	run.Status = models.SyncStatusDone
	if len(failures) > 0 {
		run.Status = models.SyncStatusFailed
		run.ErrMsg = strings.Join(failures, "; ")
	}
	if err := p.runs.Finish(ctx, run); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if run.Status == models.SyncStatusFailed && p.notifier != nil {
		msg := fmt.Sprintf("%d of %d hostnames failed: %s", run.Failed, len(targets), run.ErrMsg)
		if err := p.notifier.SendAlert(ctx, domain.Name, "warning", msg); err != nil {
			p.log.Warn("alert delivery failed", zap.Error(err))
		}
	}

	p.log.Info("dns sweep finished",
		zap.String("domain", domain.Name),
		zap.String("status", string(run.Status)),
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
	)
	return nil
}

func (p *DNSSyncProcessor) failRun(ctx context.Context, run *models.SyncRun, err error) error {
	run.Status = models.SyncStatusFailed
	run.ErrMsg = err.Error()
	_ = p.runs.Finish(ctx, run)
	return err
}
