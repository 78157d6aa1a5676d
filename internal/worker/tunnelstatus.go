package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slimani-dev/muraqib/internal/cloudflare"
	"github.com/slimani-dev/muraqib/internal/config"
	"github.com/slimani-dev/muraqib/internal/queue"
)

// TunnelStatusProcessor refreshes the cached status of every mirrored tunnel
// of one account and pushes changes to connected dashboards.
type TunnelStatusProcessor struct {
	tunnels   TunnelStore
	accounts  AccountStore
	kms       Decryptor
	publisher StatusPublisher
	cfCfg     config.CloudflareConfig
	log       *zap.Logger
	limiter   *rate.Limiter

	newClient func(cfg config.CloudflareConfig, accountID, apiToken string) TunnelInspector
}

func NewTunnelStatusProcessor(tunnels TunnelStore, accounts AccountStore, kms Decryptor, publisher StatusPublisher, cfCfg config.CloudflareConfig, log *zap.Logger) *TunnelStatusProcessor {
	var limiter *rate.Limiter
	if cfCfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfCfg.RateLimit), 1)
	}
	return &TunnelStatusProcessor{
		tunnels:   tunnels,
		accounts:  accounts,
		kms:       kms,
		publisher: publisher,
		cfCfg:     cfCfg,
		log:       log,
		limiter:   limiter,
		newClient: func(cfg config.CloudflareConfig, accountID, apiToken string) TunnelInspector {
			return cloudflare.NewClient(cfg, accountID, apiToken)
		},
	}
}

func (p *TunnelStatusProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseTunnelStatusPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	account, err := p.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	apiToken, err := p.kms.Decrypt(account.APITokenEnc)
	if err != nil {
		return fmt.Errorf("decrypt api token: %w", err)
	}

	mirrored, err := p.tunnels.ListByAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("list tunnels: %w", err)
	}

	client := p.newClient(p.cfCfg, account.CFAccountID, apiToken)

	for _, tn := range mirrored {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		details, err := client.TunnelDetails(ctx, tn.TunnelID)
		if err != nil {
			return fmt.Errorf("tunnel details %s: %w", tn.TunnelID, err)
		}

		status := "unknown"
		if details != nil {
			status = details.Status
			tn.ConnsActiveAt = details.ConnsActiveAt
		}
		if status == tn.Status {
			continue
		}

		tn.Status = status
		if err := p.tunnels.UpdateStatus(ctx, tn.ID, tn.Status, tn.ConnsActiveAt); err != nil {
			return fmt.Errorf("update tunnel %s: %w", tn.ID, err)
		}
		if p.publisher != nil {
			p.publisher.PublishTunnelStatus(tn)
		}
		p.log.Debug("tunnel status changed",
			zap.String("tunnel", tn.Name),
			zap.String("status", tn.Status),
		)
	}
	return nil
}
