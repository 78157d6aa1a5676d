package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/models"
	"github.com/slimani-dev/muraqib/internal/queue"
)

// PortainerSyncProcessor mirrors one endpoint's stacks into the local
// database, then drops mirrored stacks the endpoint no longer has.
type PortainerSyncProcessor struct {
	source StackSource
	stacks StackStore
	log    *zap.Logger
}

func NewPortainerSyncProcessor(source StackSource, stacks StackStore, log *zap.Logger) *PortainerSyncProcessor {
	return &PortainerSyncProcessor{source: source, stacks: stacks, log: log}
}

func (p *PortainerSyncProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParsePortainerSyncPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	// Every row touched this sweep carries the same timestamp that
	// DeleteStale later compares against.
	sweepStart := time.Now()

	remote, err := p.source.ListStacks(ctx, payload.EndpointID)
	if err != nil {
		return fmt.Errorf("list stacks: %w", err)
	}

	for _, s := range remote {
		mirror := &models.Stack{
			ID:         uuid.New(),
			EndpointID: s.EndpointID,
			StackID:    s.ID,
			Name:       s.Name,
			Status:     stackStatus(s.Status),
			SyncedAt:   sweepStart,
		}
		if err := p.stacks.Upsert(ctx, mirror); err != nil {
			return fmt.Errorf("upsert stack %q: %w", s.Name, err)
		}
	}

	if err := p.stacks.DeleteStale(ctx, payload.EndpointID, sweepStart); err != nil {
		return fmt.Errorf("delete stale stacks: %w", err)
	}

	p.log.Info("portainer sync finished",
		zap.Int("endpoint_id", payload.EndpointID),
		zap.Int("stacks", len(remote)),
	)
	return nil
}

func stackStatus(code int) string {
	switch code {
	case 1:
		return "active"
	case 2:
		return "inactive"
	default:
		return "unknown"
	}
}
