// Package archive exports periodic fleet snapshots to object storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// Snapshot is the document written for every export.
type Snapshot struct {
	TakenAt   time.Time             `json:"takenAt"`
	Robots    []*model.Robot        `json:"robots"`
	Instances []*model.TaskInstance `json:"instances"`
}

// Archiver reads the fleet state and uploads it. It never modifies the store.
type Archiver struct {
	provider Provider
	repo     core.Repository
	prefix   string
	clock    clock.WithTicker
}

// New creates an Archiver writing under prefix. A nil clock uses wall time.
func New(provider Provider, repo core.Repository, prefix string, clk clock.WithTicker) *Archiver {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Archiver{provider: provider, repo: repo, prefix: prefix, clock: clk}
}

// Export writes one snapshot and returns its object key.
func (a *Archiver) Export(ctx context.Context) (string, error) {
	robots, err := a.repo.Robot().List(ctx)
	if err != nil {
		return "", err
	}
	instances, err := a.repo.Instance().List(ctx, core.InstanceFilter{})
	if err != nil {
		return "", err
	}

	snap := &Snapshot{TakenAt: a.clock.Now().UTC(), Robots: robots, Instances: instances}
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := path.Join(a.prefix, snap.TakenAt.Format("20060102T150405Z")+".json")
	if err := a.provider.PutObject(ctx, key, "application/json", body); err != nil {
		return "", err
	}
	return key, nil
}

// Run checks the bucket, then exports every interval until ctx is done.
// Failed exports are logged and retried on the next interval.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	if err := a.provider.CheckBucket(ctx); err != nil {
		return err
	}

	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Snapshot archiver started", "interval", interval, "prefix", a.prefix)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			key, err := a.Export(ctx)
			if err != nil {
				log.Error(err, "Snapshot export failed")
				continue
			}
			log.Info("Snapshot exported", "key", key)
		}
	}
}
