package prune

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/config"
)

type recordingPurger struct {
	name    string
	cutoffs []time.Time
	err     error
}

func (p *recordingPurger) Name() string { return p.name }

func (p *recordingPurger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func TestRunOnceUsesRetentionWindow(t *testing.T) {
	purger := &recordingPurger{name: "threads"}
	svc := NewService(nil, config.PruneConfig{Enabled: true, RetainDays: 10}, purger)

	svc.RunOnce(context.Background())

	require.Len(t, purger.cutoffs, 1)
	want := time.Now().UTC().AddDate(0, 0, -10)
	assert.WithinDuration(t, want, purger.cutoffs[0], 5*time.Second)
}

func TestRunOnceDefaultsRetention(t *testing.T) {
	purger := &recordingPurger{name: "threads"}
	svc := NewService(nil, config.PruneConfig{Enabled: true}, purger)

	svc.RunOnce(context.Background())

	require.Len(t, purger.cutoffs, 1)
	want := time.Now().UTC().AddDate(0, 0, -config.DefaultRetainDays)
	assert.WithinDuration(t, want, purger.cutoffs[0], 5*time.Second)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	broken := &recordingPurger{name: "broken", err: errors.New("db down")}
	fine := &recordingPurger{name: "fine"}
	svc := NewService(nil, config.PruneConfig{Enabled: true}, broken, fine)

	svc.RunOnce(context.Background())

	assert.Len(t, broken.cutoffs, 1)
	assert.Len(t, fine.cutoffs, 1)
}

func TestStartDisabled(t *testing.T) {
	svc := NewService(nil, config.PruneConfig{Enabled: false})
	require.NoError(t, svc.Start())
	svc.Stop()
}

func TestStartRejectsBadSpec(t *testing.T) {
	svc := NewService(nil, config.PruneConfig{Enabled: true, Spec: "not a cron spec"})
	assert.Error(t, svc.Start())
}
