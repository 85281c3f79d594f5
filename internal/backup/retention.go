// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
retention.go - Retention Pruning

Retention Rules (applied in order):
 1. Count: with retain_count set, keep the N most recently modified archives
    and delete the rest. retain_count=0 deletes every archive. When the key
    is absent this step is skipped entirely.
 2. Age: with retain_days > 0, delete any remaining archive older than that.
    Archives named "pre-*" stay while younger than pre_restore_keep_days.

Every .zip in the backups directory is considered, whatever created it.
Deletes are best effort: one failure is logged and pruning continues.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tomtom215/stowage/internal/logging"
)

const day = 24 * time.Hour

// Pruner applies a RetentionPolicy to a backups directory.
type Pruner struct {
	store    *Store
	recorder Recorder
	now      func() time.Time
}

// NewPruner creates a Pruner. recorder may be nil.
func NewPruner(store *Store, recorder Recorder) *Pruner {
	return &Pruner{
		store:    store,
		recorder: recorderOrNop(recorder),
		now:      time.Now,
	}
}

// decision is the verdict for one archive.
type decision struct {
	archive Archive
	reasons []string
	delete  bool
}

func (d *decision) keep(format string, args ...interface{}) {
	d.reasons = append(d.reasons, fmt.Sprintf(format, args...))
}

func (d *decision) drop(format string, args ...interface{}) {
	d.delete = true
	d.reasons = []string{fmt.Sprintf(format, args...)}
}

// evaluate lists the archives newest first by modification time and applies
// the count step then the age step.
func (p *Pruner) evaluate(backupsDir string, policy *RetentionPolicy) []decision {
	archives := p.store.scan(backupsDir, "", false)
	sort.SliceStable(archives, func(i, j int) bool {
		if archives[i].ModTime.Equal(archives[j].ModTime) {
			return archives[i].Name > archives[j].Name
		}
		return archives[i].ModTime.After(archives[j].ModTime)
	})

	now := p.now()
	decisions := make([]decision, len(archives))
	for i, a := range archives {
		d := decision{archive: a}

		if policy.RetainCount != nil {
			n := *policy.RetainCount
			if i >= n {
				d.drop("exceeds retain_count=%d", n)
				decisions[i] = d
				continue
			}
			d.keep("within newest %d", n)
		}

		if policy.RetainDays > 0 {
			age := now.Sub(a.ModTime)
			switch {
			case age <= time.Duration(policy.RetainDays)*day:
				d.keep("younger than %d days", policy.RetainDays)
			case IsPreRestoreName(a.Name) && policy.PreRestoreKeepDays > 0 &&
				age <= time.Duration(policy.PreRestoreKeepDays)*day:
				d.keep("pre-restore grace period of %d days", policy.PreRestoreKeepDays)
			default:
				d.drop("older than %d days", policy.RetainDays)
			}
		}

		decisions[i] = d
	}
	return decisions
}

// Plan previews a prune pass without deleting anything.
func (p *Pruner) Plan(backupsDir string, policy *RetentionPolicy) (*PrunePlan, error) {
	plan := &PrunePlan{WouldKeep: []PruneItem{}, WouldDelete: []PruneItem{}}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.IsEmpty() {
		for _, a := range p.store.scan(backupsDir, "", false) {
			plan.WouldKeep = append(plan.WouldKeep, pruneItem(a, []string{"no retention policy"}))
			plan.TotalSizeBytes += a.Size
		}
		plan.TotalArchives = len(plan.WouldKeep)
		plan.KeepCount = plan.TotalArchives
		return plan, nil
	}

	for _, d := range p.evaluate(backupsDir, policy) {
		item := pruneItem(d.archive, d.reasons)
		plan.TotalSizeBytes += d.archive.Size
		if d.delete {
			plan.WouldDelete = append(plan.WouldDelete, item)
			plan.DeleteSizeBytes += d.archive.Size
		} else {
			plan.WouldKeep = append(plan.WouldKeep, item)
		}
	}
	plan.KeepCount = len(plan.WouldKeep)
	plan.DeleteCount = len(plan.WouldDelete)
	plan.TotalArchives = plan.KeepCount + plan.DeleteCount
	return plan, nil
}

func pruneItem(a Archive, reasons []string) PruneItem {
	if reasons == nil {
		reasons = []string{}
	}
	return PruneItem{Name: a.Name, Path: a.Path, Size: a.Size, ModTime: a.ModTime, Reasons: reasons}
}

// Prune deletes the archives the policy does not keep. A nil or empty policy
// is a no-op. Only an invalid policy returns an error; delete failures are
// reported in the result.
func (p *Pruner) Prune(backupsDir string, policy *RetentionPolicy) (*PruneResult, error) {
	result := &PruneResult{Deleted: []string{}}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.IsEmpty() {
		logging.Debug().Str("dir", backupsDir).Msg("No retention policy, skipping prune")
		return result, nil
	}

	for _, d := range p.evaluate(backupsDir, policy) {
		if !d.delete {
			continue
		}
		if err := p.store.fs.Remove(d.archive.Path); err != nil {
			logging.Warn().Err(err).Str("archive", d.archive.Name).Msg("Failed to delete archive, continuing")
			result.Failed = append(result.Failed, d.archive.Path)
			continue
		}
		logging.Info().Str("archive", d.archive.Name).Str("reason", d.reasons[0]).Msg("Pruned archive")
		result.Deleted = append(result.Deleted, d.archive.Path)
		result.FreedBytes += d.archive.Size
	}

	logging.Info().
		Str("dir", backupsDir).
		Str("policy", policy.String()).
		Int("deleted", len(result.Deleted)).
		Int("failed", len(result.Failed)).
		Str("freed", humanize.Bytes(uint64(result.FreedBytes))). //nolint:gosec // G115: size is non-negative
		Msg("Retention policy applied")
	p.recorder.RecordPruned(len(result.Deleted), len(result.Failed))
	return result, nil
}
