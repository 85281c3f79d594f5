// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// RetentionPolicy controls which archives survive a prune pass.
//
// RetainCount distinguishes absent (nil, count step skipped) from zero
// (every archive deleted). Treat an explicit zero with care; it is easy to
// produce from a loosely typed config source.
type RetentionPolicy struct {
	// RetainCount keeps the N most recently modified archives.
	RetainCount *int `json:"retain_count,omitempty"`

	// RetainDays deletes archives older than this many days (0 = disabled).
	RetainDays int `json:"retain_days"`

	// PreRestoreKeepDays exempts "pre-" archives younger than this many days
	// from the age step (0 = disabled).
	PreRestoreKeepDays int `json:"pre_restore_keep_days"`
}

// IntPtr returns a pointer to n, for building a RetainCount.
func IntPtr(n int) *int {
	return &n
}

// IsEmpty reports whether the policy would never delete anything.
func (p *RetentionPolicy) IsEmpty() bool {
	return p == nil || (p.RetainCount == nil && p.RetainDays == 0)
}

// Validate rejects negative values.
func (p *RetentionPolicy) Validate() error {
	if p == nil {
		return nil
	}
	if p.RetainCount != nil && *p.RetainCount < 0 {
		return fmt.Errorf("retain_count must be >= 0, got %d", *p.RetainCount)
	}
	if p.RetainDays < 0 {
		return fmt.Errorf("retain_days must be >= 0, got %d", p.RetainDays)
	}
	if p.PreRestoreKeepDays < 0 {
		return fmt.Errorf("pre_restore_keep_days must be >= 0, got %d", p.PreRestoreKeepDays)
	}
	return nil
}

// String renders the policy for logs.
func (p *RetentionPolicy) String() string {
	if p == nil {
		return "none"
	}
	count := "unset"
	if p.RetainCount != nil {
		count = fmt.Sprintf("%d", *p.RetainCount)
	}
	return fmt.Sprintf("retain_count=%s retain_days=%d pre_restore_keep_days=%d", count, p.RetainDays, p.PreRestoreKeepDays)
}

// rawPolicy mirrors the loosely typed policy keys.
type rawPolicy struct {
	RetainCount        *int `mapstructure:"retain_count"`
	RetentionCount     *int `mapstructure:"retention_count"`
	RetainDays         int  `mapstructure:"retain_days"`
	PreRestoreKeepDays int  `mapstructure:"pre_restore_keep_days"`
}

// RetentionPolicyFromMap builds a policy from a loosely typed map such as a
// decoded YAML or JSON document. Numbers may be ints, floats or numeric
// strings. "retention_count" is accepted when "retain_count" is absent. A
// key with a null value counts as absent. A nil map yields a nil policy.
func RetentionPolicyFromMap(m map[string]any) (*RetentionPolicy, error) {
	if m == nil {
		return nil, nil
	}

	var raw rawPolicy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create policy decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return nil, fmt.Errorf("invalid retention policy: %w", err)
	}

	policy := &RetentionPolicy{
		RetainCount:        raw.RetainCount,
		RetainDays:         raw.RetainDays,
		PreRestoreKeepDays: raw.PreRestoreKeepDays,
	}
	if policy.RetainCount == nil {
		policy.RetainCount = raw.RetentionCount
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}
