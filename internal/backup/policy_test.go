// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"testing"
)

func TestRetentionPolicyFromMap(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]any
		wantNil   bool
		wantCount *int
		wantDays  int
		wantGrace int
		wantErr   bool
	}{
		{name: "nil map", input: nil, wantNil: true},
		{name: "empty map", input: map[string]any{}},
		{name: "count", input: map[string]any{"retain_count": 5}, wantCount: IntPtr(5)},
		{name: "explicit zero", input: map[string]any{"retain_count": 0}, wantCount: IntPtr(0)},
		{name: "null count is absent", input: map[string]any{"retain_count": nil, "retain_days": 3}, wantDays: 3},
		{name: "float from json", input: map[string]any{"retain_count": float64(7), "retain_days": float64(14)}, wantCount: IntPtr(7), wantDays: 14},
		{name: "numeric strings", input: map[string]any{"retain_count": "3", "pre_restore_keep_days": "2"}, wantCount: IntPtr(3), wantGrace: 2},
		{name: "legacy key", input: map[string]any{"retention_count": 4}, wantCount: IntPtr(4)},
		{name: "new key wins", input: map[string]any{"retain_count": 2, "retention_count": 9}, wantCount: IntPtr(2)},
		{name: "negative count", input: map[string]any{"retain_count": -1}, wantErr: true},
		{name: "negative days", input: map[string]any{"retain_days": -5}, wantErr: true},
		{name: "not a number", input: map[string]any{"retain_days": "soon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RetentionPolicyFromMap(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("RetentionPolicyFromMap() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("RetentionPolicyFromMap() error = %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("policy = %+v, want nil", got)
				}
				return
			}

			switch {
			case tt.wantCount == nil && got.RetainCount != nil:
				t.Errorf("RetainCount = %d, want unset", *got.RetainCount)
			case tt.wantCount != nil && got.RetainCount == nil:
				t.Errorf("RetainCount unset, want %d", *tt.wantCount)
			case tt.wantCount != nil && *got.RetainCount != *tt.wantCount:
				t.Errorf("RetainCount = %d, want %d", *got.RetainCount, *tt.wantCount)
			}
			if got.RetainDays != tt.wantDays {
				t.Errorf("RetainDays = %d, want %d", got.RetainDays, tt.wantDays)
			}
			if got.PreRestoreKeepDays != tt.wantGrace {
				t.Errorf("PreRestoreKeepDays = %d, want %d", got.PreRestoreKeepDays, tt.wantGrace)
			}
		})
	}
}

func TestRetentionPolicy_IsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		policy *RetentionPolicy
		want   bool
	}{
		{"nil", nil, true},
		{"zero value", &RetentionPolicy{}, true},
		{"grace only", &RetentionPolicy{PreRestoreKeepDays: 5}, true},
		{"count zero", &RetentionPolicy{RetainCount: IntPtr(0)}, false},
		{"days", &RetentionPolicy{RetainDays: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetentionPolicy_String(t *testing.T) {
	var nilPolicy *RetentionPolicy
	if got := nilPolicy.String(); got != "none" {
		t.Errorf("nil String() = %q", got)
	}

	p := &RetentionPolicy{RetainCount: IntPtr(3), RetainDays: 7}
	want := "retain_count=3 retain_days=7 pre_restore_keep_days=0"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
