package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKickoffErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *KickoffError
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &KickoffError{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "Error: something broke",
		},
		{
			name:     "what and why",
			err:      &KickoffError{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input",
		},
		{
			name: "full error",
			err: &KickoffError{
				What: "something broke",
				Why:  "bad input",
				Fix:  "try again",
			},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &KickoffError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "Error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestKickoffErrorJSON(t *testing.T) {
	err := ErrTaskExecutionFailed("git", errors.New("exit status 1"))

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if result["code"] != string(CodeTaskExecutionFailed) {
		t.Errorf("code = %v, want %s", result["code"], CodeTaskExecutionFailed)
	}
	if result["cause"] != "exit status 1" {
		t.Errorf("cause = %v, want exit status 1", result["cause"])
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"catalog invalid", ErrCatalogInvalid("catalog.yaml", []string{"x"}), 1},
		{"capture incomplete", ErrSnapshotCaptureIncomplete("id", []string{"a"}), 2},
		{"restore verification", ErrRestoreVerificationFailed("id", []string{"bad json"}), 3},
		{"restore partial", ErrRestorePartial("id", "pre", []string{"a"}), 3},
		{"repair failed", ErrRepairFailed("reset", errors.New("x")), 3},
		{"wrapped", fmt.Errorf("run: %w", ErrRepairFailed("retry", nil)), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("resolve: %w", ErrSelectorUnresolved("nope", nil))
	if !errors.Is(err, &KickoffError{Code: CodeSelectorUnresolved}) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, &KickoffError{Code: CodeCatalogInvalid}) {
		t.Error("errors.Is should not match a different code")
	}
	if !HasCode(err, CodeSelectorUnresolved) {
		t.Error("HasCode should find wrapped error")
	}
}

func TestSelectorUnresolvedSuggestions(t *testing.T) {
	err := ErrSelectorUnresolved("gi", []string{"git", "github-actions"})
	if got := err.Fix; got == "" || !strings.Contains(got, "git, github-actions") {
		t.Errorf("Fix = %q, want suggestions listed", got)
	}
}

func TestAsKickoffError(t *testing.T) {
	if AsKickoffError(errors.New("plain")) != nil {
		t.Error("plain error should not convert")
	}
	base := ErrNothingToRetry()
	if got := AsKickoffError(fmt.Errorf("wrap: %w", base)); got != base {
		t.Error("wrapped KickoffError should be returned")
	}
}
