package vo

import (
	"errors"
	"strings"
	"testing"
)

const validPolicy = "d5e6bf0500378d4f0da4e8dde6becec7621cd8cbf5cbb9b87013d4cc"

func TestParseCollectionID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantRule Rule
	}{
		{
			name:  "valid lower-case",
			input: validPolicy,
			want:  validPolicy,
		},
		{
			name:  "upper-case folded",
			input: strings.ToUpper(validPolicy),
			want:  validPolicy,
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  " + validPolicy + "\n",
			want:  validPolicy,
		},
		{
			name:     "empty",
			input:    "",
			wantRule: RuleEmpty,
		},
		{
			name:     "whitespace only",
			input:    "   ",
			wantRule: RuleEmpty,
		},
		{
			name:     "too short",
			input:    validPolicy[:55],
			wantRule: RuleLength,
		},
		{
			name:     "too long",
			input:    validPolicy + "0",
			wantRule: RuleLength,
		},
		{
			name:     "non-hex character",
			input:    validPolicy[:10] + "g" + validPolicy[11:],
			wantRule: RuleCharset,
		},
		{
			name:     "asset unit instead of policy",
			input:    validPolicy + "426f6f6b",
			wantRule: RuleLength,
		},
		{
			name:     "embedded space",
			input:    validPolicy[:20] + " " + validPolicy[21:],
			wantRule: RuleCharset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCollectionID(tt.input)
			if tt.wantRule == "" {
				if err != nil {
					t.Fatalf("ParseCollectionID() error = %v", err)
				}
				if got.String() != tt.want {
					t.Errorf("ParseCollectionID() = %q, want %q", got.String(), tt.want)
				}
				if !got.IsValid() {
					t.Error("IsValid() = false, want true")
				}
				return
			}

			var invalid *InvalidIdentifierError
			if !errors.As(err, &invalid) {
				t.Fatalf("ParseCollectionID() error = %v, want *InvalidIdentifierError", err)
			}
			if invalid.Rule != tt.wantRule {
				t.Errorf("Rule = %s, want %s", invalid.Rule, tt.wantRule)
			}
			if got.IsValid() {
				t.Error("invalid input produced a valid CollectionID")
			}
		})
	}
}

func TestInvalidIdentifierError_Error(t *testing.T) {
	_, err := ParseCollectionID(validPolicy[:10] + "z" + validPolicy[11:])
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "position 10") {
		t.Errorf("Error() = %q, want position of offending character", got)
	}

	_, err = ParseCollectionID("abc")
	if got := err.Error(); !strings.Contains(got, "expected 56 characters, got 3") {
		t.Errorf("Error() = %q, want length detail", got)
	}
}

func TestCollectionID_Equals(t *testing.T) {
	a := MustCollectionID(validPolicy)
	b := MustCollectionID(strings.ToUpper(validPolicy))
	if !a.Equals(b) {
		t.Error("IDs differing only in case should be equal after parsing")
	}
}

func TestMustCollectionID_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCollectionID() did not panic on invalid input")
		}
	}()
	MustCollectionID("nope")
}
