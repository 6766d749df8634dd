package security

import (
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func violationCodes(p *PasswordPolicy, password string, inputs ...string) map[string]bool {
	codes := make(map[string]bool)
	for _, v := range p.Check(password, inputs...) {
		codes[v.Code] = true
	}
	return codes
}

func TestDefaultPasswordPolicyAcceptsCompliantPassword(t *testing.T) {
	policy := DefaultPasswordPolicy(0)

	if violations := policy.Violations("P@ssw0rd1"); len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
}

func TestDefaultPasswordPolicyReportsEveryViolation(t *testing.T) {
	policy := DefaultPasswordPolicy(0)

	codes := violationCodes(policy, "aaa")
	for _, expected := range []string{"min_length", "digit", "uppercase", "non_alphanumeric", "unique_chars"} {
		if !codes[expected] {
			t.Fatalf("expected violation %s, got %v", expected, codes)
		}
	}
	if codes["lowercase"] {
		t.Fatalf("did not expect lowercase violation for %q", "aaa")
	}
}

func TestDefaultPasswordPolicySingleRules(t *testing.T) {
	policy := DefaultPasswordPolicy(0)

	cases := map[string]string{
		"P@ssword": "digit",
		"p@ssw0rd": "uppercase",
		"P@SSW0RD": "lowercase",
		"Passw0rd": "non_alphanumeric",
		"P@s0":     "min_length",
	}

	for password, code := range cases {
		codes := violationCodes(policy, password)
		if !codes[code] {
			t.Fatalf("expected %s violation for %q, got %v", code, password, codes)
		}
		if len(codes) != 1 {
			t.Fatalf("expected only %s violation for %q, got %v", code, password, codes)
		}
	}
}

func TestPasswordStrengthRule(t *testing.T) {
	policy := NewPasswordPolicy(RequirePasswordStrengthRule(3))

	strong := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(strong, nil); strength.Score < 3 {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if violations := policy.Violations(strong); len(violations) != 0 {
		t.Fatalf("expected strong password to pass, got %v", violations)
	}

	codes := violationCodes(policy, "password")
	if !codes["weak_password"] {
		t.Fatalf("expected weak_password violation, got %v", codes)
	}
}

func TestPasswordStrengthRuleDisabled(t *testing.T) {
	policy := NewPasswordPolicy(RequirePasswordStrengthRule(0))
	if violations := policy.Violations("password"); len(violations) != 0 {
		t.Fatalf("expected disabled strength rule to pass, got %v", violations)
	}
}
