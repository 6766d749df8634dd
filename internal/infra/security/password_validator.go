package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/atymri/Promptino/internal/core/port"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
// userInputs carries account details a strength estimator should penalise.
type PasswordRule interface {
	Validate(password string, userInputs []string) *PasswordValidationError
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string, userInputs []string) *PasswordValidationError

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string, userInputs []string) *PasswordValidationError {
	return f(password, userInputs)
}

// PasswordPolicy applies every rule and collects all violations.
type PasswordPolicy struct {
	rules []PasswordRule
}

// NewPasswordPolicy constructs a policy with the provided rules.
func NewPasswordPolicy(rules ...PasswordRule) *PasswordPolicy {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordPolicy{rules: copied}
}

// DefaultPasswordPolicy mirrors the account password requirements: at least six characters with a digit,
// a lowercase and an uppercase letter, a non-alphanumeric character, and three distinct characters.
// A positive minStrengthScore additionally enforces a zxcvbn score.
func DefaultPasswordPolicy(minStrengthScore int) *PasswordPolicy {
	return NewPasswordPolicy(
		MinLengthRule(6),
		RequireDigitRule(),
		RequireLowerRule(),
		RequireUpperRule(),
		RequireNonAlphanumericRule(),
		RequireUniqueCharsRule(3),
		RequirePasswordStrengthRule(minStrengthScore),
	)
}

// Check returns every violated rule in declaration order.
func (p *PasswordPolicy) Check(password string, userInputs ...string) []*PasswordValidationError {
	if p == nil {
		return nil
	}
	var violations []*PasswordValidationError
	for _, rule := range p.rules {
		if v := rule.Validate(password, userInputs); v != nil {
			violations = append(violations, v)
		}
	}
	return violations
}

// Violations returns the human-readable messages of every violated rule.
func (p *PasswordPolicy) Violations(password string, userInputs ...string) []string {
	checked := p.Check(password, userInputs...)
	if len(checked) == 0 {
		return nil
	}
	messages := make([]string, 0, len(checked))
	for _, v := range checked {
		messages = append(messages, v.Message)
	}
	return messages
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string, _ []string) *PasswordValidationError {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

func requireRune(code, message string, match func(rune) bool) PasswordRule {
	return PasswordRuleFunc(func(password string, _ []string) *PasswordValidationError {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PasswordValidationError{Code: code, Message: message}
	})
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return requireRune("digit", "password must include at least one digit", func(r rune) bool {
		return r >= '0' && r <= '9'
	})
}

// RequireLowerRule ensures the password contains at least one lowercase letter.
func RequireLowerRule() PasswordRule {
	return requireRune("lowercase", "password must include at least one lowercase letter", unicode.IsLower)
}

// RequireUpperRule ensures the password contains at least one uppercase letter.
func RequireUpperRule() PasswordRule {
	return requireRune("uppercase", "password must include at least one uppercase letter", unicode.IsUpper)
}

// RequireNonAlphanumericRule ensures the password contains a character that is neither a letter nor a digit.
func RequireNonAlphanumericRule() PasswordRule {
	return requireRune("non_alphanumeric", "password must include at least one non-alphanumeric character", func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// RequireUniqueCharsRule ensures the password uses at least min distinct characters.
func RequireUniqueCharsRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string, _ []string) *PasswordValidationError {
		seen := make(map[rune]struct{})
		for _, r := range password {
			seen[r] = struct{}{}
		}
		if len(seen) < min {
			return &PasswordValidationError{
				Code:    "unique_chars",
				Message: fmt.Sprintf("password must use at least %d different characters", min),
			}
		}
		return nil
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score to reject weak passwords.
func RequirePasswordStrengthRule(minScore int) PasswordRule {
	return PasswordRuleFunc(func(password string, userInputs []string) *PasswordValidationError {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
