package port

// PasswordPolicyValidator enforces password strength requirements and reports every violation.
type PasswordPolicyValidator interface {
	Violations(password string, userInputs ...string) []string
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}
