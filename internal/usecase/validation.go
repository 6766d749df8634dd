package usecase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength = 3
	maxNameLength = 50
)

var phonePattern = regexp.MustCompile(`^09[0-9]{9}$`)

// allowedEmailDomains lists the mail providers accepted at registration.
var allowedEmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"google.com":     {},
	"outlook.com":    {},
	"outlook.org":    {},
	"hotmail.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"yahoo.com":      {},
	"yahoo.co.uk":    {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"aol.com":        {},
	"protonmail.com": {},
	"zoho.com":       {},
	"mail.com":       {},
	"gmx.com":        {},
	"rediffmail.com": {},
	"inbox.com":      {},
	"fastmail.com":   {},
	"btinternet.com": {},
}

func validateName(field, value string) string {
	length := utf8.RuneCountInString(strings.TrimSpace(value))
	if length < minNameLength || length > maxNameLength {
		return fmt.Sprintf("%s must be between %d and %d characters", field, minNameLength, maxNameLength)
	}
	return ""
}

func validateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "email is required"
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "email is not a valid address"
	}

	at := strings.LastIndex(addr.Address, "@")
	if _, ok := allowedEmailDomains[strings.ToLower(addr.Address[at+1:])]; !ok {
		return "email domain is not supported"
	}

	return ""
}

func validatePhone(phone string) string {
	if !phonePattern.MatchString(strings.TrimSpace(phone)) {
		return "phone number must be 11 digits starting with 09"
	}
	return ""
}

func appendProblem(problems []string, problem string) []string {
	if problem == "" {
		return problems
	}
	return append(problems, problem)
}
