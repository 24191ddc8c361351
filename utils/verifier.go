package utils

import (
	"strings"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

// DomainCheckResult summarizes deliverability checks for an email address.
type DomainCheckResult struct {
	Email       string `json:"email"`
	Status      string `json:"status"` // valid, invalid, unknown
	Details     string `json:"details"`
	MXValid     bool   `json:"mx_valid"`
	WHOIS       string `json:"whois,omitempty"`
}

// CheckEmailDomain verifies an address before it is attached to a sending
// account or contact: syntax, MX records for the domain, and WHOIS data for
// manual review. Network failures degrade to status "unknown" rather than
// blocking the caller.
func CheckEmailDomain(email string) *DomainCheckResult {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &DomainCheckResult{Email: email, Status: "unknown"}

	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "invalid email format: " + err.Error()
		return result
	}

	domain := ExtractDomain(email)
	if domain == "" {
		result.Status = "invalid"
		result.Details = "invalid email format"
		return result
	}

	if err := checkmail.ValidateHost(domain); err != nil {
		result.Status = "invalid"
		result.Details = "domain validation failed: " + err.Error()
		return result
	}
	result.MXValid = true
	result.Status = "valid"

	if whoisInfo, err := whois.Whois(domain); err == nil {
		result.WHOIS = whoisInfo
	}

	return result
}

// ExtractDomain extracts the domain part of an email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}
