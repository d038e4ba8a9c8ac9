package utils

import (
	"strings"
)

// NormalizeEmailAddress lowercases and strips an optional "Name <addr>" wrapper
func NormalizeEmailAddress(email string) string {
	email = strings.TrimSpace(email)
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}
	return strings.ToLower(strings.TrimSpace(email))
}

func ExtractDomainFromEmail(email string) string {
	email = NormalizeEmailAddress(email)
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
