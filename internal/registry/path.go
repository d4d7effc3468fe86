package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern is the accepted shape of a bot token: numeric bot id, colon, secret.
var tokenPattern = regexp.MustCompile(`^\d+:[\w-]+$`)

// ValidTokenFormat reports whether token looks like a bot token.
func ValidTokenFormat(token string) bool {
	return tokenPattern.MatchString(token)
}

// PathTemplate maps tokens to webhook paths and back. The template holds the
// placeholder exactly once, so the mapping is injective.
type PathTemplate struct {
	prefix string
	suffix string
}

// NewPathTemplate parses a template such as "/webhook/bot/{bot_token}".
func NewPathTemplate(template, placeholder string) (PathTemplate, error) {
	if strings.Count(template, placeholder) != 1 {
		return PathTemplate{}, fmt.Errorf("template %q must contain %s exactly once", template, placeholder)
	}
	prefix, suffix, _ := strings.Cut(template, placeholder)
	return PathTemplate{prefix: prefix, suffix: suffix}, nil
}

// Path returns the webhook path for token.
func (p PathTemplate) Path(token string) string {
	return p.prefix + token + p.suffix
}

// Token recovers the token from a path produced by Path. It reports false when
// path does not match the template or the extracted segment is not a token.
func (p PathTemplate) Token(path string) (string, bool) {
	if !strings.HasPrefix(path, p.prefix) || !strings.HasSuffix(path, p.suffix) {
		return "", false
	}
	if len(path) < len(p.prefix)+len(p.suffix) {
		return "", false
	}
	token := path[len(p.prefix) : len(path)-len(p.suffix)]
	if !ValidTokenFormat(token) {
		return "", false
	}
	return token, true
}

// Pattern is the template itself, usable as a chi route pattern.
func (p PathTemplate) Pattern(placeholder string) string {
	return p.prefix + placeholder + p.suffix
}
