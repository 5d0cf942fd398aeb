package saml

import "strings"

// ResolveAuthnContext normalizes the authn-context setting to a list of
// class references. The value may arrive as a bare string, a bracketed
// pseudo-list left over from shell quoting, or an actual list; callers never
// see a bare string.
func ResolveAuthnContext(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		if len(v) == 0 {
			return nil
		}
		return v
	case string:
		if v == "" {
			return nil
		}
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			return splitPseudoList(v)
		}
		return []string{v}
	default:
		return nil
	}
}

// splitPseudoList strips quotes, brackets, and spaces, then splits on commas
// and discards empty entries.
func splitPseudoList(value string) []string {
	cleaner := strings.NewReplacer("[", "", "]", "", `"`, "", "'", "", " ", "")
	var entries []string
	for _, entry := range strings.Split(cleaner.Replace(value), ",") {
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}
