package saml

import "strings"

// GroomKeyData trims PEM text down to the most recent BEGIN/END boundary
// pair. Key material exported from some identity providers carries bag
// attributes ahead of the armor; only the armored block is usable. Text
// without a BEGIN marker is returned trimmed, unmodified.
func GroomKeyData(data string) string {
	trimmed := strings.TrimSpace(data)
	idx := strings.LastIndex(trimmed, "-----BEGIN")
	if idx < 0 {
		return trimmed
	}
	return strings.TrimSpace(trimmed[idx:])
}

// MassageCertificate reduces a PEM certificate to a single unbroken base64
// string, the shape SAML key descriptors expect. Header and footer lines are
// dropped and the body lines joined.
func MassageCertificate(data string) string {
	groomed := GroomKeyData(data)
	var body []string
	for _, line := range strings.Split(groomed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		body = append(body, line)
	}
	return strings.Join(body, "")
}
