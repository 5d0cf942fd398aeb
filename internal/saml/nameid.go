package saml

import (
	"github.com/google/uuid"
)

// NameIDFormatUnspecified is the default subject format when none is set.
const NameIDFormatUnspecified = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"

// AssignNameIdentifier returns a copy of the user with nameID and
// nameIDFormat populated. A missing nameID is derived in priority order from
// the configured claim field, then email, then sub, then a freshly generated
// unique value. The input map is never mutated.
func AssignNameIdentifier(user map[string]any, configuredField string) map[string]any {
	assigned := make(map[string]any, len(user)+2)
	for k, v := range user {
		assigned[k] = v
	}

	if stringClaim(assigned, "nameID") == "" {
		nameID := ""
		for _, field := range []string{configuredField, "email", "sub"} {
			if field == "" {
				continue
			}
			if v := stringClaim(assigned, field); v != "" {
				nameID = v
				break
			}
		}
		if nameID == "" {
			nameID = uuid.NewString()
		}
		assigned["nameID"] = nameID
	}

	if stringClaim(assigned, "nameIDFormat") == "" {
		assigned["nameIDFormat"] = NameIDFormatUnspecified
	}
	return assigned
}

func stringClaim(claims map[string]any, name string) string {
	v, _ := claims[name].(string)
	return v
}
