package saml

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"

	"github.com/gobwas/glob"
)

// Provider holds the acceptable assertion consumer endpoints for one service
// provider. Exactly one of the three fields is normally populated.
type Provider struct {
	ACSURL   string   `json:"acsUrl"`
	ACSURLs  []string `json:"acsUrls"`
	ACSURLRe string   `json:"acsUrlRe"`
}

// Directory maps service-provider entity ids to their endpoint rules. Keys
// may contain glob wildcards.
type Directory map[string]Provider

// LoadDirectory reads the provider directory from a JSON file. An empty path
// yields an empty directory, which rejects every request.
func LoadDirectory(path string) (Directory, error) {
	if path == "" {
		return Directory{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider directory: %w", err)
	}
	var dir Directory
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("parse provider directory: %w", err)
	}
	return dir, nil
}

// find locates the entry for the given audience. Exact keys win over glob
// patterns so that overlapping entries resolve deterministically.
func (d Directory) find(audience string) (Provider, bool) {
	if entry, ok := d[audience]; ok {
		return entry, true
	}
	for pattern, entry := range d {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		if g.Match(audience) {
			return entry, true
		}
	}
	return Provider{}, false
}

// ValidateRequest reports whether the recipient endpoint is acceptable for
// the given audience. No match, an unknown audience, and an empty endpoint
// rule all yield false; this never errors.
func (d Directory) ValidateRequest(audience, recipient string) bool {
	if audience == "" || recipient == "" {
		return false
	}
	entry, ok := d.find(audience)
	if !ok {
		return false
	}
	switch {
	case entry.ACSURL != "":
		return entry.ACSURL == recipient
	case len(entry.ACSURLs) > 0:
		return slices.Contains(entry.ACSURLs, recipient)
	case entry.ACSURLRe != "":
		re, err := regexp.Compile(entry.ACSURLRe)
		if err != nil {
			return false
		}
		return re.MatchString(recipient)
	default:
		return false
	}
}
