// Package model implements the Simple Repository API's unified file
// representation, and translation between its HTML and JSON wire forms.
package model

import (
	"regexp"
	"strings"
)

var nameNormalizeRe = regexp.MustCompile(`[-_.]+`)

// NormalizeName canonicalizes a project name: every maximal run of
// '-', '_' or '.' collapses to a single '-', and the result is lowercased.
// Normalization is idempotent.
func NormalizeName(name string) string {
	return nameNormalizeRe.ReplaceAllString(strings.ToLower(name), "-")
}

// CoreMetadata is the tri-state "does a <file>.metadata sibling exist"
// marker. A nil *CoreMetadata means absent. A non-nil value with an empty
// Hashes map means "present, no hashes asserted". A non-nil value with a
// populated Hashes map names the algorithm(s) the sibling is hashed with.
type CoreMetadata struct {
	Hashes map[string]string
}

// YankedState is the tri-state yanked marker. A nil *YankedState means the
// file was never marked yanked. A non-nil value with an empty Reason means
// "yanked, no reason given"; a non-empty Reason is the upstream-supplied
// explanation. Either way the file is yanked.
type YankedState struct {
	Reason string
}

// File is the unified record for one distribution file, normalized from
// either the HTML or JSON form of a Simple Repository API response.
type File struct {
	// Name is the filename, unique within its project.
	Name string
	// URL is the absolute URL at which upstream serves the file's bytes.
	URL string
	// Hashes maps hash algorithm name (e.g. "sha256") to hex digest.
	Hashes map[string]string
	// RequiresPython is the optional version-specifier string; empty means absent.
	RequiresPython string
	// CoreMetadata signals the <url>.metadata sibling resource, tri-state.
	CoreMetadata *CoreMetadata
	// GPGSig asserts whether a <url>.asc sibling exists; nil means absent.
	GPGSig *bool
	// Yanked marks the file withdrawn, with an optional reason, tri-state.
	Yanked *YankedState
}

// Fragment returns the canonical "algo=digest" URL fragment for this file:
// sha256 if present, otherwise the first available algorithm, otherwise "".
func (f *File) Fragment() string {
	return stringifyHashes(f.Hashes)
}

func stringifyHashes(hashes map[string]string) string {
	if len(hashes) == 0 {
		return ""
	}
	if digest, ok := hashes["sha256"]; ok {
		return "sha256=" + digest
	}
	for algo, digest := range hashes {
		return algo + "=" + digest
	}
	return ""
}

// Attributes reconstructs the HTML anchor attribute set that reproduces
// this file's derived state. The "data-dist-info-metadata" and
// "data-core-metadata" aliases are always kept equal when either is set.
func (f *File) Attributes() map[string]string {
	attrs := make(map[string]string)
	if f.RequiresPython != "" {
		attrs["data-requires-python"] = f.RequiresPython
	}
	if f.CoreMetadata != nil {
		v := stringifyHashes(f.CoreMetadata.Hashes)
		attrs["data-dist-info-metadata"] = v
		attrs["data-core-metadata"] = v
	}
	if f.GPGSig != nil {
		if *f.GPGSig {
			attrs["data-gpg-sig"] = "true"
		} else {
			attrs["data-gpg-sig"] = "false"
		}
	}
	if f.Yanked != nil {
		attrs["data-yanked"] = f.Yanked.Reason
	}
	return attrs
}

func parseHashFragment(s string) map[string]string {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return nil
	}
	return map[string]string{s[:idx]: s[idx+1:]}
}
