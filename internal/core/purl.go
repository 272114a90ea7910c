package core

import (
	"fmt"

	packageurl "github.com/package-url/packageurl-go"
)

// PURL type and namespace used for package keys.
const (
	PURLType      = "alpm"
	PURLNamespace = "aur"
)

// PURL wraps packageurl.PackageURL with key helpers.
type PURL struct {
	packageurl.PackageURL
}

// Key returns the package key named by the PURL.
func (p PURL) Key() PackageKey {
	return PackageKey(p.Name)
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:alpm/aur/yay) and version PURLs (pkg:alpm/aur/yay@12.3.5-1).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// KeyPURL renders the PURL for a key, with the version when non-empty.
func KeyPURL(key PackageKey, version string) string {
	p := packageurl.NewPackageURL(PURLType, PURLNamespace, string(key), version, nil, "")
	return p.ToString()
}

// KeyFromPURL extracts the key and version from a PURL. Only alpm PURLs are
// accepted.
func KeyFromPURL(purl string) (PackageKey, string, error) {
	p, err := ParsePURL(purl)
	if err != nil {
		return "", "", err
	}
	if p.Type != PURLType {
		return "", "", fmt.Errorf("PURL type %q is not %s: %s", p.Type, PURLType, purl)
	}
	return p.Key(), p.Version, nil
}
