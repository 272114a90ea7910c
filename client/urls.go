package client

import packageurl "github.com/package-url/packageurl-go"

// URLBuilder constructs URLs for a package in a registry.
type URLBuilder interface {
	Registry(name, version string) string
	Download(name, version string) string
	Git(name string) string
	PURL(name, version string) string
}

// BaseURLs provides a URLBuilder from optional functions. Without PURLFn
// it falls back to a generic package URL.
type BaseURLs struct {
	RegistryFn func(name, version string) string
	DownloadFn func(name, version string) string
	GitFn      func(name string) string
	PURLFn     func(name, version string) string
}

func (b *BaseURLs) Registry(name, version string) string {
	if b.RegistryFn != nil {
		return b.RegistryFn(name, version)
	}
	return ""
}

func (b *BaseURLs) Download(name, version string) string {
	if b.DownloadFn != nil {
		return b.DownloadFn(name, version)
	}
	return ""
}

func (b *BaseURLs) Git(name string) string {
	if b.GitFn != nil {
		return b.GitFn(name)
	}
	return ""
}

func (b *BaseURLs) PURL(name, version string) string {
	if b.PURLFn != nil {
		return b.PURLFn(name, version)
	}
	return packageurl.NewPackageURL(packageurl.TypeGeneric, "", name, version, nil, "").ToString()
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "git", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Registry(name, version); v != "" {
		result["registry"] = v
	}
	if v := urls.Download(name, version); v != "" {
		result["download"] = v
	}
	if v := urls.Git(name); v != "" {
		result["git"] = v
	}
	if v := urls.PURL(name, version); v != "" {
		result["purl"] = v
	}
	return result
}
