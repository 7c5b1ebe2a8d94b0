package principals

import (
	"context"
	"strings"
)

// PassthroughDirectory is the fallback used when no external directory is
// wired: it accepts principal uris as-is and resolves "principal:" hrefs.
// Deployments with a real directory service inject their own Directory.
type PassthroughDirectory struct{}

func (PassthroughDirectory) Lookup(_ context.Context, principalURI string) (Principal, bool, error) {
	if principalURI == "" {
		return Principal{}, false, nil
	}
	return Principal{
		URI:         principalURI,
		DisplayName: LocalID(principalURI),
	}, true, nil
}

func (d PassthroughDirectory) LookupByHref(ctx context.Context, href string) (Principal, bool, error) {
	uri := strings.TrimPrefix(href, "principal:")
	if strings.Contains(uri, ":") {
		// mailto: and friends need a real directory to resolve.
		return Principal{}, false, nil
	}
	return d.Lookup(ctx, uri)
}
