package foxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDFromHref(t *testing.T) {
	cases := map[string]string{
		"https://api-sandbox.foxycart.com/transactions/981237": "981237",
		"https://api-sandbox.foxycart.com/carts/55/":           "55",
		"https://api-sandbox.foxycart.com":                     "api-sandbox.foxycart.com",
		"": "",
	}
	for href, want := range cases {
		require.Equal(t, want, idFromHref(href), "href %q", href)
	}
}

func TestLinksHref(t *testing.T) {
	links := Links{"self": {Href: "https://example.test/r/1"}}
	require.Equal(t, "https://example.test/r/1", links.Href("self"))
	require.Empty(t, links.Href("fx:void"))
	require.Empty(t, Links(nil).Href("self"))
}
