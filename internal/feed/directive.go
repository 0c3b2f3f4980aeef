package feed

import (
	"fmt"
	"slices"
	"strings"

	ext "github.com/mmcdole/gofeed/extensions"

	"crosspost/internal/social"
)

// ExtensionPrefix is the prefix feeds bind to https://indieweb.tools/rss.
// gofeed keys extensions by prefix, so the prefix is what is matched.
const ExtensionPrefix = "iwt"

// ParseDirective reads the <iwt:extension> element of an item. It returns
// nil, nil when the item has no extension.
func ParseDirective(exts ext.Extensions) (*Directive, error) {
	byName, ok := exts[ExtensionPrefix]
	if !ok {
		return nil, nil
	}
	roots := byName["extension"]
	if len(roots) == 0 {
		return nil, nil
	}
	root := roots[0]

	d := &Directive{}
	for _, list := range root.Children["targetNetworks"] {
		for _, tn := range list.Children["targetNetwork"] {
			n, err := social.ParseNetwork(tn.Value)
			if err != nil {
				return nil, fmt.Errorf("invalid target network: %w", err)
			}
			if !slices.Contains(d.TargetNetworks, n) {
				d.TargetNetworks = append(d.TargetNetworks, n)
			}
		}
	}
	for _, list := range root.Children["tags"] {
		for _, tag := range list.Children["tag"] {
			if v := strings.TrimSpace(tag.Value); v != "" {
				d.Tags = append(d.Tags, v)
			}
		}
	}
	if cws := root.Children["contentWarning"]; len(cws) > 0 {
		d.ContentWarning = strings.TrimSpace(cws[0].Value)
	}
	return d, nil
}
