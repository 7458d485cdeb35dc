package storefront

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"tradelink/internal/model"
)

var (
	// productIDPattern finds the numeric product id in the routing segment URL
	// the storefront embeds in every product page.
	productIDPattern = regexp.MustCompile(`/_v/segment/routing/vtex\.store@2\.x/product/(\d+)/`)

	// capacitySuffix matches a capacity embedded in a product slug, e.g. "-128gb".
	capacitySuffix = regexp.MustCompile(`(?i)-\d+[gt]b`)
)

// referenceClass is the class fragment of the element holding the model reference.
const referenceClass = "productReferenceId"

// extractProductID returns the numeric product id embedded in a product page.
func extractProductID(page string) (string, bool) {
	m := productIDPattern.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// extractReferenceID returns the text of the <strong> element whose class
// contains productReferenceId.
func extractReferenceID(page string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", false
	}

	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "strong" && hasClass(n, referenceClass) {
			found = strings.TrimSpace(textContent(n))
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	return found, found != ""
}

func hasClass(n *html.Node, fragment string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.Contains(a.Val, fragment) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// NormalizeProductURL reduces a product URL to its capacity-independent base:
// query and fragment are dropped, the path is cut at the "/p" segment and any
// embedded capacity suffix is removed.
// Example: https://h/br/galaxy-m15-128gb/p?skuId=1 → https://h/br/galaxy-m15/p
func NormalizeProductURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""

	segments := strings.Split(u.Path, "/")
	cut := -1
	// segment 0 is empty, 1 is the locale
	for i := 2; i < len(segments); i++ {
		if segments[i] == "p" {
			cut = i
			break
		}
	}
	if cut < 0 {
		return "", fmt.Errorf("no product segment in %s", raw)
	}
	segments = segments[:cut+1]
	for i := 2; i < cut; i++ {
		segments[i] = capacitySuffix.ReplaceAllString(segments[i], "")
	}

	u.Path = strings.Join(segments, "/")
	u.RawPath = ""
	return u.String(), nil
}

// capacityURL builds the capacity-specific page URL from a normalized base URL.
// Example: (https://h/br/galaxy-s24/p, "512 GB") → https://h/br/galaxy-s24-512gb/p
func capacityURL(base, label string) string {
	return strings.TrimSuffix(base, "/p") + "-" + model.CapacitySlug(label) + "/p"
}
