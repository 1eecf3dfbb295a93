package archive

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"pinarch/internal/model"
)

// pinIDAttr marks the elements carrying a pin identifier in the exported
// markup.
const pinIDAttr = "data-test-pin-id"

// sourceURLTemplate builds the canonical pin link from a pin_id. The link
// is always constructed from the template, never read from the document.
const sourceURLTemplate = "https://pinterest.com/pin/%s/"

// SourceURL builds the canonical pin link for a pin_id.
func SourceURL(pinID string) string {
	return fmt.Sprintf(sourceURLTemplate, pinID)
}

// originalsPathPattern matches a full-resolution media URL. The three
// xx/xx/xx segments are the first hex pairs of the file id, used by the
// source site purely as directory sharding.
var originalsPathPattern = regexp.MustCompile(`/originals/[0-9a-f]{2}/[0-9a-f]{2}/[0-9a-f]{2}/([0-9a-f]{32})\.(\w+)`)

// ExtractSnapshot parses one snapshot document from disk and returns its
// candidate pins, oldest first. Each call re-parses the document, so the
// sequence is restartable and finite.
func ExtractSnapshot(path string, sourceDate int64) ([]model.ParsedPin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	pins, err := ExtractPins(f, sourceDate)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return pins, nil
}

// ExtractPins extracts candidate pins from snapshot markup.
//
// Elements carrying the pin-id marker attribute are collected in document
// order; an element with an empty marker, or without a srcset candidate
// pointing at the originals media size, is skipped whole. The returned
// slice reverses the in-document order: the document lists pins in UI
// order, assumed newest-first, so reversal makes within-document ordering
// consistent with the oldest-first ordering across snapshots. (That
// assumption about the exporting site is unverified; see DESIGN.md.)
//
// A document that cannot be decoded at all yields an error and no partial
// results.
func ExtractPins(r io.Reader, sourceDate int64) ([]model.ParsedPin, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("decoding markup: %w", err)
	}

	var pins []model.ParsedPin

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if pinID, ok := attrValue(n, pinIDAttr); ok && pinID != "" {
				if pin, ok := extractPin(n, pinID, sourceDate); ok {
					pins = append(pins, pin)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// Reverse to oldest-first.
	for i, j := 0, len(pins)-1; i < j; i, j = i+1, j-1 {
		pins[i], pins[j] = pins[j], pins[i]
	}

	return pins, nil
}

// extractPin builds a candidate from one marked element. Returns false if
// the element has no resolvable full-resolution media reference.
func extractPin(n *html.Node, pinID string, sourceDate int64) (model.ParsedPin, bool) {
	srcset, ok := findImageSrcset(n)
	if !ok {
		return model.ParsedPin{}, false
	}

	mediaURL, fileID, ext, ok := selectOriginal(srcset)
	if !ok {
		return model.ParsedPin{}, false
	}

	return model.ParsedPin{
		PinID:            pinID,
		FileID:           fileID,
		FileExtension:    ext,
		SourceURL:        SourceURL(pinID),
		OriginalMediaURL: mediaURL,
		SourceDate:       sourceDate,
	}, true
}

// findImageSrcset returns the srcset of the first descendant img element
// that carries one.
func findImageSrcset(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "img" {
		if srcset, ok := attrValue(n, "srcset"); ok {
			return srcset, true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if srcset, ok := findImageSrcset(c); ok {
			return srcset, true
		}
	}
	return "", false
}

// selectOriginal picks the first srcset candidate whose path carries the
// originals media-size marker and matches the fixed sharded path pattern.
func selectOriginal(srcset string) (mediaURL, fileID, ext string, ok bool) {
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		url := fields[0]
		if !strings.Contains(url, "/originals/") {
			continue
		}
		m := originalsPathPattern.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		return url, m[1], m[2], true
	}
	return "", "", "", false
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
