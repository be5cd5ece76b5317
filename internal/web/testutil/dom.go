package testutil

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses the provided HTML payload into a goquery document for assertions.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// CSRFToken returns the token embedded in the first form of the document.
func CSRFToken(doc *goquery.Document) string {
	return doc.Find(`input[name="csrf_token"]`).First().AttrOr("value", "")
}
