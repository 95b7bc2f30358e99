package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Elements that only appear on bot walls and interstitial challenges.
var blockSelectors = []string{
	"#challenge-form",
	"#cf-challenge-running",
	".cf-browser-verification",
	"#px-captcha",
	".g-recaptcha",
	"iframe[src*='captcha']",
}

var blockTitles = []string{
	"access denied",
	"attention required",
	"just a moment",
	"are you a robot",
	"verify you are human",
	"403 forbidden",
}

// IsBlockPage reports whether the document is a bot wall instead of content.
func IsBlockPage(doc *goquery.Document) bool {
	for _, sel := range blockSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	title := strings.ToLower(cleanText(doc.Find("title").First()))
	for _, marker := range blockTitles {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}
