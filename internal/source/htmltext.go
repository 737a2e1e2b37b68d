package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spigell/job-sift/internal/utils"
)

const blockElements = "br, p, div, li, ul, ol, tr, h1, h2, h3, h4, h5, h6"

// PlainText strips markup from an HTML fragment, keeping block boundaries as spaces.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return utils.CollapseSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return utils.CollapseSpace(fragment)
	}

	doc.Find("script, style").Remove()
	doc.Find(blockElements).AppendHtml(" ")

	return utils.CollapseSpace(doc.Text())
}
