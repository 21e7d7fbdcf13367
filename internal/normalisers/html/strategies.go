package html

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy locates the main content of a page. It reports false when
// the page has nothing it recognises.
type Strategy struct {
	Name   string
	Select func(doc *goquery.Document) (*goquery.Selection, bool)
}

// DefaultStrategies returns the extraction chain, most specific first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "main", Select: selectFirst("main, [role=main]")},
		{Name: "article", Select: selectFirst("article")},
		{Name: "doc-container", Select: selectFirst(docContainers)},
		{Name: "density", Select: densestContainer},
		{Name: "body", Select: body},
	}
}

// docContainers are class and id names common to documentation generators.
const docContainers = ".content, .main-content, .documentation, .article, .doc-content, " +
	".markdown-body, .markdown-section, .theme-doc-markdown, .rst-content, #content, #main-content"

// boilerplateSelector matches page chrome removed before any strategy runs.
// header and footer are kept inside articles where they often hold the title.
const boilerplateSelector = "nav, aside, script, style, noscript, form, iframe, svg, template, " +
	"[role=navigation], [role=banner], [role=contentinfo], [role=search], [aria-hidden=true], " +
	".navigation, .navbar, .nav, .sidebar, .menu, .breadcrumb, .breadcrumbs, .toc, " +
	".table-of-contents, .edit-page, .edit-this-page, .skip-link, .pagination, .cookie-banner"

func stripBoilerplate(doc *goquery.Document) {
	doc.Find(boilerplateSelector).Remove()
	doc.Find("header, footer, .header, .footer").
		Not("article header, article footer, main header, main footer").
		Remove()
}

func selectFirst(selector string) func(*goquery.Document) (*goquery.Selection, bool) {
	return func(doc *goquery.Document) (*goquery.Selection, bool) {
		sel := doc.Find(selector).First()
		return sel, sel.Length() > 0
	}
}

// contentChildren are the elements whose text counts towards a container's
// score. Only direct children count, so wrappers do not outscore the
// block that actually holds the prose.
const contentChildren = "p, pre, ul, ol, dl, table, blockquote, h1, h2, h3, h4, h5, h6"

// densestContainer scores every div and section by the text held in its
// direct content children, discounted by the share of that text in links.
func densestContainer(doc *goquery.Document) (*goquery.Selection, bool) {
	var (
		best      *goquery.Selection
		bestScore float64
	)
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		children := s.ChildrenFiltered(contentChildren)
		if children.Length() == 0 {
			return
		}
		text := len(strings.TrimSpace(children.Text()))
		if text == 0 {
			return
		}
		links := len(strings.TrimSpace(children.Find("a").Text()))
		score := float64(text) * (1 - float64(links)/float64(text))
		if score > bestScore {
			best, bestScore = s, score
		}
	})
	return best, best != nil
}

func body(doc *goquery.Document) (*goquery.Selection, bool) {
	sel := doc.Find("body").First()
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	return sel, strings.TrimSpace(sel.Text()) != ""
}

// wordCount estimates the words of visible text in sel.
func wordCount(sel *goquery.Selection) int {
	return len(strings.Fields(sel.Text()))
}
