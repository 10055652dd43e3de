// Package htmltag implements the fixed HTML element catalog exposed to
// templates as html.<tag>(attrs, children) host functions.
package htmltag

import (
	"sort"
	"strings"
)

// Tags is the fixed catalog exposed as html.<name> in the sandbox.
var Tags = []string{
	"!DOCTYPE", "a", "abbr", "acronym", "address", "applet", "area", "article",
	"aside", "audio", "b", "base", "basefont", "bdi", "bdo", "big", "blockquote",
	"body", "br", "button", "canvas", "caption", "center", "cite", "code", "col",
	"colgroup", "data", "datalist", "dd", "del", "details", "dfn", "dialog",
	"dir", "div", "dl", "dt", "em", "embed", "fieldset", "figcaption", "figure",
	"font", "footer", "form", "frame", "frameset", "h1", "head", "header", "hr",
	"html", "i", "iframe", "img", "input", "ins", "kbd", "label", "legend", "li",
	"link", "main", "map", "mark", "meta", "meter", "nav", "noframes", "noscript",
	"object", "ol", "optgroup", "option", "output", "p", "param", "picture",
	"pre", "progress", "q", "rp", "rt", "ruby", "s", "samp", "script", "section",
	"select", "small", "source", "span", "strike", "strong", "style", "sub",
	"summary", "sup", "svg", "table", "tbody", "td", "template", "textarea",
	"tfoot", "th", "thead", "time", "title", "tr", "track", "tt", "u", "ul",
	"var", "video", "wbr",
}

// tagSet is Tags as a lookup set, built once.
var tagSet = func() map[string]bool {
	m := make(map[string]bool, len(Tags))
	for _, t := range Tags {
		m[t] = true
	}
	return m
}()

// IsTag reports whether name is a member of the fixed catalog.
func IsTag(name string) bool {
	return tagSet[name]
}

// Render serializes tag with the given attributes and children:
// `<tag k='v' ...>child1child2...</tag>`, or
// `<tag ... />` when children is empty. Attribute order is
// alphabetical-by-key for deterministic output across Go map iteration.
func Render(tag string, attrs map[string]string, children []string) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tag)

	if len(attrs) > 0 {
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteString("='")
			b.WriteString(attrs[k])
			b.WriteByte('\'')
		}
	}

	if len(children) == 0 {
		b.WriteString(" />")
		return b.String()
	}

	b.WriteByte('>')
	for _, c := range children {
		b.WriteString(c)
	}
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
	return b.String()
}
