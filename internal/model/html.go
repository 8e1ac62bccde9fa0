package model

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ParseHTML stream-parses a Simple Repository API HTML response body,
// yielding one File per anchor element. requestURL is the effective URL
// the response was fetched from (after redirects), used to resolve
// relative hrefs. A malformed core-metadata attribute value is logged
// to logger and treated as present-without-hashes rather than failing
// the whole parse; logger may be nil.
func ParseHTML(body io.Reader, requestURL string, logger *zap.Logger) ([]*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(requestURL)
	if err != nil {
		return nil, fmt.Errorf("parsing request URL: %w", err)
	}

	tokenizer := html.NewTokenizer(body)
	var files []*File
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return nil, err
			}
			return files, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data != "a" {
				continue
			}
			file, text, err := fileFromAnchorAttrs(tok.Attr, base, logger)
			if err != nil {
				return nil, err
			}
			if tt == html.StartTagToken {
				// The anchor's text is its filename; consume tokens up to
				// the matching close tag without buffering the document.
				text = readAnchorText(tokenizer)
			}
			file.Name = text
			files = append(files, file)
		}
	}
}

// readAnchorText consumes tokens until the closing </a>, concatenating any
// text tokens seen along the way.
func readAnchorText(tokenizer *html.Tokenizer) string {
	var sb strings.Builder
	depth := 1
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return sb.String()
		}
		tok := tokenizer.Token()
		switch tt {
		case html.TextToken:
			sb.WriteString(tok.Data)
		case html.StartTagToken:
			if tok.Data == "a" {
				depth++
			}
		case html.EndTagToken:
			if tok.Data == "a" {
				depth--
				if depth == 0 {
					return sb.String()
				}
			}
		}
	}
}

// fileFromAnchorAttrs builds a File from one anchor's non-text attributes;
// the Name field is left zero and filled in by the caller once the
// element's text content has been read.
func fileFromAnchorAttrs(attrs []html.Attribute, base *url.URL, logger *zap.Logger) (*File, string, error) {
	raw := make(map[string]string, len(attrs))
	for _, a := range attrs {
		raw[a.Key] = a.Val
	}

	href := raw["href"]
	resolved, err := base.Parse(href)
	if err != nil {
		return nil, "", fmt.Errorf("resolving href %q: %w", href, err)
	}

	// The fragment carries the hash; File.URL is stored without it.
	fragment := resolved.Fragment
	resolved.Fragment = ""
	resolved.RawFragment = ""
	file := &File{
		URL:    resolved.String(),
		Hashes: parseHashFragment(fragment),
	}
	if rp, ok := raw["data-requires-python"]; ok && rp != "" {
		file.RequiresPython = rp
	}

	// PEP 714: prefer data-core-metadata, fall back to data-dist-info-metadata.
	metaVal, hasMeta := raw["data-core-metadata"]
	if !hasMeta {
		metaVal, hasMeta = raw["data-dist-info-metadata"]
	}
	if hasMeta {
		file.CoreMetadata = parseCoreMetadataAttr(metaVal, logger)
	}

	if gpg, ok := raw["data-gpg-sig"]; ok {
		v := gpg == "true"
		file.GPGSig = &v
	}

	if yanked, ok := raw["data-yanked"]; ok {
		file.Yanked = &YankedState{Reason: yankedReason(yanked)}
	}

	return file, "", nil
}

// yankedReason treats an empty attribute value as "yanked, no reason"
// (Reason stays empty) and any other value as the reason text itself.
func yankedReason(attrVal string) string {
	return attrVal
}

// parseCoreMetadataAttr interprets a core-metadata attribute value per the
// Simple API: empty or "true" means present without hashes; an
// "algo=digest" value names a hash; anything else is logged and treated
// as present-without-hashes (the most permissive reading).
func parseCoreMetadataAttr(val string, logger *zap.Logger) *CoreMetadata {
	if hashes := parseHashFragment(val); hashes != nil {
		return &CoreMetadata{Hashes: hashes}
	}
	if val != "" && val != "true" {
		logger.Warn("malformed core-metadata attribute value, treating as present without hashes", zap.String("value", val))
	}
	return &CoreMetadata{}
}

// SerializeHTML writes a Simple Repository API HTML file listing for
// files, one anchor per file.
func SerializeHTML(w io.Writer, files []*File) error {
	if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html>\n<body>\n"); err != nil {
		return err
	}
	for _, f := range files {
		href := f.URL
		if frag := f.Fragment(); frag != "" {
			href += "#" + frag
		}
		attrs := f.Attributes()
		var sb strings.Builder
		sb.WriteString(`<a href="`)
		sb.WriteString(html.EscapeString(href))
		sb.WriteString(`"`)
		for _, key := range attrOrder(attrs) {
			fmt.Fprintf(&sb, ` %s="%s"`, key, html.EscapeString(attrs[key]))
		}
		sb.WriteString(">")
		sb.WriteString(html.EscapeString(f.Name))
		sb.WriteString("</a><br/>\n")
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

// SerializeProjectListHTML writes a Simple Repository API HTML project
// listing, one anchor per project name, normalized to its canonical
// path segment.
func SerializeProjectListHTML(w io.Writer, names []string) error {
	if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html>\n<body>\n"); err != nil {
		return err
	}
	for _, n := range names {
		var sb strings.Builder
		sb.WriteString(`<a href="`)
		sb.WriteString(html.EscapeString(n))
		sb.WriteString(`/">`)
		sb.WriteString(html.EscapeString(n))
		sb.WriteString("</a><br/>\n")
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

// attrOrder returns a deterministic attribute ordering for serialization.
func attrOrder(attrs map[string]string) []string {
	preferred := []string{
		"data-requires-python",
		"data-dist-info-metadata",
		"data-core-metadata",
		"data-gpg-sig",
		"data-yanked",
	}
	order := make([]string, 0, len(attrs))
	for _, k := range preferred {
		if _, ok := attrs[k]; ok {
			order = append(order, k)
		}
	}
	return order
}
