package bitmagnet

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RewritesSearch reports whether a Torznab function returns item lists that
// receive detail links.
func RewritesSearch(function string) bool {
	switch strings.ToLower(strings.TrimSpace(function)) {
	case "search", "movie-search", "tv-search":
		return true
	default:
		return false
	}
}

// DetailsURL is the public detail page of a torrent.
func DetailsURL(baseURL, infoHash string) string {
	return strings.TrimRight(baseURL, "/") + "/details/" + infoHash
}

type itemScan struct {
	hasComments bool
	textTarget  *string
	item        torznabItem
}

// RewriteTorznab injects a detail link into every <item> of a Torznab RSS
// document: a <comments> element when the item has none, and a
// torznab:attr named "details". All other bytes are copied unchanged.
func RewriteTorznab(payload []byte, baseURL string) ([]byte, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.Strict = false
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		out     bytes.Buffer
		written int64
		current *itemScan
	)
	out.Grow(len(payload) + 512)

	for {
		offset := decoder.InputOffset()
		token, err := decoder.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid torznab XML: %w", err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			if tok.Name.Local == "item" && tok.Name.Space == "" {
				current = &itemScan{}
				continue
			}
			if current == nil {
				continue
			}
			current.observeStart(tok)
		case xml.CharData:
			if current != nil && current.textTarget != nil {
				*current.textTarget += string(tok)
			}
		case xml.EndElement:
			if current == nil {
				continue
			}
			if tok.Name.Local != "item" || tok.Name.Space != "" {
				current.textTarget = nil
				continue
			}

			insertion := current.detailMarkup(baseURL)
			if insertion != "" {
				out.Write(payload[written:offset])
				out.WriteString(insertion)
				written = offset
			}
			current = nil
		}
	}

	out.Write(payload[written:])
	return out.Bytes(), nil
}

func (s *itemScan) observeStart(tok xml.StartElement) {
	s.textTarget = nil
	switch {
	case tok.Name.Space == "" && tok.Name.Local == "comments":
		s.hasComments = true
	case tok.Name.Space == "" && tok.Name.Local == "guid":
		s.textTarget = &s.item.Guid
	case tok.Name.Space == "" && tok.Name.Local == "link":
		s.textTarget = &s.item.Link
	case tok.Name.Local == "enclosure":
		for _, attr := range tok.Attr {
			if attr.Name.Local == "url" {
				s.item.Enclosure.URL = attr.Value
			}
		}
	case tok.Name.Local == "attr":
		var attr torznabAttr
		for _, a := range tok.Attr {
			switch a.Name.Local {
			case "name":
				attr.Name = a.Value
			case "value":
				attr.Value = a.Value
			}
		}
		s.item.Attrs = append(s.item.Attrs, attr)
	}
}

func (s *itemScan) detailMarkup(baseURL string) string {
	hash := itemInfoHash(s.item)
	if hash == "" {
		hash = strings.TrimSpace(s.item.Guid)
	}
	if hash == "" {
		return ""
	}

	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(DetailsURL(baseURL, hash)))
	link := escaped.String()

	var markup strings.Builder
	if !s.hasComments {
		markup.WriteString("<comments>")
		markup.WriteString(link)
		markup.WriteString("</comments>")
	}
	markup.WriteString(`<torznab:attr name="details" value="`)
	markup.WriteString(link)
	markup.WriteString(`"/>`)
	return markup.String()
}
