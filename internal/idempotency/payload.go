package idempotency

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
)

// payloadsEqual compares two payloads using content-type-aware semantics:
// structural tree equality for JSON (key order irrelevant) and canonical,
// namespace-aware element equality for XML (whitespace and comments ignored).
// Anything else falls back to exact string comparison.
func payloadsEqual(contentType, a, b string) (bool, error) {
	switch {
	case isXMLContentType(contentType):
		return xmlPayloadsEqual(a, b)
	case isJSONContentType(contentType):
		return jsonPayloadsEqual(a, b)
	default:
		return a == b, nil
	}
}

func isJSONContentType(contentType string) bool {
	mediaType := mediaTypeOf(contentType)
	return mediaType == "" || mediaType == "application/json" ||
		strings.HasSuffix(mediaType, "+json") || mediaType == "text/json"
}

func isXMLContentType(contentType string) bool {
	mediaType := mediaTypeOf(contentType)
	return mediaType == "application/xml" || mediaType == "text/xml" ||
		strings.HasSuffix(mediaType, "+xml")
}

func mediaTypeOf(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func jsonPayloadsEqual(a, b string) (bool, error) {
	var parsedA, parsedB interface{}
	if err := json.Unmarshal([]byte(a), &parsedA); err != nil {
		return false, fmt.Errorf("failed to parse request payload as JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(b), &parsedB); err != nil {
		return false, fmt.Errorf("failed to parse stored payload as JSON: %w", err)
	}
	return reflect.DeepEqual(parsedA, parsedB), nil
}

// xmlNode is a canonicalized XML element: namespace-resolved name, attributes
// sorted with namespace declarations dropped, whitespace-trimmed text, child
// elements in document order.
type xmlNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*xmlNode
}

func xmlPayloadsEqual(a, b string) (bool, error) {
	treeA, err := parseXMLTree(a)
	if err != nil {
		return false, fmt.Errorf("failed to parse request payload as XML: %w", err)
	}
	treeB, err := parseXMLTree(b)
	if err != nil {
		return false, fmt.Errorf("failed to parse stored payload as XML: %w", err)
	}
	return reflect.DeepEqual(treeA, treeB), nil
}

// parseXMLTree builds a canonical element tree. Comments, processing
// instructions and directives are discarded, character data is trimmed, and
// entities are restricted to the predefined HTML set; external entities are
// never resolved, so entity-injection payloads cannot reach the comparison.
func parseXMLTree(payload string) (*xmlNode, error) {
	decoder := xml.NewDecoder(strings.NewReader(payload))
	decoder.Entity = xml.HTMLEntity

	var root *xmlNode
	var stack []*xmlNode

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			node := &xmlNode{
				Name:  t.Name,
				Attrs: canonicalAttrs(t.Attr),
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text != "" && len(stack) > 0 {
				node := stack[len(stack)-1]
				node.Text += text
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed elements")
	}

	return root, nil
}

func canonicalAttrs(attrs []xml.Attr) []xml.Attr {
	canonical := make([]xml.Attr, 0, len(attrs))
	for _, attr := range attrs {
		// xmlns declarations only affect name resolution, which the decoder
		// has already performed
		if attr.Name.Space == "xmlns" || (attr.Name.Space == "" && attr.Name.Local == "xmlns") {
			continue
		}
		canonical = append(canonical, attr)
	}
	sort.Slice(canonical, func(i, j int) bool {
		if canonical[i].Name.Space != canonical[j].Name.Space {
			return canonical[i].Name.Space < canonical[j].Name.Space
		}
		return canonical[i].Name.Local < canonical[j].Name.Local
	})
	if len(canonical) == 0 {
		return nil
	}
	return canonical
}
