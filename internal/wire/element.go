package wire

import "encoding/xml"

// Element is one protocol document, or a child of one. Inbound stanzas are
// decoded into this shape so handlers can inspect attributes, namespaces and
// child elements without committing to a fixed schema up front.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Element  `xml:",any"`
}

// New creates an element with the given name and flat attribute list given as
// key/value pairs.
func New(local string, kv ...string) Element {
	el := Element{XMLName: xml.Name{Local: local}}
	for i := 0; i+1 < len(kv); i += 2 {
		el.Attrs = append(el.Attrs, xml.Attr{Name: xml.Name{Local: kv[i]}, Value: kv[i+1]})
	}
	return el
}

// NewNS creates an element in the given namespace.
func NewNS(space, local string, kv ...string) Element {
	el := New(local, kv...)
	el.XMLName.Space = space
	return el
}

// Append adds child elements and returns the receiver for chaining.
func (e Element) Append(children ...Element) Element {
	e.Children = append(e.Children, children...)
	return e
}

// WithText sets the element's character data.
func (e Element) WithText(text string) Element {
	e.Text = text
	return e
}

// Name returns the local name of the element.
func (e *Element) Name() string {
	return e.XMLName.Local
}

// Attr returns the value of the named attribute, or "" if absent.
func (e *Element) Attr(local string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(local, value string) {
	for i, a := range e.Attrs {
		if a.Name.Local == local {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

// Child returns the first child with the given local name, or nil.
func (e *Element) Child(local string) *Element {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == local {
			return &e.Children[i]
		}
	}
	return nil
}

// ChildNS returns the first child with the given namespace and local name.
func (e *Element) ChildNS(space, local string) *Element {
	for i := range e.Children {
		c := &e.Children[i]
		if c.XMLName.Space == space && c.XMLName.Local == local {
			return c
		}
	}
	return nil
}

// ChildText returns the character data of the first child with the given
// local name, or "".
func (e *Element) ChildText(local string) string {
	if c := e.Child(local); c != nil {
		return c.Text
	}
	return ""
}

// Parse decodes a single XML document into an Element. Intended for tests
// and for unwrapping forwarded payloads.
func Parse(data []byte) (Element, error) {
	var el Element
	if err := xml.Unmarshal(data, &el); err != nil {
		return Element{}, err
	}
	return el, nil
}
