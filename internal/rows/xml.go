package rows

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Root element names of the resource file schemas we read.
const (
	ResourceDocumentElement = "wGlnWirelessResourceDocument"
	ResourceEntryElement    = "ResourceEntry"
	fallbackRootElement     = "root"
)

type resourceDocument struct {
	Entries []struct {
		ID    string `xml:"ID,attr"`
		Value string `xml:"Value,attr"`
	} `xml:"ResourceEntry"`
}

// <root><data name="k"><value>v</value></data></root>
type fallbackDocument struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"data"`
}

// ReadEntries parses a key/value resource file. The primary schema is
// wGlnWirelessResourceDocument/ResourceEntry with ID and Value attributes;
// root/data with a name attribute and a value child is also accepted.
func ReadEntries(content string) ([]XMLEntryRow, error) {
	root, err := rootElement(content)
	if err != nil {
		return nil, err
	}

	var entries []XMLEntryRow
	switch root {
	case ResourceDocumentElement:
		var doc resourceDocument
		if err := xml.Unmarshal([]byte(content), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for i, e := range doc.Entries {
			entries = append(entries, XMLEntryRow{Number: i + 1, ID: e.ID, Value: e.Value})
		}
	case fallbackRootElement:
		var doc fallbackDocument
		if err := xml.Unmarshal([]byte(content), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for i, d := range doc.Data {
			entries = append(entries, XMLEntryRow{Number: i + 1, ID: d.Name, Value: d.Value})
		}
	default:
		return nil, fmt.Errorf("%w: unexpected root element <%s>", ErrMalformed, root)
	}
	return entries, nil
}

func rootElement(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: no root element", ErrMalformed)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}
