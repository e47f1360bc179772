package writer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// XMLWriter writes the records as an indented XML document:
//
//	<guests run_id="..." format="stay_line" source="invoice.pdf">
//	  <guest n="1">
//	    <GuestName>Anna Weber</GuestName>
//	    <RoomNumber>101</RoomNumber>
//	    <service n="1">
//	      <Description>Room Night</Description>
//	      ...
//	    </service>
//	    <TotalAmount>160.00</TotalAmount>
//	  </guest>
//	</guests>
type XMLWriter struct {
	// Indent is the string used for indentation.
	Indent string

	// IncludeXMLDeclaration writes <?xml version="1.0" encoding="UTF-8"?>.
	IncludeXMLDeclaration bool

	// ServiceNumberingGlobal numbers services 1, 2, 3... across all guests.
	// When false numbering restarts at 1 for each guest.
	ServiceNumberingGlobal bool
}

// NewXMLWriter returns an XMLWriter with the default options.
func NewXMLWriter() XMLWriter {
	return XMLWriter{
		Indent:                 "  ",
		IncludeXMLDeclaration:  true,
		ServiceNumberingGlobal: true,
	}
}

func (XMLWriter) Name() string      { return "xml" }
func (XMLWriter) Extension() string { return ".xml" }

func (x XMLWriter) Write(w io.Writer, b *Batch) error {
	var buffer bytes.Buffer

	if x.IncludeXMLDeclaration {
		buffer.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	}

	root := element{
		name: "guests",
		attrs: []xml.Attr{
			attr("run_id", b.RunID),
			attr("format", b.Format),
			attr("source", b.Source),
			attr("pages", strconv.Itoa(b.Pages)),
		},
	}

	serviceIndex := 1
	for i := range b.Records {
		root.children = append(root.children, x.guestElement(&b.Records[i], i+1, &serviceIndex))
	}

	writeElement(&buffer, root, x.Indent, 0)

	if _, err := w.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("failed to write XML: %w", err)
	}
	return nil
}

// =============================================================================
// XML DOCUMENT BUILDING
// =============================================================================

// element is a generic XML element with either a text value or children.
type element struct {
	name     string
	attrs    []xml.Attr
	value    string
	children []element
}

func (x XMLWriter) guestElement(r *types.GuestRecord, n int, globalServiceIndex *int) element {
	e := element{
		name:  "guest",
		attrs: []xml.Attr{attr("n", strconv.Itoa(n))},
	}

	e.children = appendText(e.children, "GuestName", r.GuestName)
	e.children = appendText(e.children, "FirstName", r.FirstName)
	e.children = appendText(e.children, "LastName", r.LastName)
	e.children = appendText(e.children, "GuestID", r.GuestID)
	e.children = appendText(e.children, "RoomNumber", r.RoomNumber)
	e.children = appendText(e.children, "CheckInDate", r.CheckInDate)
	e.children = appendText(e.children, "CheckOutDate", r.CheckOutDate)

	for i, s := range r.Services {
		index := i + 1
		if x.ServiceNumberingGlobal {
			index = *globalServiceIndex
			(*globalServiceIndex)++
		}
		svc := element{
			name:  "service",
			attrs: []xml.Attr{attr("n", strconv.Itoa(index))},
		}
		svc.children = appendText(svc.children, "Description", s.Description)
		svc.children = appendText(svc.children, "TaxRate", s.TaxRate)
		svc.children = appendText(svc.children, "Quantity", strconv.Itoa(s.Quantity))
		svc.children = appendText(svc.children, "UnitPrice", formatMoney(s.UnitPrice))
		svc.children = appendText(svc.children, "TotalPrice", formatMoney(s.LineTotal))
		e.children = append(e.children, svc)
	}

	e.children = appendText(e.children, "TotalAmount", formatMoney(r.TotalAmount))
	e.children = appendText(e.children, "PageStart", strconv.Itoa(r.PageStart))
	e.children = appendText(e.children, "PageEnd", strconv.Itoa(r.PageEnd))
	e.children = appendText(e.children, "IsComplete", strconv.FormatBool(r.IsComplete))
	e.children = appendText(e.children, "IsSplit", strconv.FormatBool(r.IsSplit))

	return e
}

// appendText adds a simple element; empty values are omitted.
func appendText(children []element, name, value string) []element {
	if value == "" {
		return children
	}
	return append(children, element{name: name, value: value})
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// writeElement writes an element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, e element, indent string, level int) {
	for i := 0; i < level; i++ {
		buffer.WriteString(indent)
	}

	buffer.WriteString("<")
	buffer.WriteString(e.name)
	for _, a := range e.attrs {
		fmt.Fprintf(buffer, " %s=\"%s\"", a.Name.Local, escapeXML(a.Value))
	}

	if len(e.children) == 0 && e.value == "" {
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")

	if e.value != "" {
		buffer.WriteString(escapeXML(e.value))
	} else {
		buffer.WriteString("\n")
		for _, child := range e.children {
			writeElement(buffer, child, indent, level+1)
		}
		for i := 0; i < level; i++ {
			buffer.WriteString(indent)
		}
	}

	buffer.WriteString("</")
	buffer.WriteString(e.name)
	buffer.WriteString(">\n")
}

// escapeXML escapes special characters for XML text and attributes.
func escapeXML(s string) string {
	var buffer bytes.Buffer
	if err := xml.EscapeText(&buffer, []byte(s)); err != nil {
		return s
	}
	return buffer.String()
}
