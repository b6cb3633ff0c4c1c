package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kiranshivaraju/batchlingo/internal/rows"
	"github.com/kiranshivaraju/batchlingo/pkg/models"
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\n", "&#10;",
	"\r", "&#13;",
	"\t", "&#9;",
)

// WriteXML writes translations in the resource document schema, one
// ResourceEntry per result with the translation as its Value.
func WriteXML(w io.Writer, translations []*models.TranslationResult) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<%s>\n", rows.ResourceDocumentElement)
	for _, t := range translations {
		fmt.Fprintf(bw, "    <%s ID=\"%s\" Value=\"%s\" />\n",
			rows.ResourceEntryElement, attrEscaper.Replace(t.RowID), attrEscaper.Replace(t.TargetText))
	}
	fmt.Fprintf(bw, "</%s>\n", rows.ResourceDocumentElement)
	return bw.Flush()
}
