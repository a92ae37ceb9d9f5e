package pdf

import (
	"context"

	einopdf "github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"
)

// NewParser returns the PDF parser used by Load, one document per page.
func NewParser(ctx context.Context) (parser.Parser, error) {
	return einopdf.NewPDFParser(ctx, &einopdf.Config{ToPages: true})
}
