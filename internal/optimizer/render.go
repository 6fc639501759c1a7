package optimizer

import (
	"strings"

	"github.com/raphaelgruber/pagewise/internal/models"
)

// Section headers, in render order.
const (
	PageContextHeader = "[Page Context]"
	SummaryHeader     = "[Summary]"
	KeyPointsHeader   = "[Key Points]"
	ContentHeader     = "[Content]"

	// TablePlaceholder replaces table data in prompts.
	TablePlaceholder = "[Table data omitted for brevity]"
)

const (
	headingPrefix   = "## "
	bulletPrefix    = "• "
	keyPointsHeader = "\n" + KeyPointsHeader + "\n"
	contentHeader   = "\n" + ContentHeader + "\n"
)

func renderHeader(md models.Metadata, ct models.ContentType, query string) string {
	var sb strings.Builder
	sb.WriteString(PageContextHeader + "\n")
	sb.WriteString("Title: " + md.Title + "\n")
	if md.URL != "" {
		sb.WriteString("URL: " + md.URL + "\n")
	}
	if ct != "" {
		sb.WriteString("Type: " + string(ct) + "\n")
	}
	if query != "" {
		sb.WriteString("Query: " + query + "\n")
	}
	return sb.String()
}

func renderSummary(summary string) string {
	return "\n" + SummaryHeader + "\n" + summary + "\n"
}

func renderKeyPoint(kp string) string {
	return bulletPrefix + kp + "\n"
}

func renderElement(el models.Element) string {
	switch el.Kind {
	case models.ElementHeading:
		return headingPrefix + el.Text
	case models.ElementParagraph:
		return el.Text
	case models.ElementCode:
		return "```" + el.Language + "\n" + el.Content + "\n```"
	case models.ElementList:
		lines := make([]string, len(el.Items))
		for i, item := range el.Items {
			lines[i] = bulletPrefix + item
		}
		return strings.Join(lines, "\n")
	case models.ElementTable:
		return TablePlaceholder
	default:
		return ""
	}
}

// Render produces the prompt text for a fitted selection. Output is a pure
// function of its inputs.
func Render(f Fitted, md models.Metadata, ct models.ContentType, query string) string {
	var sb strings.Builder
	sb.WriteString(renderHeader(md, ct, query))
	sb.WriteString(renderSummary(f.Summary))

	if len(f.KeyPoints) > 0 {
		sb.WriteString(keyPointsHeader)
		for _, kp := range f.KeyPoints {
			sb.WriteString(renderKeyPoint(kp))
		}
	}

	if len(f.Elements) > 0 {
		sb.WriteString(contentHeader)
		for i, el := range f.Elements {
			if i > 0 {
				sb.WriteString(elementSeparation)
			}
			sb.WriteString(renderElement(el))
		}
	}
	return strings.TrimSpace(sb.String())
}
