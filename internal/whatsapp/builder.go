package whatsapp

import "strings"

const (
	maxReplyButtons    = 3
	maxButtonTitleLen  = 20
	maxTextBodyLength  = 4096
	truncationEllipsis = "..."
)

// ReplyButton is one interactive quick-reply button.
type ReplyButton struct {
	ID    string
	Title string
}

// ListRow is one selectable row inside a list section.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// MediaRef points at media either by public link or by an uploaded media id.
type MediaRef struct {
	Link    string
	MediaID string
}

func (m MediaRef) payload() map[string]interface{} {
	if m.MediaID != "" {
		return map[string]interface{}{"id": m.MediaID}
	}
	return map[string]interface{}{"link": m.Link}
}

// TemplateHeader is the optional header component of a template send.
type TemplateHeader struct {
	Type    string // image, video, document
	Link    string
	MediaID string
}

// TemplateButton is one button component of a template send.
type TemplateButton struct {
	SubType string // quick_reply or url
	Payload string // quick_reply payload
	Text    string // url button text parameter
}

// buildReplyButtons converts buttons into the provider's interactive action
// shape. The provider allows at most three buttons with 20-character titles.
func buildReplyButtons(buttons []ReplyButton) []map[string]interface{} {
	if len(buttons) > maxReplyButtons {
		buttons = buttons[:maxReplyButtons]
	}

	out := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		title := b.Title
		if len(title) > maxButtonTitleLen {
			title = title[:maxButtonTitleLen]
		}
		out = append(out, map[string]interface{}{
			"type": "reply",
			"reply": map[string]interface{}{
				"id":    b.ID,
				"title": title,
			},
		})
	}

	return out
}

func buildListSections(sections []ListSection) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(sections))
	for _, s := range sections {
		rows := make([]map[string]interface{}, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, map[string]interface{}{
				"id":          r.ID,
				"title":       r.Title,
				"description": r.Description,
			})
		}
		out = append(out, map[string]interface{}{
			"title": s.Title,
			"rows":  rows,
		})
	}

	return out
}

// FormatPhoneNumber normalizes a phone number to the provider's
// international format: digits only, no leading zeros, optional country
// code prefix.
func FormatPhoneNumber(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	normalized := strings.TrimLeft(b.String(), "0")

	if countryCode != "" && !strings.HasPrefix(normalized, countryCode) {
		normalized = countryCode + normalized
	}

	return normalized
}

// TruncateText shortens text to maxLength characters, appending an ellipsis
// when it had to cut.
func TruncateText(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	cut := maxLength - len(truncationEllipsis)
	if cut < 0 {
		cut = 0
	}

	return string(runes[:cut]) + truncationEllipsis
}
