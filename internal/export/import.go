package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xiaot623/dualchat/internal/domain"
)

// Imported is a transcript read back from a JSON export.
type Imported struct {
	Title    string
	Messages []domain.Message
}

// ParseJSON reads a JSON export. Every message needs an id, a known
// model_type and a created_at timestamp; order is kept as written.
func ParseJSON(data []byte) (*Imported, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}

	out := &Imported{Messages: make([]domain.Message, 0, len(doc.Messages))}
	if doc.Session != nil {
		out.Title = doc.Session.Title
	}

	seen := make(map[string]struct{}, len(doc.Messages))
	for i, m := range doc.Messages {
		if m.ID == "" {
			return nil, fmt.Errorf("message %d: missing id", i)
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("message %d: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = struct{}{}
		if !m.ModelType.Valid() {
			return nil, fmt.Errorf("message %d: invalid model_type %q", i, m.ModelType)
		}
		if m.CreatedAt == nil {
			return nil, fmt.Errorf("message %d: missing created_at (export with timestamps)", i)
		}
		out.Messages = append(out.Messages, domain.Message{
			ID:        m.ID,
			ModelType: m.ModelType,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// ImportedTitle names an imported session when the export carried no title.
func ImportedTitle(title string, now time.Time) string {
	if title != "" {
		return title + " (imported)"
	}
	return "Imported " + now.UTC().Format(time.RFC1123)
}
