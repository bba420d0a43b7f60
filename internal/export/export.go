// Package export renders session transcripts and reads them back.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/dualchat/internal/domain"
)

// Format is a transcript file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "txt"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
)

// Filter restricts which authors are exported.
type Filter string

const (
	FilterAll  Filter = "all"
	FilterA    Filter = "A"
	FilterB    Filter = "B"
	FilterUser Filter = "user"
)

// Options controls an export.
type Options struct {
	Format            Format
	Filter            Filter
	IncludeMetadata   bool
	IncludeTimestamps bool
	IncludeModelInfo  bool
}

// DefaultOptions exports everything as JSON.
func DefaultOptions() Options {
	return Options{
		Format:            FormatJSON,
		Filter:            FilterAll,
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeModelInfo:  true,
	}
}

// Validate rejects unknown formats and filters.
func (o Options) Validate() error {
	switch o.Format {
	case FormatJSON, FormatText, FormatCSV, FormatMarkdown:
	default:
		return fmt.Errorf("unsupported export format %q", o.Format)
	}
	switch o.Filter {
	case FilterAll, FilterA, FilterB, FilterUser:
	default:
		return fmt.Errorf("unsupported export filter %q", o.Filter)
	}
	return nil
}

// Transcript is what gets exported.
type Transcript struct {
	Session  domain.Session
	Messages []domain.Message
}

// File is a rendered export.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Render formats t according to opts.
func Render(t Transcript, opts Options, now time.Time) (*File, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	doc := build(t, opts, now)

	var (
		data        []byte
		contentType string
		err         error
	)
	switch opts.Format {
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
		contentType = "application/json"
	case FormatText:
		data = renderText(doc, opts)
		contentType = "text/plain; charset=utf-8"
	case FormatCSV:
		data, err = renderCSV(doc, opts)
		contentType = "text/csv; charset=utf-8"
	case FormatMarkdown:
		data = renderMarkdown(doc, opts)
		contentType = "text/markdown; charset=utf-8"
	}
	if err != nil {
		return nil, err
	}

	return &File{
		Filename:    fmt.Sprintf("dualchat-session-%s.%s", shortID(t.Session.ID), opts.Format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// Document is the JSON export layout.
type Document struct {
	Session    *SessionInfo    `json:"session,omitempty"`
	ExportInfo *ExportInfo     `json:"export_info,omitempty"`
	Messages   []MessageRecord `json:"messages"`
}

// SessionInfo is the session metadata block.
type SessionInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	TurnCount int       `json:"turn_count"`
	IsPaused  bool      `json:"is_paused"`
}

// ExportInfo describes the export itself.
type ExportInfo struct {
	ExportedAt   time.Time `json:"exported_at"`
	Format       Format    `json:"format"`
	MessageCount int       `json:"message_count"`
	Filter       Filter    `json:"filter"`
}

// MessageRecord is one exported message.
type MessageRecord struct {
	ID        string           `json:"id"`
	ModelType domain.ModelType `json:"model_type"`
	Content   string           `json:"content"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
	ModelInfo *ModelInfo       `json:"model_info,omitempty"`
}

// ModelInfo tags who produced a message.
type ModelInfo struct {
	Type domain.ModelType `json:"type"`
	IsAI bool             `json:"is_ai"`
}

func build(t Transcript, opts Options, now time.Time) Document {
	doc := Document{Messages: []MessageRecord{}}
	for _, m := range t.Messages {
		if opts.Filter != FilterAll && string(m.ModelType) != string(opts.Filter) {
			continue
		}
		rec := MessageRecord{ID: m.ID, ModelType: m.ModelType, Content: m.Content}
		if opts.IncludeTimestamps {
			ts := m.CreatedAt.UTC()
			rec.CreatedAt = &ts
		}
		if opts.IncludeModelInfo {
			rec.ModelInfo = &ModelInfo{Type: m.ModelType, IsAI: m.ModelType.IsSlot()}
		}
		doc.Messages = append(doc.Messages, rec)
	}

	if opts.IncludeMetadata {
		doc.Session = &SessionInfo{
			ID:        t.Session.ID,
			Title:     t.Session.Title,
			CreatedAt: t.Session.CreatedAt.UTC(),
			TurnCount: t.Session.TurnCount,
			IsPaused:  t.Session.IsPaused,
		}
		doc.ExportInfo = &ExportInfo{
			ExportedAt:   now.UTC(),
			Format:       opts.Format,
			MessageCount: len(doc.Messages),
			Filter:       opts.Filter,
		}
	}
	return doc
}

func speaker(t domain.ModelType) string {
	switch t {
	case domain.ModelTypeUser:
		return "User"
	case domain.ModelTypeA:
		return "Model A"
	case domain.ModelTypeB:
		return "Model B"
	}
	return "System"
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func renderText(doc Document, opts Options) []byte {
	var b strings.Builder
	if doc.Session != nil {
		title := doc.Session.Title
		if title == "" {
			title = doc.Session.ID
		}
		fmt.Fprintf(&b, "Session: %s\n", title)
		fmt.Fprintf(&b, "Created: %s\n", doc.Session.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "Turn Count: %d\n\n", doc.Session.TurnCount)
		b.WriteString(strings.Repeat("=", 50) + "\n\n")
	}
	for _, m := range doc.Messages {
		b.WriteString(speaker(m.ModelType))
		if opts.IncludeTimestamps && m.CreatedAt != nil {
			fmt.Fprintf(&b, " (%s)", stamp(m.CreatedAt))
		}
		b.WriteString(":\n")
		b.WriteString(m.Content + "\n\n")
	}
	return []byte(b.String())
}

func renderCSV(doc Document, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Index", "Speaker", "Content"}
	if opts.IncludeTimestamps {
		header = append(header, "Timestamp")
	}
	if opts.IncludeModelInfo {
		header = append(header, "Model Type")
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i, m := range doc.Messages {
		row := []string{strconv.Itoa(i + 1), speaker(m.ModelType), m.Content}
		if opts.IncludeTimestamps {
			row = append(row, stamp(m.CreatedAt))
		}
		if opts.IncludeModelInfo {
			row = append(row, string(m.ModelType))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderMarkdown(doc Document, opts Options) []byte {
	var b strings.Builder
	if doc.Session != nil {
		title := doc.Session.Title
		if title == "" {
			title = "Dual-model session"
		}
		fmt.Fprintf(&b, "# %s\n\n", title)
		fmt.Fprintf(&b, "**Session ID:** %s\n", doc.Session.ID)
		fmt.Fprintf(&b, "**Created:** %s\n", doc.Session.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "**Turn Count:** %d\n\n", doc.Session.TurnCount)
		b.WriteString("---\n\n")
	}
	for _, m := range doc.Messages {
		fmt.Fprintf(&b, "**%s**", speaker(m.ModelType))
		if opts.IncludeTimestamps && m.CreatedAt != nil {
			fmt.Fprintf(&b, " *(%s)*", stamp(m.CreatedAt))
		}
		b.WriteString("\n\n")
		b.WriteString(m.Content + "\n\n")
		b.WriteString("---\n\n")
	}
	return []byte(b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
