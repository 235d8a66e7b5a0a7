package relay

import (
	"time"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/text"
)

// Discord embed limits.
const (
	maxFieldValue  = 1024
	maxDescription = 4096
)

// Payload is the Discord execute-webhook body.
type Payload struct {
	Username        string          `json:"username,omitempty"`
	Embeds          []Embed         `json:"embeds"`
	AllowedMentions AllowedMentions `json:"allowed_mentions"`
}

// AllowedMentions with an empty Parse list disables every ping.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// Embed renders cleaned fields in form order. The correlation id goes in
// the footer so staff can match the message to the stored record.
func (f Form) Embed(id string, fields map[string]string, at time.Time) Payload {
	e := Embed{
		Title:     f.Title,
		Color:     f.Color,
		Footer:    &EmbedFooter{Text: "ID: " + id},
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	for _, fd := range f.Fields {
		v, ok := fields[fd.Name]
		if !ok {
			continue
		}
		if fd.Long && e.Description == "" {
			e.Description = text.Truncate(v, maxDescription)
			continue
		}
		e.Fields = append(e.Fields, EmbedField{Name: fd.Label, Value: text.Truncate(v, maxFieldValue), Inline: fd.Inline})
	}
	return Payload{
		Username:        "Conclave Relay",
		Embeds:          []Embed{e},
		AllowedMentions: AllowedMentions{Parse: []string{}},
	}
}
