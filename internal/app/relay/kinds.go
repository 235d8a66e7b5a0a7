package relay

import (
	"time"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/ratelimit"
)

// Field describes one form input.
type Field struct {
	Name     string
	Label    string
	Required bool
	Min, Max int // rune counts after sanitising; Max 0 means 1024
	Email    bool
	Inline   bool
	// Long fields become the embed description; only one per form.
	Long bool
}

// Form describes one intake kind.
type Form struct {
	Kind    models.Kind
	Prefix  string // correlation id prefix
	Title   string
	Color   int
	Rule    ratelimit.Rule
	Fields  []Field
	Success string
}

// Forms is the table of intake kinds.
var Forms = map[models.Kind]Form{
	models.KindContact: {
		Kind:   models.KindContact,
		Prefix: "CT",
		Title:  "📬 New Contact Message",
		Color:  0x5865F2,
		Rule:   ratelimit.Rule{Window: 15 * time.Minute, Max: 5},
		Fields: []Field{
			{Name: "name", Label: "Name", Required: true, Min: 2, Max: 100, Inline: true},
			{Name: "email", Label: "Email", Required: true, Email: true, Max: 254, Inline: true},
			{Name: "subject", Label: "Subject", Max: 200},
			{Name: "message", Label: "Message", Required: true, Min: 10, Max: 2000, Long: true},
		},
		Success: "Your message has been sent. The council will respond soon.",
	},
	models.KindAppeals: {
		Kind:   models.KindAppeals,
		Prefix: "AP",
		Title:  "⚖️ New Ban Appeal",
		Color:  0xFEE75C,
		Rule:   ratelimit.Rule{Window: 60 * time.Minute, Max: 3},
		Fields: []Field{
			{Name: "username", Label: "Discord Username", Required: true, Min: 2, Max: 100, Inline: true},
			{Name: "discordId", Label: "Discord ID", Max: 32, Inline: true},
			{Name: "email", Label: "Email", Email: true, Max: 254, Inline: true},
			{Name: "punishment", Label: "Punishment", Required: true, Min: 2, Max: 100},
			{Name: "reason", Label: "Stated Reason", Max: 1000},
			{Name: "appeal", Label: "Appeal", Required: true, Min: 50, Max: 2000, Long: true},
		},
		Success: "Your appeal has been submitted for review.",
	},
	models.KindSubmissions: {
		Kind:   models.KindSubmissions,
		Prefix: "SB",
		Title:  "✨ New Community Submission",
		Color:  0x57F287,
		Rule:   ratelimit.Rule{Window: 15 * time.Minute, Max: 10},
		Fields: []Field{
			{Name: "title", Label: "Title", Required: true, Min: 3, Max: 200},
			{Name: "type", Label: "Type", Required: true, Min: 2, Max: 50, Inline: true},
			{Name: "author", Label: "Author", Required: true, Min: 2, Max: 100, Inline: true},
			{Name: "link", Label: "Link", Max: 500},
			{Name: "description", Label: "Description", Required: true, Min: 10, Max: 2000, Long: true},
		},
		Success: "Your submission has been received.",
	},
	models.KindComplaints: {
		Kind:   models.KindComplaints,
		Prefix: "CP",
		Title:  "🚨 New Complaint",
		Color:  0xED4245,
		Rule:   ratelimit.Rule{Window: 30 * time.Minute, Max: 5},
		Fields: []Field{
			{Name: "reporter", Label: "Reporter", Required: true, Min: 2, Max: 100, Inline: true},
			{Name: "accused", Label: "Reported User", Required: true, Min: 2, Max: 100, Inline: true},
			{Name: "category", Label: "Category", Required: true, Min: 2, Max: 50, Inline: true},
			{Name: "evidence", Label: "Evidence", Max: 1000},
			{Name: "email", Label: "Email", Email: true, Max: 254},
			{Name: "description", Label: "Description", Required: true, Min: 20, Max: 2000, Long: true},
		},
		Success: "Your complaint has been filed confidentially.",
	},
}
