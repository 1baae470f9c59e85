package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
)

//go:embed templates/*
var templateFS embed.FS

const (
	TemplateFollowup     = "followup"
	TemplateReminder     = "reminder"
	TemplateConfirmation = "confirmation"
)

// Renderer turns a named template into a subject line and an HTML body.
type Renderer interface {
	Render(name string, data any) (subject, body string, err error)
}

// TemplateData is what every message template is executed with.
type TemplateData struct {
	Name      string
	EventName string
	EventCode string
	Location  string
	Date      string
	Time      string
	Sender    string
}

func NewTemplateData(e event.Event, a attendee.Attendee, sender string) TemplateData {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = "there"
	}
	return TemplateData{
		Name:      name,
		EventName: e.Name,
		EventCode: e.Code,
		Location:  e.Location,
		Date:      e.Date.UTC().Format("January 2, 2006"),
		Time:      e.Date.UTC().Format("15:04 MST"),
		Sender:    sender,
	}
}

type templateRenderer struct{}

// NewTemplateRenderer returns a Renderer backed by the embedded templates folder.
func NewTemplateRenderer() Renderer {
	return &templateRenderer{}
}

func (r *templateRenderer) Render(name string, data any) (subject, body string, err error) {
	subject, err = r.renderSubject(name+"_subject.txt", data)
	if err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	body, err = r.renderHTML(name+".html", data)
	if err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	return strings.TrimSpace(subject), body, nil
}

func (r *templateRenderer) renderSubject(file string, data any) (string, error) {
	raw, err := templateFS.ReadFile("templates/" + file)
	if err != nil {
		return "", err
	}
	t, err := texttemplate.New(file).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *templateRenderer) renderHTML(file string, data any) (string, error) {
	t, err := template.New(file).ParseFS(templateFS, "templates/layout.html", "templates/"+file)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, file, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
