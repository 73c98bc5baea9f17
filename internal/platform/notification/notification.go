// Package notification renders and delivers patient e-mail: booking
// confirmations and appointment reminders.
package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
)

// Message is one outbound e-mail. HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers a single message.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable message. Placeholders are written {{key}}.
type Template struct {
	ID      string
	Subject string
	Text    string
	HTML    string
}

const (
	TemplateConfirmation = "appointment-confirmation"
	TemplateReminder     = "appointment-reminder"
)

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateConfirmation,
			Subject: "Confirmação de Consulta Médica",
			Text: "Olá {{patient_name}}, sua consulta foi agendada com o Dr(a). {{doctor_name}} " +
				"para o dia {{date}} às {{time}}. Código da consulta: {{appointment_id}}. " +
				"Chegue 15 minutos antes e traga um documento com foto.",
			HTML: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2563eb;">Consulta Confirmada</h2>
  <p>Olá <strong>{{patient_name}}</strong>,</p>
  <p>Sua consulta foi agendada com sucesso!</p>
  <div style="background-color: #f3f4f6; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin-top: 0; color: #374151;">Detalhes da Consulta:</h3>
    <p><strong>Médico:</strong> {{doctor_name}}</p>
    <p><strong>Data:</strong> {{date}}</p>
    <p><strong>Horário:</strong> {{time}}</p>
    <p><strong>Código:</strong> {{appointment_id}}</p>
  </div>
  <ul>
    <li>Chegue com 15 minutos de antecedência</li>
    <li>Traga um documento com foto</li>
    <li>Você receberá um lembrete {{reminder_hours}} horas antes da consulta</li>
  </ul>
  <p>Atenciosamente,<br>Equipe Médica</p>
</div>`,
		},
		{
			ID:      TemplateReminder,
			Subject: "Lembrete: Consulta Médica em {{date}}",
			Text: "Olá {{patient_name}}, lembramos que você tem consulta com o Dr(a). {{doctor_name}} " +
				"no dia {{date}} às {{time}}. Código: {{appointment_id}}. " +
				"Caso precise cancelar ou reagendar, entre em contato conosco.",
			HTML: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #dc2626;">Lembrete de Consulta</h2>
  <p>Olá <strong>{{patient_name}}</strong>,</p>
  <p>Este é um lembrete da sua consulta médica.</p>
  <div style="background-color: #fef2f2; border-left: 4px solid #dc2626; padding: 20px; margin: 20px 0;">
    <p><strong>Médico:</strong> {{doctor_name}}</p>
    <p><strong>Data:</strong> {{date}}</p>
    <p><strong>Horário:</strong> {{time}}</p>
    <p><strong>Código:</strong> {{appointment_id}}</p>
  </div>
  <ul>
    <li>Chegue com 15 minutos de antecedência</li>
    <li>Traga um documento com foto</li>
    <li>Traga seus exames anteriores, se houver</li>
  </ul>
  <p>Atenciosamente,<br>Equipe Médica</p>
</div>`,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render fills a template for recipient. Values are HTML-escaped in the HTML
// part; keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID, recipient string, data map[string]string) (Message, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("template %q not found", templateID)
	}

	msg := Message{To: recipient, Subject: t.Subject, Text: t.Text, HTML: t.HTML}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		msg.Subject = strings.ReplaceAll(msg.Subject, placeholder, v)
		msg.Text = strings.ReplaceAll(msg.Text, placeholder, v)
		msg.HTML = strings.ReplaceAll(msg.HTML, placeholder, html.EscapeString(v))
	}
	return msg, nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu    sync.Mutex
	calls []Message
	// FailFor makes sends to these recipients fail.
	FailFor    map[string]bool
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail || m.FailFor[msg.To] {
		if m.FailError == "" {
			return errors.New("mock send failure")
		}
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MockEmailSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
