package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestTemplateEngine_BuiltIns(t *testing.T) {
	e := NewTemplateEngine()
	for _, id := range []string{TemplateConfirmation, TemplateReminder} {
		if _, err := e.Render(id, "x@example.com", nil); err != nil {
			t.Errorf("expected built-in template %s: %v", id, err)
		}
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	msg, err := e.Render(TemplateConfirmation, "maria@example.com", map[string]string{
		"patient_name": "Maria",
		"doctor_name":  "Dr. João",
		"date":         "15/03/2026",
		"time":         "09:30",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "maria@example.com" {
		t.Errorf("unexpected recipient %s", msg.To)
	}
	if !strings.Contains(msg.Text, "Maria") || !strings.Contains(msg.Text, "15/03/2026 às 09:30") {
		t.Errorf("text not rendered: %s", msg.Text)
	}
	if !strings.Contains(msg.HTML, "<strong>Maria</strong>") {
		t.Errorf("html not rendered: %s", msg.HTML)
	}
	if !strings.Contains(msg.Text, "{{appointment_id}}") {
		t.Error("missing keys should be left as-is")
	}
}

func TestTemplateEngine_EscapesHTML(t *testing.T) {
	e := NewTemplateEngine()
	msg, _ := e.Render(TemplateReminder, "a@b.c", map[string]string{"patient_name": "<script>x</script>"})
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("expected patient name to be escaped in HTML")
	}
	if !strings.Contains(msg.Text, "<script>x</script>") {
		t.Error("plain text keeps the raw value")
	}
}

func TestTemplateEngine_Unknown(t *testing.T) {
	if _, err := NewTemplateEngine().Render("nope", "a@b.c", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngine_RegisterTemplate(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: "custom", Subject: "Hi {{name}}", Text: "Body"})
	msg, err := e.Render("custom", "a@b.c", map[string]string{"name": "Ana"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "Hi Ana" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
}

func testAppointment() AppointmentMessage {
	return AppointmentMessage{
		AppointmentID: uuid.New(),
		PatientName:   "Maria Silva",
		PatientEmail:  "maria@example.com",
		DoctorName:    "Dr. João Santos",
		ScheduledAt:   time.Date(2026, 3, 16, 12, 30, 0, 0, time.UTC),
	}
}

func TestMailer_Confirmation(t *testing.T) {
	sender := &MockEmailSender{}
	loc := time.FixedZone("BRT", -3*60*60)
	m := NewMailer(sender, NewTemplateEngine(), loc, 24, zerolog.Nop())

	a := testAppointment()
	if err := m.SendAppointmentConfirmation(context.Background(), a); err != nil {
		t.Fatalf("send: %v", err)
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	msg := calls[0]
	if msg.To != a.PatientEmail || msg.Subject != "Confirmação de Consulta Médica" {
		t.Errorf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Text, "16/03/2026 às 09:30") {
		t.Errorf("expected local date and time in text, got %s", msg.Text)
	}
	if !strings.Contains(msg.Text, a.AppointmentID.String()) {
		t.Error("expected appointment id in text")
	}
	if m.Stats()["sent"] != 1 {
		t.Errorf("expected sent=1, got %v", m.Stats())
	}
}

func TestMailer_FailureIsNotificationError(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	m := NewMailer(sender, NewTemplateEngine(), time.UTC, 24, zerolog.Nop())

	err := m.SendAppointmentReminder(context.Background(), testAppointment())
	if !errors.Is(err, apperr.ErrNotificationFailure) {
		t.Fatalf("expected notification failure, got %v", err)
	}
	if m.Stats()["failed"] != 1 {
		t.Errorf("expected failed=1, got %v", m.Stats())
	}
}

func TestMockEmailSender_FailFor(t *testing.T) {
	s := &MockEmailSender{FailFor: map[string]bool{"bad@example.com": true}}
	if err := s.SendEmail(context.Background(), Message{To: "ok@example.com"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.SendEmail(context.Background(), Message{To: "bad@example.com"}); err == nil {
		t.Error("expected failure for listed recipient")
	}
	if len(s.Calls()) != 2 {
		t.Errorf("expected 2 recorded calls, got %d", len(s.Calls()))
	}
}

func TestLogSender(t *testing.T) {
	var buf strings.Builder
	s := NewLogSender(zerolog.New(&buf))
	if err := s.SendEmail(context.Background(), Message{To: "a@b.c", Subject: "Hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"to":"a@b.c"`) {
		t.Errorf("expected recipient in log, got %s", buf.String())
	}
}

func TestNewSMTPSender(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "clinic@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.from != "clinic@example.com" {
		t.Errorf("unexpected from %s", s.from)
	}
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "clinic@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SendEmail(context.Background(), Message{To: "not an address"}); err == nil {
		t.Error("expected invalid recipient error before dialing")
	}
}
