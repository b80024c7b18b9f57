package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// Notifier sends the lifecycle's best-effort emails. Every send is
// fire-and-forget: failures are logged, never propagated.
type Notifier interface {
	SendWelcome(email, name string)
	SendStatusUpdate(email, name, title, oldStatus, newStatus, reportID, adminNotes string)
	SendNewReportAlert(adminEmail, title, reporterName, wasteType, severity, reportID, location string)
	SendMilestone(email, name string, points, milestone int)
}

// MailService delivers notification emails over SMTP. When the SMTP
// environment is incomplete the service is disabled and sends become no-ops.
type MailService struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Enabled  bool
}

func NewMailService() *MailService {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	user := os.Getenv("SMTP_USER")
	pass := os.Getenv("SMTP_PASS")
	from := os.Getenv("SMTP_FROM")

	enabled := host != "" && port != "" && user != "" && pass != "" && from != ""
	if !enabled {
		log.Println("[MAILER] Disabled: missing SMTP environment variables")
	}

	return &MailService{
		Host:     host,
		Port:     port,
		Username: user,
		Password: pass,
		From:     from,
		Enabled:  enabled,
	}
}

func (s *MailService) sendAsync(to []string, subject string, body string) {
	if !s.Enabled {
		return
	}

	go func() {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

		mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
		msg := []byte(fmt.Sprintf("To: %s\r\n"+
			"From: Reviwa <%s>\r\n"+
			"Subject: %s\r\n"+
			"%s\r\n%s", strings.Join(to, ","), s.From, subject, mime, body))

		if err := smtp.SendMail(addr, auth, s.From, to, msg); err != nil {
			log.Printf("[MAILER] Failed to send email to %v: %v", to, err)
		} else {
			log.Printf("[MAILER] Email sent to %v: %s", to, subject)
		}
	}()
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

func (s *MailService) SendWelcome(email, name string) {
	body, err := render(welcomeTmpl, map[string]string{"Name": name})
	if err != nil {
		log.Printf("[MAILER] %v", err)
		return
	}
	s.sendAsync([]string{email}, "Welcome to Reviwa 🌱", body)
}

func (s *MailService) SendStatusUpdate(email, name, title, oldStatus, newStatus, reportID, adminNotes string) {
	body, err := render(statusUpdateTmpl, map[string]string{
		"Name":       name,
		"Title":      title,
		"OldStatus":  oldStatus,
		"NewStatus":  newStatus,
		"ReportID":   reportID,
		"AdminNotes": adminNotes,
	})
	if err != nil {
		log.Printf("[MAILER] %v", err)
		return
	}
	s.sendAsync([]string{email}, fmt.Sprintf("Your report is now %s", newStatus), body)
}

func (s *MailService) SendNewReportAlert(adminEmail, title, reporterName, wasteType, severity, reportID, location string) {
	body, err := render(newReportTmpl, map[string]string{
		"Title":     title,
		"Reporter":  reporterName,
		"WasteType": wasteType,
		"Severity":  severity,
		"ReportID":  reportID,
		"Location":  location,
	})
	if err != nil {
		log.Printf("[MAILER] %v", err)
		return
	}
	s.sendAsync([]string{adminEmail}, "New waste report awaiting review", body)
}

func (s *MailService) SendMilestone(email, name string, points, milestone int) {
	body, err := render(milestoneTmpl, map[string]interface{}{
		"Name":      name,
		"Points":    points,
		"Milestone": milestone,
	})
	if err != nil {
		log.Printf("[MAILER] %v", err)
		return
	}
	s.sendAsync([]string{email}, fmt.Sprintf("You reached %d eco-points! 🎉", milestone), body)
}
