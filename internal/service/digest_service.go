package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
	"github.com/noah-isme/afterschool-roster-api/pkg/mail"
)

type dailyRosterSource interface {
	TodayRosters(ctx context.Context, date time.Time) ([]models.ClassRoster, error)
}

type digestRecipientSource interface {
	ListDigestEmails(ctx context.Context) ([]string, error)
}

// DigestServiceConfig holds static digest settings.
type DigestServiceConfig struct {
	Recipients []string
	Subject    string
}

// DigestService emails the rosters of every class meeting on a date.
type DigestService struct {
	rosters    dailyRosterSource
	recipients digestRecipientSource
	sender     mail.Sender
	metrics    *MetricsService
	cfg        DigestServiceConfig
	logger     *zap.Logger
}

// NewDigestService constructs DigestService.
func NewDigestService(rosters dailyRosterSource, recipients digestRecipientSource, sender mail.Sender, metrics *MetricsService, cfg DigestServiceConfig, logger *zap.Logger) *DigestService {
	if cfg.Subject == "" {
		cfg.Subject = "Today's after-school rosters"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestService{rosters: rosters, recipients: recipients, sender: sender, metrics: metrics, cfg: cfg, logger: logger}
}

// Send builds and delivers the digest for date. Nothing is sent when no class meets that day.
// Delivery is attempted once.
func (s *DigestService) Send(ctx context.Context, date time.Time) (*models.DigestResult, error) {
	rosters, err := s.rosters.TodayRosters(ctx, date)
	if err != nil {
		s.metrics.RecordDigest(outcomeFailed)
		return nil, err
	}

	result := &models.DigestResult{Classes: len(rosters), Recipients: []string{}}
	if len(rosters) > 0 {
		date = rosters[0].Date
	}
	result.Date = date.Format(dateLayout)
	for _, roster := range rosters {
		result.Students += len(roster.Entries)
		result.Absent += roster.Absent
	}
	if len(rosters) == 0 {
		result.Reason = "no classes meet on this date"
		s.metrics.RecordDigest(outcomeSkipped)
		s.logger.Info("digest skipped", zap.String("date", result.Date), zap.String("reason", result.Reason))
		return result, nil
	}

	recipients, err := s.resolveRecipients(ctx)
	if err != nil {
		s.metrics.RecordDigest(outcomeFailed)
		return nil, appErrors.Internal(err, "failed to load digest recipients")
	}
	result.Recipients = recipients
	if len(recipients) == 0 {
		result.Reason = "no digest recipients configured"
		s.metrics.RecordDigest(outcomeSkipped)
		s.logger.Warn("digest skipped", zap.String("date", result.Date), zap.String("reason", result.Reason))
		return result, nil
	}

	html, err := RenderDigest(date, rosters)
	if err != nil {
		s.metrics.RecordDigest(outcomeFailed)
		return nil, appErrors.Internal(err, "failed to render digest")
	}
	msg := mail.Message{
		To:      recipients,
		Subject: fmt.Sprintf("%s (%s)", s.cfg.Subject, date.Format("Mon Jan 2")),
		HTML:    html,
		Text:    digestText(rosters),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordDigest(outcomeFailed)
		s.logger.Error("digest delivery failed", zap.String("date", result.Date), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrMailFailed.Code, appErrors.ErrMailFailed.Status, "failed to deliver roster digest")
	}

	result.Sent = true
	s.metrics.RecordDigest(outcomeSuccess)
	s.logger.Info("digest sent",
		zap.String("date", result.Date),
		zap.Int("classes", result.Classes),
		zap.Int("students", result.Students),
		zap.Int("recipients", len(recipients)),
	)
	return result, nil
}

// resolveRecipients merges configured addresses with allow-listed digest subscribers,
// case-insensitively and in first-seen order.
func (s *DigestService) resolveRecipients(ctx context.Context) ([]string, error) {
	var subscribers []string
	if s.recipients != nil {
		var err error
		if subscribers, err = s.recipients.ListDigestEmails(ctx); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]struct{}, len(s.cfg.Recipients)+len(subscribers))
	out := make([]string, 0, len(s.cfg.Recipients)+len(subscribers))
	for _, list := range [][]string{s.cfg.Recipients, subscribers} {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			key := strings.ToLower(addr)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, addr)
		}
	}
	return out, nil
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"schedule": classSchedule,
	"category": categoryLabel,
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; font-size: 14px;">
<h2>After-school rosters for {{.Date.Format "Monday, January 2, 2006"}}</h2>
{{range .Rosters}}
<h3 style="margin-bottom: 4px;">{{.Class.Name}}</h3>
<p style="margin-top: 0; color: #555;">{{schedule .Class}}{{with .Class.Instructor}} &middot; {{.}}{{end}} &middot; {{len .Entries}} enrolled, {{.Absent}} absent</p>
{{if .Entries}}
<table cellpadding="4" cellspacing="0" border="1" style="border-collapse: collapse; margin-bottom: 16px;">
<tr style="background: #dbe5f1;"><th align="left">Student</th><th>Grade</th><th align="left">Category</th><th align="left">Notes</th><th>Attendance</th></tr>
{{range .Entries}}
<tr{{if .IsAbsent}} style="background: #fde2e2;"{{end}}>
<td>{{.StudentName}}</td><td align="center">{{.Grade}}</td><td>{{category .Category}}</td><td>{{.Notes}}</td>
<td align="center">{{if .AbsenceSource}}{{.AbsenceSource}}{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p><em>No students enrolled.</em></p>
{{end}}
{{end}}
</body>
</html>
`))

// RenderDigest renders the HTML digest body.
func RenderDigest(date time.Time, rosters []models.ClassRoster) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Date    time.Time
		Rosters []models.ClassRoster
	}{Date: date, Rosters: rosters}
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

func digestText(rosters []models.ClassRoster) string {
	var b strings.Builder
	for _, roster := range rosters {
		fmt.Fprintf(&b, "%s (%s)\n", roster.Class.Name, classSchedule(roster.Class))
		for _, entry := range roster.Entries {
			line := "  " + entry.StudentName
			if entry.AbsenceSource != nil {
				line += " [" + string(*entry.AbsenceSource) + "]"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func classSchedule(class models.ClassOffering) string {
	if class.StartTime == nil || class.EndTime == nil {
		return "time TBD"
	}
	return *class.StartTime + " - " + *class.EndTime
}

func categoryLabel(category *models.EnrollmentCategory) string {
	if category == nil {
		return ""
	}
	return strings.ReplaceAll(string(*category), "_", " ")
}
