package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
	"github.com/noah-isme/afterschool-roster-api/pkg/mail"
)

type mailSpy struct {
	sent []mail.Message
	err  error
}

func (m *mailSpy) Send(ctx context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type subscriberStub struct {
	emails []string
}

func (s *subscriberStub) ListDigestEmails(ctx context.Context) ([]string, error) {
	return s.emails, nil
}

func newDigestFixture(configured []string, subscribers []string) (*DigestService, *rosterFixture, *mailSpy) {
	roster := newRosterFixture()
	roster.enrollments.byClass["class-1"] = []models.Enrollment{
		enrolled("e1", "class-1", 1, models.ProvenanceExternal),
		enrolled("e2", "class-1", 2, models.ProvenanceManual),
	}
	roster.attendance.manual = []models.ManualAbsence{{ClassID: "class-1", StudentExternalID: 2, Date: rosterMonday}}
	spy := &mailSpy{}
	svc := NewDigestService(roster.svc, &subscriberStub{emails: subscribers}, spy, NewMetricsService(), DigestServiceConfig{Recipients: configured, Subject: "Rosters"}, nil)
	return svc, roster, spy
}

func TestDigestServiceSendsOneMessageForAllClasses(t *testing.T) {
	svc, _, spy := newDigestFixture([]string{"office@example.org"}, []string{"Office@example.org", "coach@example.org"})

	result, err := svc.Send(context.Background(), rosterMonday)
	require.NoError(t, err)

	assert.True(t, result.Sent)
	assert.Equal(t, "2024-09-09", result.Date)
	assert.Equal(t, 2, result.Classes)
	assert.Equal(t, 2, result.Students)
	assert.Equal(t, 1, result.Absent)
	assert.Equal(t, []string{"office@example.org", "coach@example.org"}, result.Recipients)

	require.Len(t, spy.sent, 1)
	msg := spy.sent[0]
	assert.Contains(t, msg.Subject, "Rosters")
	assert.Contains(t, msg.HTML, "Chess")
	assert.Contains(t, msg.HTML, "Art")
	assert.Contains(t, msg.HTML, "adams, Bob")
	assert.Contains(t, msg.HTML, "MANUAL")
	assert.Contains(t, msg.Text, "adams, Bob [MANUAL]")
}

func TestDigestServiceSkipsDaysWithoutClasses(t *testing.T) {
	svc, _, spy := newDigestFixture([]string{"office@example.org"}, nil)

	result, err := svc.Send(context.Background(), rosterMonday.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, spy.sent)
}

func TestDigestServiceSkipsWithoutRecipients(t *testing.T) {
	svc, _, spy := newDigestFixture(nil, nil)

	result, err := svc.Send(context.Background(), rosterMonday)
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.Empty(t, spy.sent)
}

func TestDigestServiceReportsDeliveryFailure(t *testing.T) {
	svc, _, spy := newDigestFixture([]string{"office@example.org"}, nil)
	spy.err = errors.New("sendgrid: status 401")

	_, err := svc.Send(context.Background(), rosterMonday)
	assertAppError(t, err, appErrors.ErrMailFailed)
}

func TestRenderDigestEscapesContent(t *testing.T) {
	notes := models.ClassRoster{
		Class:   models.ClassOffering{Name: "Art <Studio>"},
		Date:    rosterMonday,
		Entries: []models.RosterEntry{{StudentName: "Smith, Ann", Notes: "<b>allergy</b>"}},
	}

	html, err := RenderDigest(time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC), []models.ClassRoster{notes})
	require.NoError(t, err)
	assert.Contains(t, html, "Monday, September 9, 2024")
	assert.Contains(t, html, "Art &lt;Studio&gt;")
	assert.NotContains(t, html, "<b>allergy</b>")
	assert.Contains(t, html, "time TBD")
}
