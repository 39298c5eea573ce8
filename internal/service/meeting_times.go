package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

var meetingTimesPattern = regexp.MustCompile(`(?i)^\s*([a-z]+)\.?\s+(\d{1,2}):(\d{2})\s*([ap])?\.?\s*(?:m\.?)?\s*[-–]\s*(\d{1,2}):(\d{2})\s*([ap])?\.?\s*(?:m\.?)?\s*$`)

var dayCodes = map[string]models.MeetingDay{
	"m": models.MeetingDayMonday, "mon": models.MeetingDayMonday, "monday": models.MeetingDayMonday,
	"t": models.MeetingDayTuesday, "tu": models.MeetingDayTuesday, "tue": models.MeetingDayTuesday,
	"tues": models.MeetingDayTuesday, "tuesday": models.MeetingDayTuesday,
	"w": models.MeetingDayWednesday, "wed": models.MeetingDayWednesday, "wednesday": models.MeetingDayWednesday,
	"r": models.MeetingDayThursday, "h": models.MeetingDayThursday, "th": models.MeetingDayThursday,
	"thu": models.MeetingDayThursday, "thur": models.MeetingDayThursday, "thurs": models.MeetingDayThursday,
	"thursday": models.MeetingDayThursday,
}

// ParseMeetingTimes reads strings such as "M 3:30 - 4:30" or "Thursday 3:15 PM - 5:00 PM".
// Anything it cannot read yields an unknown day with no times and ok=false.
func ParseMeetingTimes(raw string) (models.ClassSchedule, bool) {
	unknown := models.ClassSchedule{Day: models.MeetingDayUnknown}

	m := meetingTimesPattern.FindStringSubmatch(raw)
	if m == nil {
		return unknown, false
	}
	day, ok := dayCodes[strings.ToLower(m[1])]
	if !ok {
		return unknown, false
	}
	start, ok := clockMinutes(m[2], m[3], m[4])
	if !ok {
		return unknown, false
	}
	end, ok := clockMinutes(m[5], m[6], m[7])
	if !ok || end <= start {
		return unknown, false
	}

	startText := formatClock(start)
	endText := formatClock(end)
	return models.ClassSchedule{Day: day, StartTime: &startText, EndTime: &endText}, true
}

// clockMinutes converts an hour, minute and optional a/p marker into minutes past midnight.
// Bare hours from 1 to 6 are afternoon times.
func clockMinutes(hourText, minuteText, meridiem string) (int, bool) {
	hour, err := strconv.Atoi(hourText)
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute > 59 {
		return 0, false
	}

	switch strings.ToLower(meridiem) {
	case "a":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, false
		}
		if hour >= 1 && hour <= 6 {
			hour += 12
		}
	}
	return hour*60 + minute, true
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

var categoryNormalizer = strings.NewReplacer(" ", "", "-", "", "_", "")

var categoryCodes = map[string]models.EnrollmentCategory{
	"enrolled":     models.CategoryEnrolled,
	"registered":   models.CategoryRegistered,
	"trial":        models.CategoryTrial,
	"financialaid": models.CategoryFinancialAid,
	"dropin":       models.CategoryDropIn,
}

// MapCategory maps a feed enrollment status onto a category. Unrecognised values map to nil.
func MapCategory(raw *string) *models.EnrollmentCategory {
	if raw == nil {
		return nil
	}
	key := categoryNormalizer.Replace(strings.ToLower(strings.TrimSpace(*raw)))
	category, ok := categoryCodes[key]
	if !ok {
		return nil
	}
	return &category
}
