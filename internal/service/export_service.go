package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
	"github.com/noah-isme/afterschool-roster-api/pkg/export"
)

type classRosterReader interface {
	ClassRoster(ctx context.Context, classID string, date time.Time) (*models.ClassRoster, error)
}

// PrintResult is a rendered roster document.
type PrintResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

var rosterHeaders = []string{"#", "Student", "Grade", "Category", "Fee Paid", "Notes", "Attendance"}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// ExportService renders printable rosters.
type ExportService struct {
	rosters   classRosterReader
	exporters map[models.ExportFormat]export.Exporter
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with PDF, CSV and XLSX renderers.
func NewExportService(rosters classRosterReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		rosters: rosters,
		exporters: map[models.ExportFormat]export.Exporter{
			models.ExportFormatPDF:  export.NewPDFExporter(),
			models.ExportFormatCSV:  export.NewCSVExporter(),
			models.ExportFormatXLSX: export.NewXLSXExporter(),
		},
		logger: logger,
	}
}

// PrintRoster renders the roster of a class for date in the requested format (PDF by default).
func (s *ExportService) PrintRoster(ctx context.Context, classID string, date time.Time, format models.ExportFormat) (*PrintResult, error) {
	if format == "" {
		format = models.ExportFormatPDF
	}
	exporter, ok := s.exporters[models.ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be pdf, csv or xlsx")
	}

	roster, err := s.rosters.ClassRoster(ctx, classID, date)
	if err != nil {
		return nil, err
	}

	data, err := exporter.Render(rosterDataset(roster))
	if err != nil {
		s.logger.Error("roster render failed", zap.String("class_id", classID), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to render roster")
	}
	return &PrintResult{
		Filename:    rosterFilename(roster, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

func rosterDataset(roster *models.ClassRoster) export.Dataset {
	subtitle := []string{roster.Date.Format("Monday, January 2, 2006"), classSchedule(roster.Class)}
	if roster.Class.Instructor != nil && *roster.Class.Instructor != "" {
		subtitle = append(subtitle, *roster.Class.Instructor)
	}
	subtitle = append(subtitle, fmt.Sprintf("%d enrolled, %d absent", len(roster.Entries), roster.Absent))

	ds := export.Dataset{
		Title:    roster.Class.Name,
		Subtitle: strings.Join(subtitle, " | "),
		Headers:  rosterHeaders,
		Rows:     make([]map[string]string, 0, len(roster.Entries)),
		Marked:   map[int]bool{},
	}
	for i, entry := range roster.Entries {
		fee := "No"
		if entry.FeePaid {
			fee = "Yes"
		}
		attendance := ""
		if entry.AbsenceSource != nil {
			attendance = string(*entry.AbsenceSource)
		}
		ds.Rows = append(ds.Rows, map[string]string{
			"#":          strconv.Itoa(i + 1),
			"Student":    entry.StudentName,
			"Grade":      strconv.Itoa(entry.Grade),
			"Category":   categoryLabel(entry.Category),
			"Fee Paid":   fee,
			"Notes":      entry.Notes,
			"Attendance": attendance,
		})
		if entry.IsAbsent {
			ds.Marked[i] = true
		}
	}
	return ds
}

func rosterFilename(roster *models.ClassRoster, ext string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(roster.Class.Name), "-"), "-")
	if slug == "" {
		slug = "class"
	}
	return fmt.Sprintf("roster-%s-%s.%s", slug, roster.Date.Format(dateLayout), ext)
}
