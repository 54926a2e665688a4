package importer

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/go-playground/validator/v10"
)

// DateLayouts are the date formats accepted in import files and request bodies
var DateLayouts = []string{"2006-01-02", "01/02/2006", time.RFC3339, "2006-01-02 15:04:05"}

// ParseDate parses a date in any accepted layout and truncates it to the day
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
}

type projectRow struct {
	ProjectNumber     string    `csv:"project_number" validate:"required,max=50"`
	ModelType         string    `csv:"model_type" validate:"required,oneof=PAH PPH REF APS PSC"`
	CustomerCountry   string    `csv:"customer_country" validate:"required,max=50"`
	EstimatedHours    float64   `csv:"estimated_hours" validate:"gt=0"`
	DifficultyLevel   int       `csv:"difficulty_level" validate:"min=1,max=5"`
	Priority          string    `csv:"priority" validate:"oneof=low normal high urgent"`
	AssemblyStartDate time.Time `csv:"assembly_start_date" validate:"required"`
	Deadline          time.Time `csv:"deadline" validate:"required,gtefield=AssemblyStartDate"`
}

type skillRow struct {
	Username         string  `csv:"username" validate:"required"`
	MachineType      string  `csv:"machine_type" validate:"required,oneof=PAH PPH REF APS PSC"`
	SkillLevel       string  `csv:"skill_level" validate:"required,oneof=primary secondary"`
	EfficiencyFactor float64 `csv:"efficiency_factor" validate:"gt=0,lte=2"`
}

type vacationRow struct {
	Username  string    `csv:"username" validate:"required"`
	StartDate time.Time `csv:"start_date" validate:"required"`
	EndDate   time.Time `csv:"end_date" validate:"required,gtefield=StartDate"`
	Approved  bool      `csv:"approved"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("csv")
	})
	return v
}

// rowError converts a parse or validation failure into a row report
func rowError(row int, err error) models.RowError {
	var fe *fieldErr
	if errors.As(err, &fe) {
		return models.RowError{Row: row, Field: fe.field, Message: fe.msg}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		v := verrs[0]
		return models.RowError{Row: row, Field: v.Field(), Message: describe(v)}
	}
	return models.RowError{Row: row, Message: err.Error()}
}

func describe(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + v.Param()
	case "gt":
		return "must be greater than " + v.Param()
	case "lte", "max":
		return "must be at most " + v.Param()
	case "min":
		return "must be at least " + v.Param()
	case "gtefield":
		return "must not be before the start date"
	}
	return "failed " + v.Tag() + " check"
}

type fieldErr struct {
	field string
	msg   string
}

func (e *fieldErr) Error() string { return e.field + ": " + e.msg }

// rowReader pulls typed values out of one table row, remembering the first failure
type rowReader struct {
	t   *Table
	row []string
	err error
}

func (r *rowReader) str(col string) string {
	return r.t.Cell(r.row, col)
}

func (r *rowReader) number(col string, def float64) float64 {
	s := r.str(col)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		r.fail(col, "must be a number")
		return def
	}
	return v
}

func (r *rowReader) whole(col string, def int) int {
	s := r.str(col)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail(col, "must be a whole number")
	}
	return v
}

func (r *rowReader) date(col string) time.Time {
	s := r.str(col)
	if s == "" {
		return time.Time{}
	}
	t, err := ParseDate(s)
	if err != nil {
		r.fail(col, err.Error())
	}
	return t
}

func (r *rowReader) flag(col string, def bool) bool {
	switch strings.ToLower(r.str(col)) {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	r.fail(col, "must be true or false")
	return def
}

func (r *rowReader) fail(col, msg string) {
	if r.err == nil {
		r.err = &fieldErr{field: col, msg: msg}
	}
}

func parseProject(t *Table, row []string) (projectRow, error) {
	r := &rowReader{t: t, row: row}
	p := projectRow{
		ProjectNumber:     r.str("project_number"),
		ModelType:         strings.ToUpper(r.str("model_type")),
		CustomerCountry:   r.str("customer_country"),
		EstimatedHours:    r.number("estimated_hours", 0),
		DifficultyLevel:   r.whole("difficulty_level", 3),
		Priority:          strings.ToLower(r.str("priority")),
		AssemblyStartDate: r.date("assembly_start_date"),
		Deadline:          r.date("deadline"),
	}
	if p.Priority == "" {
		p.Priority = string(models.PriorityNormal)
	}
	if r.err != nil {
		return p, r.err
	}
	return p, validate.Struct(p)
}

func parseSkill(t *Table, row []string) (skillRow, error) {
	r := &rowReader{t: t, row: row}
	s := skillRow{
		Username:         r.str("username"),
		MachineType:      strings.ToUpper(r.str("machine_type")),
		SkillLevel:       strings.ToLower(r.str("skill_level")),
		EfficiencyFactor: r.number("efficiency_factor", 1),
	}
	if r.err != nil {
		return s, r.err
	}
	return s, validate.Struct(s)
}

func parseVacation(t *Table, row []string) (vacationRow, error) {
	r := &rowReader{t: t, row: row}
	v := vacationRow{
		Username:  r.str("username"),
		StartDate: r.date("start_date"),
		EndDate:   r.date("end_date"),
		Approved:  r.flag("approved", true),
	}
	if r.err != nil {
		return v, r.err
	}
	return v, validate.Struct(v)
}
