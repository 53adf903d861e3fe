package schedule

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidDraft         = errors.New("invalid schedule draft")
	ErrConfirmationRequired = errors.New("delete requires confirmation")
)

// Draft is the editor form state for a single entry.
type Draft struct {
	Days        []string   `json:"days" validate:"omitempty,dive,weekday"`
	StartTime   string     `json:"startTime" validate:"omitempty,hhmm"`
	EndTime     string     `json:"endTime" validate:"omitempty,hhmm"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	IsAvailable bool       `json:"isAvailable"`
	Title       string     `json:"title" validate:"max=120"`
	Reason      string     `json:"reason" validate:"max=240"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, field.Field+": "+field.Message)
	}
	return ErrInvalidDraft.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDraft
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := ParseDay(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return validClock(fl.Field().String())
	})
	return v
}

func (d Draft) specific() bool {
	return d.Start != nil || d.End != nil
}

// Validate lists every rule the draft breaks; an empty result means it can be saved.
func (d Draft) Validate() []FieldError {
	var fields []FieldError
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, FieldError{Field: fieldName(fe), Message: formatMessage(fe)})
			}
		} else {
			fields = append(fields, FieldError{Field: "draft", Message: err.Error()})
		}
	}

	if d.specific() {
		if len(d.Days) > 0 || d.StartTime != "" || d.EndTime != "" {
			fields = append(fields, FieldError{Field: "days", Message: "a date range entry cannot also repeat weekly"})
		}
		if d.Start == nil || d.End == nil {
			fields = append(fields, FieldError{Field: "end", Message: "start and end are required"})
		} else if !d.End.After(*d.Start) {
			fields = append(fields, FieldError{Field: "end", Message: "end must be after start"})
		}
		return fields
	}

	if len(d.Days) == 0 {
		fields = append(fields, FieldError{Field: "days", Message: "select at least one day"})
	}
	if d.StartTime == "" {
		fields = append(fields, FieldError{Field: "startTime", Message: "start time is required"})
	}
	if d.EndTime == "" {
		fields = append(fields, FieldError{Field: "endTime", Message: "end time is required"})
	}
	if validClock(d.StartTime) && validClock(d.EndTime) && d.EndTime <= d.StartTime {
		fields = append(fields, FieldError{Field: "endTime", Message: "end time must be after start time"})
	}
	return fields
}

func (d Draft) CanSave() bool {
	return len(d.Validate()) == 0
}

func fieldName(fe validator.FieldError) string {
	namespace := fe.Namespace()
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return fe.Field()
}

func formatMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "weekday":
		return "unknown day " + fe.Value().(string)
	case "hhmm":
		return "must be HH:mm"
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}

type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is a staged change; persisting it is up to the caller.
type Op struct {
	Kind  OpKind
	Entry Entry
}

type Editor struct {
	officeID string
	doctorID string
	now      func() time.Time
	newID    func() string
}

func NewEditor(officeID, doctorID string) *Editor {
	return &Editor{
		officeID: officeID,
		doctorID: doctorID,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (e *Editor) Create(d Draft) (Op, error) {
	entry, err := e.build(e.newID(), d)
	if err != nil {
		return Op{}, err
	}
	return Op{Kind: OpCreate, Entry: entry}, nil
}

func (e *Editor) Update(entryID string, d Draft) (Op, error) {
	if strings.TrimSpace(entryID) == "" {
		return Op{}, &ValidationError{Fields: []FieldError{{Field: "id", Message: "entry id is required"}}}
	}
	entry, err := e.build(entryID, d)
	if err != nil {
		return Op{}, err
	}
	return Op{Kind: OpUpdate, Entry: entry}, nil
}

func (e *Editor) Delete(entryID string, confirmed bool) (Op, error) {
	if !confirmed {
		return Op{}, ErrConfirmationRequired
	}
	if strings.TrimSpace(entryID) == "" {
		return Op{}, &ValidationError{Fields: []FieldError{{Field: "id", Message: "entry id is required"}}}
	}
	return Op{Kind: OpDelete, Entry: Entry{ID: entryID, OfficeID: e.officeID, DoctorID: e.doctorID}}, nil
}

func (e *Editor) build(id string, d Draft) (Entry, error) {
	if fields := d.Validate(); len(fields) > 0 {
		return Entry{}, &ValidationError{Fields: fields}
	}
	raw := RawEntry{
		ID:          id,
		OfficeID:    e.officeID,
		DoctorID:    e.doctorID,
		Start:       d.Start,
		End:         d.End,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		IsAvailable: d.IsAvailable,
		Title:       strings.TrimSpace(d.Title),
		Reason:      strings.TrimSpace(d.Reason),
		UpdatedAt:   e.now().UTC(),
	}
	if !d.specific() {
		raw.Days = d.Days
	}
	entry, err := Decode(raw)
	if err != nil {
		return Entry{}, &ValidationError{Fields: []FieldError{{Field: "draft", Message: err.Error()}}}
	}
	return entry, nil
}
