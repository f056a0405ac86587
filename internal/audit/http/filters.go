package audithttp

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/careportal/careportal/internal/audit"
	"github.com/careportal/careportal/internal/shared"
)

const (
	dateLayout       = "2006-01-02"
	defaultPageSize  = 20
	maxPageSize      = 50
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 366 * 24 * time.Hour
)

// filterInput is the decoded query string, checked by newFilterValidator.
type filterInput struct {
	From     time.Time
	To       time.Time `validate:"gtefield=From"`
	Subject  string    `validate:"max=64,printascii"`
	Action   string    `validate:"omitempty,audit_action"`
	Page     int       `validate:"min=1"`
	PageSize int       `validate:"min=1"`
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return "validation failed: " + v.field
}

func newFilterValidator() *validator.Validate {
	v := validator.New()
	known := make(map[string]struct{}, len(shared.AuditActions()))
	for _, action := range shared.AuditActions() {
		known[action] = struct{}{}
	}
	_ = v.RegisterValidation("audit_action", func(fl validator.FieldLevel) bool {
		_, ok := known[fl.Field().String()]
		return ok
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(filterInput)
		if in.To.Sub(in.From) > maxDateRange {
			sl.ReportError(in.To, "To", "to", "max_range", "")
		}
	}, filterInput{})
	return v
}

// decodeFilters reads the timeline query. Missing dates default to the week
// ending today; page_size above the maximum is clamped rather than rejected.
func decodeFilters(query url.Values, today time.Time) (filterInput, error) {
	in := filterInput{
		Subject:  strings.TrimSpace(query.Get("subject")),
		Action:   strings.ToLower(strings.TrimSpace(query.Get("action"))),
		Page:     1,
		PageSize: defaultPageSize,
	}
	var err error
	if in.To, err = parseDate(query.Get("to"), today.Truncate(24*time.Hour)); err != nil {
		return in, validationError{field: "to"}
	}
	if in.From, err = parseDate(query.Get("from"), in.To.Add(-defaultDateRange)); err != nil {
		return in, validationError{field: "from"}
	}
	if in.Page, err = parseInt(query.Get("page"), in.Page); err != nil {
		return in, validationError{field: "page"}
	}
	if in.PageSize, err = parseInt(query.Get("page_size"), in.PageSize); err != nil {
		return in, validationError{field: "page_size"}
	}
	if in.PageSize > maxPageSize {
		in.PageSize = maxPageSize
	}
	return in, nil
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(dateLayout, raw)
}

func parseInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) parseFilters(query url.Values) (audit.TimelineFilters, error) {
	in, err := decodeFilters(query, h.clock.Now().UTC())
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	if err := h.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return audit.TimelineFilters{}, validationError{field: strings.ToLower(fieldErrs[0].Field())}
		}
		return audit.TimelineFilters{}, err
	}
	return audit.TimelineFilters{
		From:     in.From,
		To:       in.To,
		Subject:  in.Subject,
		Action:   in.Action,
		Page:     in.Page,
		PageSize: in.PageSize,
	}, nil
}

func buildViewModel(filters audit.TimelineFilters, result audit.Result, canExport bool) audit.ViewModel {
	return audit.ViewModel{
		Filters: audit.FiltersViewModel{
			From:    filters.From.Format(dateLayout),
			To:      filters.To.Format(dateLayout),
			Subject: filters.Subject,
			Action:  filters.Action,
		},
		Actions:   shared.AuditActions(),
		CanExport: canExport,
		Rows:      result.Rows,
		Paging:    result.Paging,
	}
}
