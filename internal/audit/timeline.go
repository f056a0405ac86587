package audit

import "time"

// TimelineFilters holds the filters of the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Subject  string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one row of the audit timeline.
type TimelineRow struct {
	At         time.Time
	Action     string
	Subject    string
	Role       string
	SessionID  string
	Path       string
	RemoteAddr string
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// FiltersViewModel carries filter values back into the form.
type FiltersViewModel struct {
	From    string
	To      string
	Subject string
	Action  string
}

// ViewModel bundles the audit timeline template data.
type ViewModel struct {
	Filters   FiltersViewModel
	Actions   []string
	CanExport bool
	Rows      []TimelineRow
	Paging    PagingInfo
}

// Query is the storage-level form of TimelineFilters. To is exclusive and a
// zero Limit means no limit.
type Query struct {
	From    time.Time
	To      time.Time
	Subject string
	Action  string
	Limit   int
	Offset  int
}
