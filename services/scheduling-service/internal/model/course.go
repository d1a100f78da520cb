package model

// Term is an academic term whose courses students can browse.
type Term struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
}

// Course is one offering in a term's catalog. Department may be empty in storage; the
// catalog derives it from the course number.
type Course struct {
	ID          string `json:"id"`
	TermCode    string `json:"term_code"`
	Number      string `json:"course_number"`
	Title       string `json:"course_title"`
	Instructor  string `json:"instructor,omitempty"`
	Department  string `json:"department"`
	Description string `json:"description,omitempty"`
	Units       string `json:"units,omitempty"`
	Days        string `json:"days,omitempty"`
	Time        string `json:"time,omitempty"`
	Location    string `json:"location,omitempty"`
	SessionType string `json:"session_type,omitempty"`
}
