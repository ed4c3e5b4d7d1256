package api

import (
	"context"
	"encoding/json"
	"net/url"
)

// AttendanceRecord is one student's mark within a session.
type AttendanceRecord struct {
	StudentID   string `json:"studentId" validate:"required"`
	StudentName string `json:"studentName"`
	Status      string `json:"status" validate:"required,oneof=Present Absent"`
}

// MarkAttendanceRequest is the body of POST /attendance/mark-attendance.
type MarkAttendanceRequest struct {
	FacultyID      string             `json:"facultyId" validate:"required"`
	ClassName      string             `json:"className" validate:"required"`
	Subject        string             `json:"subject" validate:"required"`
	Session        string             `json:"session" validate:"required,oneof=Morning Afternoon Evening"`
	AttendanceData []AttendanceRecord `json:"attendanceData" validate:"required,min=1,dive"`
}

// AttendanceFilter narrows a student's attendance report. Empty fields are
// not sent.
type AttendanceFilter struct {
	Subject string
	Month   string
	Year    string
}

func (f AttendanceFilter) query() string {
	q := url.Values{}
	if f.Subject != "" {
		q.Set("subject", f.Subject)
	}
	if f.Month != "" {
		q.Set("month", f.Month)
	}
	if f.Year != "" {
		q.Set("year", f.Year)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// MarkAttendance records a session's attendance for a class.
func (c *Client) MarkAttendance(ctx context.Context, req MarkAttendanceRequest) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return c.postRaw(ctx, "/attendance/mark-attendance", req)
}

// StudentAttendance returns a student's attendance report.
func (c *Client) StudentAttendance(ctx context.Context, studentID string, filter AttendanceFilter) (json.RawMessage, error) {
	return c.getRaw(ctx, "/attendance/student/"+seg(studentID)+filter.query())
}

// FacultyClasses lists the classes a faculty member teaches.
func (c *Client) FacultyClasses(ctx context.Context, facultyID string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/attendance/faculty-classes/"+seg(facultyID))
}

// ClassStudents lists the students of a class.
func (c *Client) ClassStudents(ctx context.Context, className string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/attendance/class-students/"+seg(className))
}
