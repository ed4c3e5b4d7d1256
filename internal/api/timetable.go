package api

import (
	"context"
	"encoding/json"
)

// TimetableEntry is the body of POST /timetable/update. A nil ID creates a
// new entry.
type TimetableEntry struct {
	ID        *string `json:"_id"`
	FacultyID string  `json:"facultyId" validate:"required"`
	Day       string  `json:"day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday"`
	TimeSlot  string  `json:"timeSlot" validate:"required"`
	Subject   string  `json:"subject" validate:"required"`
	ClassName string  `json:"className"`
	Room      string  `json:"room"`
}

// Timetable returns the timetable for the logged-in user.
func (c *Client) Timetable(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/timetable")
}

// ClassTimetable returns a class's timetable.
func (c *Client) ClassTimetable(ctx context.Context, className string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/timetable/class/"+seg(className))
}

// FacultyTimetable returns a faculty member's timetable.
func (c *Client) FacultyTimetable(ctx context.Context, facultyID string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/timetable/faculty/"+seg(facultyID))
}

// UpdateTimetable creates or replaces one slot. The backend mails the
// affected students.
func (c *Client) UpdateTimetable(ctx context.Context, entry TimetableEntry) (json.RawMessage, error) {
	if err := validateRequest(entry); err != nil {
		return nil, err
	}
	return c.postRaw(ctx, "/timetable/update", entry)
}

// DeleteTimetableEntry removes one slot.
func (c *Client) DeleteTimetableEntry(ctx context.Context, id string) (json.RawMessage, error) {
	return c.deleteRaw(ctx, "/timetable/entry/"+seg(id))
}
