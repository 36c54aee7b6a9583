package feed

import (
	"errors"
	"testing"
)

func TestNormalizeTagFamilies(t *testing.T) {
	tests := []struct {
		tag  string
		want EventType
	}{
		{"complaint_created", EventCreated},
		{"NEW_COMPLAINT", EventCreated},
		{"complaint_updated", EventUpdated},
		{"UPDATED_COMPLAINT", EventUpdated},
		{"complaint_deleted", EventDeleted},
		{"DELETED_COMPLAINT", EventDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			raw := []byte(`{"type":"` + tt.tag + `","data":{"id":"c1","title":"t"}}`)
			evt, err := Normalize(raw)
			if err != nil {
				t.Fatal(err)
			}
			if evt.Type != tt.want {
				t.Errorf("type = %s, want %s", evt.Type, tt.want)
			}
			if evt.Complaint.ID != "c1" {
				t.Errorf("id = %q, want c1", evt.Complaint.ID)
			}
		})
	}
}

func TestNormalizeUnknownTag(t *testing.T) {
	_, err := Normalize([]byte(`{"type":"complaint_archived","data":{"id":"c1"}}`))
	if !errors.Is(err, ErrUnknownTag) {
		t.Errorf("err = %v, want ErrUnknownTag", err)
	}
}

func TestNormalizeMissingID(t *testing.T) {
	_, err := Normalize([]byte(`{"type":"complaint_created","data":{"title":"no id"}}`))
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("err = %v, want ErrMissingID", err)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"complaint_created","data":"not an object"}`,
		`{}`,
	} {
		if _, err := Normalize([]byte(raw)); err == nil {
			t.Errorf("Normalize(%q) should fail", raw)
		}
	}
}

func TestNormalizeParsesTimestamps(t *testing.T) {
	raw := []byte(`{"type":"complaint_created","data":{"id":"c1","createdAt":"2026-08-01T10:00:00Z","updatedAt":"2026-08-02T10:00:00Z"}}`)
	evt, err := Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Complaint.CreatedAt.IsZero() || evt.Complaint.UpdatedAt.IsZero() {
		t.Error("timestamps not parsed")
	}
	if !evt.Complaint.UpdatedAt.After(evt.Complaint.CreatedAt) {
		t.Error("updatedAt should be after createdAt")
	}
}
