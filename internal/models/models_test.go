package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	if got := f.Type.String(); got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestMeeting_Fields(t *testing.T) {
	typ := reflect.TypeOf(Meeting{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "OwnerID", "index")
	assertGormTag(t, typ, "OwnerID", "not null")
	assertGormTag(t, typ, "AudioPath", "not null")
	assertGormTag(t, typ, "Transcription", "type:text")
	assertGormTag(t, typ, "Summary", "type:text")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "ActionItems", "foreignKey:MeetingID")

	assertFieldType(t, typ, "Summary", "*string")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
	assertFieldType(t, typ, "ActionItems", "[]models.ActionItem")
}

func TestActionItem_Fields(t *testing.T) {
	typ := reflect.TypeOf(ActionItem{})

	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "MeetingID", "index")
	assertGormTag(t, typ, "Position", "not null")
	assertGormTag(t, typ, "Content", "type:text")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "Position", "int")
}

func TestQueueItem_Fields(t *testing.T) {
	typ := reflect.TypeOf(QueueItem{})

	assertGormTag(t, typ, "MeetingID", "index")
	assertGormTag(t, typ, "Status", "default:queued")
	assertGormTag(t, typ, "AvailableAt", "index")
	assertGormTag(t, typ, "LastError", "type:text")

	assertFieldType(t, typ, "AvailableAt", "time.Time")
	assertFieldType(t, typ, "ClaimedAt", "*time.Time")
}

func TestWorker_Fields(t *testing.T) {
	typ := reflect.TypeOf(Worker{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "LastActivity", "index")

	assertFieldType(t, typ, "LastActivity", "time.Time")
}

func TestStatusConstants(t *testing.T) {
	got := []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	want := []string{"pending", "processing", "completed", "failed"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
