package meeting

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/minutes/internal/db"
	"github.com/zulandar/minutes/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := gorm.Open(sqlite.Open(db.SQLiteDSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func mustCreate(t *testing.T, gdb *gorm.DB, owner, title string) *models.Meeting {
	t.Helper()
	m, err := Create(gdb, CreateOpts{OwnerID: owner, Title: title, AudioPath: "meetings/" + title})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return m
}

func TestGenerateID_Format(t *testing.T) {
	id, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID() error: %v", err)
	}
	if !strings.HasPrefix(id, "mtg-") {
		t.Errorf("ID %q missing mtg- prefix", id)
	}
	if len(id) != 12 {
		t.Errorf("ID length = %d, want 12; id = %q", len(id), id)
	}
}

func TestCreate_ProcessingStatus(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "u1", "standup.mp3")

	if m.Status != models.StatusProcessing {
		t.Errorf("Status = %q, want %q", m.Status, models.StatusProcessing)
	}
	got, err := Get(gdb, "u1", m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "standup.mp3" {
		t.Errorf("Title = %q, want standup.mp3", got.Title)
	}
	if got.Transcription != "" {
		t.Errorf("Transcription = %q, want empty", got.Transcription)
	}
	if got.Summary != nil {
		t.Errorf("Summary = %q, want nil", *got.Summary)
	}
}

func TestCreate_Validation(t *testing.T) {
	gdb := testDB(t)
	if _, err := Create(gdb, CreateOpts{AudioPath: "k"}); err == nil {
		t.Error("expected error for missing owner")
	}
	if _, err := Create(gdb, CreateOpts{OwnerID: "u1"}); err == nil {
		t.Error("expected error for missing audio path")
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "alice", "a.mp3")

	_, err := Get(gdb, "bob", m.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get other owner err = %v, want ErrNotFound", err)
	}
	if _, err := Load(gdb, m.ID); err != nil {
		t.Errorf("Load: %v", err)
	}
	if _, err := Load(gdb, "mtg-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing err = %v, want ErrNotFound", err)
	}
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	gdb := testDB(t)
	a := mustCreate(t, gdb, "u1", "a.mp3")
	b := mustCreate(t, gdb, "u1", "b.mp3")
	mustCreate(t, gdb, "u2", "c.mp3")

	gdb.Model(&models.Meeting{}).Where("id = ?", a.ID).Update("created_at", time.Now().Add(-time.Hour))
	gdb.Model(&models.Meeting{}).Where("id = ?", b.ID).Update("status", models.StatusCompleted)

	all, err := List(gdb, "u1", ListFilters{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].ID != b.ID {
		t.Errorf("first = %s, want newest %s", all[0].ID, b.ID)
	}

	done, err := List(gdb, "u1", ListFilters{Status: models.StatusCompleted})
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(done) != 1 || done[0].ID != b.ID {
		t.Errorf("completed = %v, want [%s]", done, b.ID)
	}
}

func TestRecent_ProcessingFirstThenCompleted(t *testing.T) {
	gdb := testDB(t)
	var ids []string
	for _, title := range []string{"1.mp3", "2.mp3", "3.mp3", "4.mp3"} {
		ids = append(ids, mustCreate(t, gdb, "u1", title).ID)
	}
	base := time.Now().Add(-time.Hour)
	for i, id := range ids {
		gdb.Model(&models.Meeting{}).Where("id = ?", id).Update("created_at", base.Add(time.Duration(i)*time.Minute))
	}
	// 0 and 3 completed, 1 processing, 2 failed.
	gdb.Model(&models.Meeting{}).Where("id IN ?", []string{ids[0], ids[3]}).Update("status", models.StatusCompleted)
	gdb.Model(&models.Meeting{}).Where("id = ?", ids[2]).Update("status", models.StatusFailed)

	got, err := Recent(gdb, "u1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{ids[1], ids[3], ids[0]}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Recent[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{models.StatusPending, models.StatusProcessing, true},
		{models.StatusProcessing, models.StatusCompleted, true},
		{models.StatusProcessing, models.StatusFailed, true},
		{models.StatusFailed, models.StatusProcessing, true},
		{models.StatusCompleted, models.StatusProcessing, false},
		{models.StatusCompleted, models.StatusFailed, false},
		{models.StatusProcessing, models.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			gdb := testDB(t)
			m := mustCreate(t, gdb, "u1", "a.mp3")
			gdb.Model(&models.Meeting{}).Where("id = ?", m.ID).Update("status", tt.from)

			err := Transition(gdb, m.ID, tt.to)
			if tt.ok && err != nil {
				t.Fatalf("Transition: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Transition err = %v, want ErrInvalidTransition", err)
			}

			got, _ := Load(gdb, m.ID)
			want := tt.from
			if tt.ok {
				want = tt.to
			}
			if got.Status != want {
				t.Errorf("Status = %q, want %q", got.Status, want)
			}
		})
	}
}

func TestTransition_NotFound(t *testing.T) {
	gdb := testDB(t)
	if err := Transition(gdb, "mtg-nope", models.StatusFailed); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveTranscript(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "u1", "a.mp3")

	if err := SaveTranscript(gdb, m.ID, "hello"); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	got, _ := Load(gdb, m.ID)
	if got.Transcription != "hello" {
		t.Errorf("Transcription = %q, want hello", got.Transcription)
	}
	if err := SaveTranscript(gdb, "mtg-nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestComplete_StoresSummaryAndOrderedItems(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "u1", "a.mp3")

	err := Complete(gdb, m.ID, "We planned.", []string{"Ship v2", "  ", "Email Bob ", "Book room"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := Get(gdb, "u1", m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Summary == nil || *got.Summary != "We planned." {
		t.Errorf("Summary = %v, want %q", got.Summary, "We planned.")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	want := []string{"Ship v2", "Email Bob", "Book room"}
	if len(got.ActionItems) != len(want) {
		t.Fatalf("len(ActionItems) = %d, want %d", len(got.ActionItems), len(want))
	}
	for i, w := range want {
		if got.ActionItems[i].Content != w {
			t.Errorf("ActionItems[%d] = %q, want %q", i, got.ActionItems[i].Content, w)
		}
		if got.ActionItems[i].MeetingID != m.ID {
			t.Errorf("ActionItems[%d].MeetingID = %q, want %q", i, got.ActionItems[i].MeetingID, m.ID)
		}
	}
}

func TestComplete_RejectsCompleted(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "u1", "a.mp3")
	if err := Complete(gdb, m.ID, "s", nil); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if err := Complete(gdb, m.ID, "s2", []string{"x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Complete err = %v, want ErrInvalidTransition", err)
	}
	var n int64
	gdb.Model(&models.ActionItem{}).Where("meeting_id = ?", m.ID).Count(&n)
	if n != 0 {
		t.Errorf("action items = %d, want 0 after rejected complete", n)
	}
}

func TestResetOutput(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "u1", "a.mp3")
	SaveTranscript(gdb, m.ID, "old text")
	if err := Complete(gdb, m.ID, "old summary", []string{"old item"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := ResetOutput(gdb, m.ID); err != nil {
		t.Fatalf("ResetOutput: %v", err)
	}
	got, _ := Load(gdb, m.ID)
	if got.Transcription != "" {
		t.Errorf("Transcription = %q, want empty", got.Transcription)
	}
	if got.Summary != nil {
		t.Errorf("Summary = %q, want nil", *got.Summary)
	}
	if len(got.ActionItems) != 0 {
		t.Errorf("len(ActionItems) = %d, want 0", len(got.ActionItems))
	}
}

func TestDelete(t *testing.T) {
	gdb := testDB(t)
	m := mustCreate(t, gdb, "u1", "a.mp3")
	Complete(gdb, m.ID, "s", []string{"one", "two"})

	if err := Delete(gdb, "u2", m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete other owner err = %v, want ErrNotFound", err)
	}
	if err := Delete(gdb, "u1", m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := Load(gdb, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete err = %v, want ErrNotFound", err)
	}
	var n int64
	gdb.Model(&models.ActionItem{}).Where("meeting_id = ?", m.ID).Count(&n)
	if n != 0 {
		t.Errorf("action items left = %d, want 0", n)
	}
	if err := Delete(gdb, "u1", m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}
