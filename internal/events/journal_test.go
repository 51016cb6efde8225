package events

import "testing"

func TestJournalRecordsEmittedEvents(t *testing.T) {
	j := NewJournal(10)
	b := New(WithJournal(j))
	b.Emit(ActionChatOpened, ChatOpened{ChatID: "c1"}, "widget")
	b.Emit(ActionChatClosed, ChatClosed{ChatID: "c1"}, "widget")

	got := j.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Action != ActionChatOpened || got[1].Action != ActionChatClosed {
		t.Fatalf("unexpected order: %s, %s", got[0].Action, got[1].Action)
	}
	if n := len(j.ListAction(ActionChatClosed)); n != 1 {
		t.Fatalf("expected 1 chat_closed entry, got %d", n)
	}
}

func TestJournalCapsAndMarksTruncation(t *testing.T) {
	j := NewJournal(4)
	b := New(WithJournal(j))
	for i := 0; i < 10; i++ {
		b.Emit(ActionModalOpened, ModalOpened{Name: "m"}, "")
	}
	got := j.List()
	if len(got) != 4 {
		t.Fatalf("expected journal capped at 4, got %d", len(got))
	}
	marker, ok := got[0].Payload.(JournalTruncated)
	if !ok || got[0].Action != ActionJournalTruncated {
		t.Fatalf("expected truncation marker first, got %+v", got[0])
	}
	if marker.Dropped != 7 || marker.Kept != 3 {
		t.Fatalf("unexpected marker %+v", marker)
	}
	if j.Dropped() != 7 {
		t.Fatalf("expected 7 dropped, got %d", j.Dropped())
	}
	for _, e := range got[1:] {
		if e.Action != ActionModalOpened {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
}
