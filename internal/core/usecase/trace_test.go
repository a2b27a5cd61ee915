package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

func TestTraceRecorderPersistsAndDrains(t *testing.T) {
	store := &fakeTraceStore{}
	recorder := NewTraceRecorder(store, testLogger(), nil, 8)

	for i := 0; i < 3; i++ {
		recorder.Record(domain.SearchTrace{ID: "t", Query: "q"})
	}
	recorder.Close()

	if got := store.savedCount(); got != 3 {
		t.Fatalf("expected 3 persisted traces after close, got %d", got)
	}
}

func TestTraceRecorderNeverBlocksCaller(t *testing.T) {
	store := &fakeTraceStore{block: make(chan struct{})}
	recorder := NewTraceRecorder(store, testLogger(), nil, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			recorder.Record(domain.SearchTrace{ID: "t", Query: "q"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Record blocked on a full buffer")
	}

	close(store.block)
	recorder.Close()

	// One in flight plus one buffered at most; the rest were dropped.
	if got := store.savedCount(); got > 2 {
		t.Fatalf("expected overflow traces to be dropped, persisted %d", got)
	}
}

func TestTraceRecorderSurvivesStoreFailure(t *testing.T) {
	store := &fakeTraceStore{errAll: errTraceStore}
	recorder := NewTraceRecorder(store, testLogger(), nil, 4)

	recorder.Record(domain.SearchTrace{ID: "t", Query: "q"})
	recorder.Close()
	// Reaching here without panic or deadlock is the assertion.
}

var errTraceStore = errors.New("trace store down")
