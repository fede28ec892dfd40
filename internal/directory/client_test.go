package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zap.NewNop())
}

func TestFetchConversation(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/c1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(ConversationResponse{
			ConversationID: "c1",
			OwnerID:        "peer",
			Category:       "GROUP",
			Participants:   []Participant{{UserID: "a"}, {UserID: "b", Role: "ADMIN"}},
		})
	})

	conv, err := c.FetchConversation(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.OwnerID != "peer" || len(conv.Participants) != 2 {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestFetchUserNotFound(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.FetchUser(context.Background(), "u1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchUsersBatch(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "u1,u2" {
			t.Errorf("ids = %s", got)
		}
		_, _ = w.Write([]byte(`[{"UserID":"u1"},{"UserID":"u2"}]`))
	})
	users, err := c.FetchUsers(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("users = %v", users)
	}
}

func TestFetchServerError(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.FetchSticker(context.Background(), "s1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want transient failure", err)
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryStopsOnNotFound(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, ErrNotFound must not be retried", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, func() error { return errors.New("transient") })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}
