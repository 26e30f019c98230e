package tmdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"auroramag/detailservice/internal/cache"
)

func TestMovieFallsBackToSecondaryLanguage(t *testing.T) {
	var languages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/27205" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("api_key") != "key" {
			t.Errorf("expected api key")
		}
		if query.Get("append_to_response") != "credits,images,videos" {
			t.Errorf("unexpected append_to_response %q", query.Get("append_to_response"))
		}
		languages = append(languages, query.Get("language"))
		if query.Get("language") == "zh-CN" {
			http.Error(w, `{"status_code":34}`, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"id":27205,"title":"Inception","release_date":"2010-07-15","credits":{"cast":[{"id":6193,"name":"Leonardo DiCaprio","order":0}]}}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Client: server.Client()})
	movie, err := client.Movie(context.Background(), "27205")
	if err != nil {
		t.Fatalf("Movie: %v", err)
	}
	if movie.Title != "Inception" || movie.ReleaseYear() != "2010" {
		t.Fatalf("unexpected movie %+v", movie)
	}
	if movie.Credits == nil || len(movie.Credits.Cast) != 1 {
		t.Fatalf("expected credits, got %+v", movie.Credits)
	}
	if len(languages) != 2 || languages[0] != "zh-CN" || languages[1] != "en-US" {
		t.Fatalf("unexpected language order %v", languages)
	}
}

func TestMovieTreatsStatusBodyAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status_code":7,"status_message":"Invalid API key"}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Client: server.Client()})
	if _, err := client.Movie(context.Background(), "1"); err == nil {
		t.Fatalf("expected error for status payload")
	}
}

func TestMovieIsCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"id":1,"title":"Cached"}`)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "key",
		BaseURL: server.URL,
		Client:  server.Client(),
		Cache:   cache.New(cache.NameTMDB, time.Hour),
	})
	for i := 0; i < 3; i++ {
		if _, err := client.Movie(context.Background(), "1"); err != nil {
			t.Fatalf("Movie: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestMovieRequiresKeyAndNumericID(t *testing.T) {
	disabled := NewClient(Config{})
	if disabled.Enabled() {
		t.Fatalf("expected client without key to be disabled")
	}
	if _, err := disabled.Movie(context.Background(), "1"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	client := NewClient(Config{APIKey: "key"})
	if _, err := client.Movie(context.Background(), "tt1375666"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestDetailsPassesThroughRawRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tv/1399" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("language") != "en-US" {
			t.Errorf("expected requested language")
		}
		_, _ = io.WriteString(w, `{"id":1399,"name":"Game of Thrones"}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Client: server.Client()})
	raw, err := client.Details(context.Background(), "TV", "1399", "en-US")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if string(raw) != `{"id":1399,"name":"Game of Thrones"}` {
		t.Fatalf("unexpected body %s", raw)
	}

	if _, err := client.Details(context.Background(), "person", "1", ""); !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}
}
