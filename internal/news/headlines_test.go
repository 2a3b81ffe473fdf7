package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func rssServer(t *testing.T, feedTitle string, items []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title>`, feedTitle)
		for i, title := range items {
			fmt.Fprintf(w, `<item><title>%s</title><pubDate>Mon, 0%d Jan 2024 10:00:00 GMT</pubDate></item>`,
				title, len(items)-i)
		}
		fmt.Fprint(w, `</channel></rss>`)
	}))
}

func TestFetcher_Latest(t *testing.T) {
	srv := rssServer(t, "Daily Wire Feed", []string{"Chips rally", "Cloud outage", "Rates hold"})
	defer srv.Close()

	f := NewFetcher([]string{srv.URL})
	got := f.Latest(context.Background(), 2)

	if len(got) != 2 {
		t.Fatalf("expected 2 headlines, got %d", len(got))
	}
	// Newest first per pubDate.
	if got[0].Title != "Chips rally" || got[1].Title != "Cloud outage" {
		t.Errorf("unexpected order: %q, %q", got[0].Title, got[1].Title)
	}
	if got[0].FeedTitle != "Daily Wire Feed" {
		t.Errorf("feed title not carried: %q", got[0].FeedTitle)
	}
}

func TestFetcher_MergesAcrossFeeds(t *testing.T) {
	a := rssServer(t, "Feed A", []string{"A1"})
	defer a.Close()
	b := rssServer(t, "Feed B", []string{"B1"})
	defer b.Close()

	f := NewFetcher([]string{a.URL, b.URL})
	got := f.Latest(context.Background(), 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 headlines, got %d", len(got))
	}
}

func TestFetcher_SkipsFailingFeed(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := rssServer(t, "Feed", []string{"Still here"})
	defer good.Close()

	f := NewFetcher([]string{bad.URL, good.URL})
	got := f.Latest(context.Background(), 10)
	if len(got) != 1 || got[0].Title != "Still here" {
		t.Fatalf("expected the healthy feed's headline, got %+v", got)
	}
}

func TestFetcher_AllFeedsFailingYieldsEmpty(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer bad.Close()

	f := NewFetcher([]string{bad.URL})
	if got := f.Latest(context.Background(), 5); len(got) != 0 {
		t.Fatalf("expected no headlines, got %+v", got)
	}
}

func TestTitles(t *testing.T) {
	headlines := []Headline{
		{Title: "Chips rally", FeedTitle: "Feed A"},
		{Title: "No source"},
	}
	got := Titles(headlines)
	if len(got) != 2 {
		t.Fatalf("expected 2 titles, got %d", len(got))
	}
	if got[0] != "Chips rally（Feed A）" {
		t.Errorf("unexpected formatted title: %q", got[0])
	}
	if got[1] != "No source" {
		t.Errorf("unexpected bare title: %q", got[1])
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<b>Bold</b> move", "Bold move"},
		{"a &amp; b", "a & b"},
		{"  spaced\n\nout  ", "spaced out"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
