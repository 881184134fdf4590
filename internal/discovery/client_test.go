package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/vidrelay/vidrelay/internal/model"
)

// knownSet fakes the store: ids in the set already have records.
type knownSet map[string]bool

func (k knownSet) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	if k[id] {
		v := model.NewVideo(id, "known", "", 0)
		return &v, nil
	}
	return nil, nil
}

func testService(t *testing.T, handler http.HandlerFunc) *youtube.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := youtube.NewService(context.Background(),
		option.WithEndpoint(srv.URL),
		option.WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("youtube service: %v", err)
	}
	return svc
}

func playlistItemJSON(playlistItemID, videoID, title string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"snippet": {"title": %q, "resourceId": {"videoId": %q}},
		"contentDetails": {"videoId": %q}
	}`, playlistItemID, title, videoID, videoID)
}

func videoJSON(videoID, title, duration, live string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"snippet": {"title": %q, "liveBroadcastContent": %q},
		"contentDetails": {"duration": %q}
	}`, videoID, title, live, duration)
}

func TestPoll_FiltersKnownAndEnriches(t *testing.T) {
	var videosQuery string
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "playlistItems"):
			if got := r.URL.Query().Get("playlistId"); got != "pl-main" {
				t.Errorf("playlistId = %q", got)
			}
			fmt.Fprintf(w, `{"items": [%s, %s]}`,
				playlistItemJSON("pli-1", "vid-1", "Fresh Video"),
				playlistItemJSON("pli-2", "vid-2", "Known Video"))
		case strings.Contains(r.URL.Path, "videos"):
			videosQuery = r.URL.Query().Get("id")
			fmt.Fprintf(w, `{"items": [%s]}`,
				videoJSON("vid-1", "Fresh Video (full)", "PT4M13S", "none"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	c := newClientForTests(svc, "pl-main", knownSet{"vid-2": true})
	got, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	want := Candidate{
		VideoID:         "vid-1",
		Title:           "Fresh Video (full)",
		PlaylistItemID:  "pli-1",
		DurationSeconds: 253,
	}
	if got[0] != want {
		t.Fatalf("candidate = %+v, want %+v", got[0], want)
	}
	if strings.Contains(videosQuery, "vid-2") {
		t.Errorf("known video enriched: id query %q", videosQuery)
	}
}

func TestPoll_Pagination(t *testing.T) {
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "playlistItems"):
			if r.URL.Query().Get("pageToken") == "" {
				fmt.Fprintf(w, `{"items": [%s], "nextPageToken": "p2"}`,
					playlistItemJSON("pli-1", "vid-1", "One"))
				return
			}
			if got := r.URL.Query().Get("pageToken"); got != "p2" {
				t.Errorf("pageToken = %q", got)
			}
			fmt.Fprintf(w, `{"items": [%s]}`, playlistItemJSON("pli-2", "vid-2", "Two"))
		case strings.Contains(r.URL.Path, "videos"):
			fmt.Fprintf(w, `{"items": [%s, %s]}`,
				videoJSON("vid-1", "One", "PT1M", "none"),
				videoJSON("vid-2", "Two", "PT2M", "none"))
		}
	})

	c := newClientForTests(svc, "pl-main", knownSet{})
	got, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 2 || got[0].VideoID != "vid-1" || got[1].VideoID != "vid-2" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestPoll_LiveBroadcast(t *testing.T) {
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "playlistItems"):
			fmt.Fprintf(w, `{"items": [%s]}`, playlistItemJSON("pli-1", "vid-1", "Premiere"))
		case strings.Contains(r.URL.Path, "videos"):
			fmt.Fprintf(w, `{"items": [%s]}`, videoJSON("vid-1", "Premiere", "P0D", "upcoming"))
		}
	})

	c := newClientForTests(svc, "pl-main", knownSet{})
	got, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 1 || !got[0].Live {
		t.Fatalf("candidates = %+v, want one live entry", got)
	}
}

func TestPoll_DropsUnavailableEntries(t *testing.T) {
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "playlistItems"):
			fmt.Fprintf(w, `{"items": [%s, %s]}`,
				playlistItemJSON("pli-1", "vid-1", "Alive"),
				playlistItemJSON("pli-2", "vid-gone", "Deleted video"))
		case strings.Contains(r.URL.Path, "videos"):
			fmt.Fprintf(w, `{"items": [%s]}`, videoJSON("vid-1", "Alive", "PT1M", "none"))
		}
	})

	c := newClientForTests(svc, "pl-main", knownSet{})
	got, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 1 || got[0].VideoID != "vid-1" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestPoll_NoNewVideos(t *testing.T) {
	videoCalls := 0
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "playlistItems"):
			fmt.Fprintf(w, `{"items": [%s]}`, playlistItemJSON("pli-1", "vid-1", "Known"))
		case strings.Contains(r.URL.Path, "videos"):
			videoCalls++
			fmt.Fprint(w, `{"items": []}`)
		}
	})

	c := newClientForTests(svc, "pl-main", knownSet{"vid-1": true})
	got, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %+v, want none", got)
	}
	if videoCalls != 0 {
		t.Fatal("details fetched with nothing new")
	}
}

func TestRemoveFromPlaylist(t *testing.T) {
	var deleted string
	status := http.StatusNoContent
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		deleted = r.URL.Query().Get("id")
		w.WriteHeader(status)
	})
	c := newClientForTests(svc, "pl-main", knownSet{})

	if err := c.RemoveFromPlaylist(context.Background(), "pli-9"); err != nil {
		t.Fatalf("RemoveFromPlaylist: %v", err)
	}
	if deleted != "pli-9" {
		t.Fatalf("deleted id = %q", deleted)
	}

	// Already removed entries do not fail the cleanup.
	status = http.StatusNotFound
	if err := c.RemoveFromPlaylist(context.Background(), "pli-9"); err != nil {
		t.Fatalf("RemoveFromPlaylist after 404: %v", err)
	}

	status = http.StatusForbidden
	if err := c.RemoveFromPlaylist(context.Background(), "pli-9"); err == nil {
		t.Fatal("expected error on 403")
	}

	if err := c.RemoveFromPlaylist(context.Background(), ""); err != nil {
		t.Fatalf("empty playlist item id: %v", err)
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "PT4M13S", want: 253},
		{in: "PT1H2M3S", want: 3723},
		{in: "PT45S", want: 45},
		{in: "PT0S", want: 0},
		{in: "P0D", want: 0},
		{in: "P1DT2H", want: 93600},
		{in: "P2W", want: 1209600},
		{in: "", wantErr: true},
		{in: "4M", wantErr: true},
		{in: "PT4X", wantErr: true},
		{in: "PTM", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseISODuration(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseISODuration(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseISODuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseISODuration(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
