// Package discovery polls the source playlist for videos the pipeline has
// not seen yet.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/vidrelay/vidrelay/internal/model"
)

// Candidate is a playlist entry with no pipeline record.
type Candidate struct {
	VideoID         string
	Title           string
	PlaylistItemID  string
	DurationSeconds int64
	// Live marks a live or upcoming broadcast.
	Live bool
}

// Auth carries the Data API credentials. The API key covers read-only
// polling; the OAuth triple additionally allows playlist cleanup.
type Auth struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (a Auth) oauth() bool {
	return a.ClientID != "" && a.ClientSecret != "" && a.RefreshToken != ""
}

// recordChecker is the store surface discovery needs.
type recordChecker interface {
	GetVideo(ctx context.Context, id string) (*model.Video, error)
}

// Client reads the source playlist through the YouTube Data API.
type Client struct {
	svc        *youtube.Service
	known      recordChecker
	playlistID string
	writable   bool
}

// NewClient builds the API client. OAuth credentials win over the API key
// because playlist-item deletion needs them.
func NewClient(ctx context.Context, auth Auth, playlistID string, known recordChecker) (*Client, error) {
	if playlistID == "" {
		return nil, errors.New("playlist id is empty")
	}

	var opts []option.ClientOption
	writable := false
	switch {
	case auth.oauth():
		conf := &oauth2.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeScope},
		}
		token := &oauth2.Token{
			RefreshToken: auth.RefreshToken,
			// Already expired, so the first call refreshes.
			Expiry: time.Now().Add(-time.Hour),
		}
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, conf.TokenSource(ctx, token))))
		writable = true
	case auth.APIKey != "":
		opts = append(opts, option.WithAPIKey(auth.APIKey))
	default:
		return nil, errors.New("no YouTube credentials configured")
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc, known: known, playlistID: playlistID, writable: writable}, nil
}

func newClientForTests(svc *youtube.Service, playlistID string, known recordChecker) *Client {
	return &Client{svc: svc, known: known, playlistID: playlistID, writable: true}
}

// CanCleanup reports whether the client may delete playlist items.
func (c *Client) CanCleanup() bool { return c.writable }

// Poll lists the playlist, drops every id the pipeline already tracks and
// enriches the survivors with duration and broadcast status. Playlist order
// is preserved. A known video is never reintroduced, whatever state its
// record is in.
func (c *Client) Poll(ctx context.Context) ([]Candidate, error) {
	type entry struct {
		videoID        string
		title          string
		playlistItemID string
	}
	var fresh []entry

	pageToken := ""
	for {
		call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(c.playlistID).
			MaxResults(50).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list playlist items: %w", err)
		}

		for _, item := range resp.Items {
			videoID := ""
			if item.ContentDetails != nil {
				videoID = item.ContentDetails.VideoId
			}
			if videoID == "" && item.Snippet != nil && item.Snippet.ResourceId != nil {
				videoID = item.Snippet.ResourceId.VideoId
			}
			if videoID == "" {
				continue
			}
			v, err := c.known.GetVideo(ctx, videoID)
			if err != nil {
				return nil, fmt.Errorf("check known video %s: %w", videoID, err)
			}
			if v != nil {
				continue
			}
			title := ""
			if item.Snippet != nil {
				title = item.Snippet.Title
			}
			fresh = append(fresh, entry{videoID: videoID, title: title, playlistItemID: item.Id})
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(fresh) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fresh))
	for i, e := range fresh {
		ids[i] = e.videoID
	}
	details, err := c.videoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, e := range fresh {
		d, ok := details[e.videoID]
		if !ok {
			// Deleted and private entries have no details row.
			continue
		}
		title := d.title
		if title == "" {
			title = e.title
		}
		out = append(out, Candidate{
			VideoID:         e.videoID,
			Title:           title,
			PlaylistItemID:  e.playlistItemID,
			DurationSeconds: d.durationSeconds,
			Live:            d.live,
		})
	}
	return out, nil
}

type videoDetail struct {
	title           string
	durationSeconds int64
	live            bool
}

// videoDetails resolves durations and broadcast status in batches of 50, the
// API's id-list ceiling.
func (c *Client) videoDetails(ctx context.Context, ids []string) (map[string]videoDetail, error) {
	out := make(map[string]videoDetail, len(ids))
	for start := 0; start < len(ids); start += 50 {
		end := min(start+50, len(ids))
		resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails"}).
			Id(ids[start:end]...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("list video details: %w", err)
		}
		for _, v := range resp.Items {
			var d videoDetail
			if v.Snippet != nil {
				d.title = v.Snippet.Title
				d.live = v.Snippet.LiveBroadcastContent != "" && v.Snippet.LiveBroadcastContent != "none"
			}
			if v.ContentDetails != nil {
				if secs, err := parseISODuration(v.ContentDetails.Duration); err == nil {
					d.durationSeconds = secs
				}
			}
			out[v.Id] = d
		}
	}
	return out, nil
}

// RemoveFromPlaylist deletes the playlist entry after a successful publish.
// A 404 means the entry is already gone and counts as done.
func (c *Client) RemoveFromPlaylist(ctx context.Context, playlistItemID string) error {
	if playlistItemID == "" {
		return nil
	}
	if !c.writable {
		return errors.New("playlist cleanup needs OAuth credentials")
	}
	err := c.svc.PlaylistItems.Delete(playlistItemID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete playlist item %s: %w", playlistItemID, err)
}
