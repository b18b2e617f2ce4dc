// this file talks to the YouTube Data API for search and playlist import
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

type YouTubeAPI struct {
	apiKey string
	client *http.Client
}

func NewYouTubeAPI(apiKey string) *YouTubeAPI {
	return &YouTubeAPI{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (y *YouTubeAPI) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, youtubeAPIBase+"/"+endpoint, nil)
	if err != nil {
		return err
	}
	params.Set("key", y.apiKey)
	req.URL.RawQuery = params.Encode()

	resp, err := y.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("youtube %s returned %d", endpoint, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

// Search finds videos matching a query and resolves their durations.
func (y *YouTubeAPI) Search(ctx context.Context, query string) ([]PlaylistItem, error) {
	response := struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet snippet `json:"snippet"`
		} `json:"items"`
	}{}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", "25")
	params.Set("q", query)
	if err := y.get(ctx, "search", params, &response); err != nil {
		return nil, err
	}

	items := make([]PlaylistItem, 0, len(response.Items))
	ids := make([]string, 0, len(response.Items))
	for _, it := range response.Items {
		if it.ID.VideoID == "" {
			continue
		}
		items = append(items, it.Snippet.toItem(it.ID.VideoID))
		ids = append(ids, it.ID.VideoID)
	}
	if err := y.fillDurations(ctx, ids, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchPlaylist pulls every page of an external playlist.
func (y *YouTubeAPI) FetchPlaylist(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	if playlistID == "" {
		return nil, errors.New("empty playlist id")
	}

	var items []PlaylistItem
	var ids []string
	pageToken := ""
	for {
		response := struct {
			NextPageToken string `json:"nextPageToken"`
			Items         []struct {
				Snippet struct {
					snippet
					ResourceID struct {
						VideoID string `json:"videoId"`
					} `json:"resourceId"`
				} `json:"snippet"`
			} `json:"items"`
		}{}

		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("maxResults", "50")
		params.Set("playlistId", playlistID)
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		if err := y.get(ctx, "playlistItems", params, &response); err != nil {
			return nil, err
		}
		for _, it := range response.Items {
			id := it.Snippet.ResourceID.VideoID
			if id == "" {
				continue
			}
			items = append(items, it.Snippet.snippet.toItem(id))
			ids = append(ids, id)
		}
		pageToken = response.NextPageToken
		if pageToken == "" {
			break
		}
	}
	if err := y.fillDurations(ctx, ids, items); err != nil {
		return nil, err
	}
	return items, nil
}

type snippet struct {
	Title      string `json:"title"`
	Thumbnails struct {
		Medium struct {
			URL string `json:"url"`
		} `json:"medium"`
	} `json:"thumbnails"`
}

func (sn snippet) toItem(videoID string) PlaylistItem {
	return PlaylistItem{
		Title:     sn.Title,
		Thumbnail: sn.Thumbnails.Medium.URL,
		Link:      watchLink(videoID),
		Source:    SourceManual,
	}
}

// fillDurations resolves track lengths via the videos endpoint, fifty ids
// per call. Items keep a zero duration when the API omits them.
func (y *YouTubeAPI) fillDurations(ctx context.Context, ids []string, items []PlaylistItem) error {
	durations := make(map[string]int64, len(ids))
	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}
		response := struct {
			Items []struct {
				ID             string `json:"id"`
				ContentDetails struct {
					Duration string `json:"duration"`
				} `json:"contentDetails"`
			} `json:"items"`
		}{}

		params := url.Values{}
		params.Set("part", "contentDetails")
		params.Set("id", strings.Join(ids[start:end], ","))
		if err := y.get(ctx, "videos", params, &response); err != nil {
			return err
		}
		for _, it := range response.Items {
			durations[it.ID] = parseISODuration(it.ContentDetails.Duration)
		}
	}
	for i := range items {
		items[i].Duration = durations[canonicalVideoID(items[i].Link)]
	}
	return nil
}

func watchLink(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// canonicalVideoID extracts the video id behind the usual link shapes;
// unparseable links canonicalize to themselves.
func canonicalVideoID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		return strings.TrimPrefix(u.Path, "/")
	case strings.Contains(u.Path, "/embed/"):
		parts := strings.Split(u.Path, "/")
		return parts[len(parts)-1]
	}
	return link
}

// parseISODuration converts ISO-8601 durations like PT1H2M3S into
// milliseconds. Anything unparseable counts as zero (live stream).
func parseISODuration(iso string) int64 {
	rest, ok := strings.CutPrefix(iso, "PT")
	if !ok {
		return 0
	}
	var hours, minutes, seconds, n int64
	for _, r := range rest {
		if r >= '0' && r <= '9' {
			n = n*10 + int64(r-'0')
			continue
		}
		switch r {
		case 'H':
			hours = n
		case 'M':
			minutes = n
		case 'S':
			seconds = n
		default:
			return 0
		}
		n = 0
	}
	return ((hours*60+minutes)*60 + seconds) * 1000
}
