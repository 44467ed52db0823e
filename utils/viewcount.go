package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phillip/iinsaf-marketplace-go/config"
)

var (
	ErrUnsupportedPlatform = errors.New("view counts are not available for this platform")
	ErrVideoNotFound       = errors.New("video not found")
)

// YouTubeViews reads view counts from the YouTube Data API.
type YouTubeViews struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewYouTubeViews(cfg *config.Config) (*YouTubeViews, error) {
	if cfg.YouTubeAPIKey == "" {
		return nil, fmt.Errorf("missing YOUTUBE_API_KEY")
	}
	timeout := cfg.ExternalTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YouTubeViews{
		baseURL: strings.TrimRight(cfg.YouTubeBaseURL, "/"),
		apiKey:  cfg.YouTubeAPIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type videoListResponse struct {
	Items []struct {
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Views implements services.ViewCounter.
func (y *YouTubeViews) Views(ctx context.Context, platform, videoURL string) (int64, error) {
	if !strings.EqualFold(platform, "youtube") {
		return 0, ErrUnsupportedPlatform
	}
	videoID, err := YouTubeVideoID(videoURL)
	if err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("part", "statistics")
	q.Set("id", videoID)
	q.Set("key", y.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create youtube request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("youtube videos.list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("youtube API error: %s", resp.Status)
	}

	var out videoListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode youtube response: %w", err)
	}
	if len(out.Items) == 0 {
		return 0, ErrVideoNotFound
	}
	views, err := strconv.ParseInt(out.Items[0].Statistics.ViewCount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse view count %q: %w", out.Items[0].Statistics.ViewCount, err)
	}
	return views, nil
}

// YouTubeVideoID extracts the video id from watch, short, embed and
// youtu.be links.
func YouTubeVideoID(videoURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(videoURL))
	if err != nil {
		return "", fmt.Errorf("parse video url: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "music.youtube.com":
		switch {
		case segments[0] == "watch":
			id = u.Query().Get("v")
		case len(segments) > 1 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live"):
			id = segments[1]
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, host)
	}
	if id == "" {
		return "", fmt.Errorf("no video id in %q", videoURL)
	}
	return id, nil
}
