// Package upload publishes finished videos to YouTube over the Data API v3
// using a stored OAuth refresh token and the resumable upload protocol.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultTokenURL  = "https://oauth2.googleapis.com/token"
	defaultAPIURL    = "https://www.googleapis.com"
	defaultUploadURL = "https://www.googleapis.com/upload"

	// MaxThumbnailBytes is the API limit for custom thumbnails.
	MaxThumbnailBytes = 2 * 1024 * 1024

	chunkSize = 8 * 1024 * 1024
)

type Options struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// Endpoint overrides for tests.
	TokenURL   string
	APIURL     string
	UploadURL  string
	HTTPClient *http.Client
}

type Client struct {
	clientID     string
	clientSecret string
	refreshToken string

	tokenURL  string
	apiURL    string
	uploadURL string
	httpc     *http.Client

	accessToken string
	tokenExpiry time.Time
}

func New(opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" || opts.RefreshToken == "" {
		return nil, fmt.Errorf("youtube credentials are incomplete: need client ID, client secret, and refresh token")
	}
	c := &Client{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		refreshToken: opts.RefreshToken,
		tokenURL:     opts.TokenURL,
		apiURL:       strings.TrimRight(opts.APIURL, "/"),
		uploadURL:    strings.TrimRight(opts.UploadURL, "/"),
		httpc:        opts.HTTPClient,
	}
	if c.tokenURL == "" {
		c.tokenURL = defaultTokenURL
	}
	if c.apiURL == "" {
		c.apiURL = defaultAPIURL
	}
	if c.uploadURL == "" {
		c.uploadURL = defaultUploadURL
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 30 * time.Minute}
	}
	return c, nil
}

// Result describes a published video.
type Result struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Privacy string `json:"privacy"`
}

// ProgressFunc reports uploaded and total bytes between chunks.
type ProgressFunc func(uploaded, total int64)

// Upload validates the metadata, starts a resumable session, and streams the
// video in chunks. A nil progress func is fine.
func (c *Client) Upload(ctx context.Context, videoPath string, meta Metadata, progress ProgressFunc) (*Result, error) {
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("video file: %w", err)
	}
	total := info.Size()

	sessionURL, err := c.startSession(ctx, meta, total)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var video videoResource
	var sent int64
	buf := make([]byte, chunkSize)
	for sent < total {
		n, err := io.ReadFull(f, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			return nil, fmt.Errorf("read video: %w", err)
		}
		if n == 0 {
			break
		}
		done, err := c.sendChunk(ctx, sessionURL, buf[:n], sent, total, &video)
		if err != nil {
			return nil, err
		}
		sent += int64(n)
		if progress != nil {
			progress(sent, total)
		}
		if done {
			break
		}
	}
	if video.ID == "" {
		return nil, fmt.Errorf("upload finished without a video resource")
	}
	return &Result{
		VideoID: video.ID,
		URL:     "https://www.youtube.com/watch?v=" + video.ID,
		Title:   video.Snippet.Title,
		Privacy: video.Status.PrivacyStatus,
	}, nil
}

// SetThumbnail uploads a custom thumbnail for an existing video. The file
// must be JPEG or PNG and at most 2 MiB.
func (c *Client) SetThumbnail(ctx context.Context, videoID, thumbnailPath string) error {
	info, err := os.Stat(thumbnailPath)
	if err != nil {
		return fmt.Errorf("thumbnail file: %w", err)
	}
	if info.Size() > MaxThumbnailBytes {
		return fmt.Errorf("thumbnail is %d bytes, limit is %d", info.Size(), MaxThumbnailBytes)
	}
	data, err := os.ReadFile(thumbnailPath)
	if err != nil {
		return err
	}
	mime := "image/jpeg"
	if strings.HasSuffix(strings.ToLower(thumbnailPath), ".png") {
		mime = "image/png"
	}

	u := fmt.Sprintf("%s/youtube/v3/thumbnails/set?videoId=%s&uploadType=media", c.uploadURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mime)
	resp, err := c.doAuthed(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp)
	}
	return nil
}

// Status fetches the processing and privacy status of an uploaded video.
func (c *Client) Status(ctx context.Context, videoID string) (map[string]string, error) {
	u := fmt.Sprintf("%s/youtube/v3/videos?part=status,processingDetails&id=%s", c.apiURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.doAuthed(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFrom(resp)
	}
	var out struct {
		Items []struct {
			Status struct {
				UploadStatus  string `json:"uploadStatus"`
				PrivacyStatus string `json:"privacyStatus"`
			} `json:"status"`
			ProcessingDetails struct {
				ProcessingStatus string `json:"processingStatus"`
			} `json:"processingDetails"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse status response: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	item := out.Items[0]
	return map[string]string{
		"upload_status":     item.Status.UploadStatus,
		"privacy_status":    item.Status.PrivacyStatus,
		"processing_status": item.ProcessingDetails.ProcessingStatus,
	}, nil
}

type videoResource struct {
	ID      string `json:"id"`
	Snippet struct {
		Title string `json:"title"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// startSession opens a resumable upload session and returns its URI.
func (c *Client) startSession(ctx context.Context, meta Metadata, total int64) (string, error) {
	body := map[string]any{
		"snippet": map[string]any{
			"title":       meta.Title,
			"description": meta.Description,
			"categoryId":  meta.CategoryID,
		},
		"status": map[string]any{
			"privacyStatus":           meta.Privacy,
			"selfDeclaredMadeForKids": false,
		},
	}
	if len(meta.Tags) > 0 {
		body["snippet"].(map[string]any)["tags"] = meta.Tags
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	u := c.uploadURL + "/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Type", "video/*")
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", total))

	resp, err := c.doAuthed(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiErrorFrom(resp)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("resumable session response had no Location header")
	}
	return loc, nil
}

// sendChunk uploads one range of bytes. It reports done=true when the server
// answers with the final video resource instead of 308 Resume Incomplete.
func (c *Client) sendChunk(ctx context.Context, sessionURL string, chunk []byte, offset, total int64, video *videoResource) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return false, err
	}
	end := offset + int64(len(chunk)) - 1
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end, total))

	resp, err := c.doAuthed(ctx, req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if err := json.NewDecoder(resp.Body).Decode(video); err != nil {
			return false, fmt.Errorf("parse upload response: %w", err)
		}
		return true, nil
	case resp.StatusCode == 308: // resume incomplete, keep sending
		return false, nil
	default:
		return false, apiErrorFrom(resp)
	}
}

// doAuthed attaches a fresh access token and performs the request.
func (c *Client) doAuthed(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube request failed: %w", err)
	}
	return resp, nil
}

// token exchanges the refresh token for an access token, caching it until
// shortly before expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {c.refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh: %w", apiErrorFrom(resp))
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token response had no access token")
	}
	c.accessToken = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// apiErrorFrom extracts the error message from a Google API error body.
func apiErrorFrom(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("youtube API error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
