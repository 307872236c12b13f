package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/postqueue/configs"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/transfer"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	containerFinished   = "FINISHED"
	containerInProgress = "IN_PROGRESS"
	containerError      = "ERROR"
	containerExpired    = "EXPIRED"
	containerPublished  = "PUBLISHED"

	graphCodeInvalidToken = 190
)

// Graph error codes that signal throttling or a temporary platform fault.
var transientGraphCodes = map[int]struct{}{
	1: {}, 2: {}, 4: {}, 17: {}, 32: {}, 341: {}, 613: {},
}

// InstagramService talks to the Instagram Graph API. It implements
// PostingClient and InstagramAccountAPI.
type InstagramService struct {
	httpClient       *http.Client
	graphURL         string
	apiVersion       string
	limiter          *rate.Limiter
	host             MediaHost
	containerTimeout time.Duration
	pollInterval     time.Duration
	log              zerolog.Logger
}

// NewInstagramService builds the client. host may be nil, in which case only
// media with a public http(s) source can be published.
func NewInstagramService(cfg config.Instagram, host MediaHost, httpClient *http.Client, log zerolog.Logger) *InstagramService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.ContainerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &InstagramService{
		httpClient:       httpClient,
		graphURL:         strings.TrimRight(cfg.GraphURL, "/"),
		apiVersion:       cfg.APIVersion,
		limiter:          rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 5),
		host:             host,
		containerTimeout: timeout,
		pollInterval:     3 * time.Second,
		log:              log.With().Str("comp", "instagram").Logger(),
	}
}

func (ig *InstagramService) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", ig.graphURL, ig.apiVersion, strings.TrimLeft(path, "/"))
}

// client returns an HTTP client that sends accessToken as a bearer token.
func (ig *InstagramService) client(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, ig.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
}

// Publish hosts the media if needed, creates a container, waits for it to
// finish processing and publishes it.
func (ig *InstagramService) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.Media == nil || req.Destination == nil {
		return nil, models.NewValidationError("publish", "media and destination are required")
	}
	client := ig.client(ctx, req.Destination.AccessToken)

	mediaURL, isVideo, cleanup, err := ig.hostMedia(ctx, req.Media)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := checkpoint(ctx, "after upload"); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"caption": req.Caption}
	if isVideo {
		payload["media_type"] = "REELS"
		payload["video_url"] = mediaURL
	} else {
		payload["image_url"] = mediaURL
	}

	var container transfer.InstagramContainer
	if err := ig.do(ctx, client, http.MethodPost, ig.endpoint(req.Destination.IGUserID+"/media"), payload, &container); err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	if container.ID == "" {
		return nil, models.NewTransientError(0, "no container id returned from Instagram", nil)
	}

	if err := checkpoint(ctx, "after container creation"); err != nil {
		return nil, err
	}

	if err := ig.waitForContainer(ctx, client, container.ID); err != nil {
		return nil, err
	}

	if err := checkpoint(ctx, "before publish"); err != nil {
		return nil, err
	}

	// The publish request is irreversible once sent, so an abort from here on
	// must not turn a live post into a failed attempt.
	detached := context.WithoutCancel(ctx)
	detachedClient := ig.client(detached, req.Destination.AccessToken)

	var published transfer.InstagramContainer
	publishPayload := map[string]interface{}{"creation_id": container.ID}
	if err := ig.do(detached, detachedClient, http.MethodPost, ig.endpoint(req.Destination.IGUserID+"/media_publish"), publishPayload, &published); err != nil {
		return nil, fmt.Errorf("publish container: %w", err)
	}

	// Published: nothing below may fail the attempt.
	result := &PublishResult{ExternalID: published.ID}
	if result.ExternalID == "" {
		result.ExternalID = container.ID
	}

	var media transfer.InstagramMedia
	permalinkURL := ig.endpoint(result.ExternalID) + "?fields=id,permalink"
	if err := ig.do(detached, detachedClient, http.MethodGet, permalinkURL, nil, &media); err != nil {
		ig.log.Warn().Err(err).Str("media_id", result.ExternalID).Msg("permalink lookup failed")
	} else {
		result.Permalink = media.Permalink
	}

	ig.log.Info().Str("queue_id", req.QueueID).Str("media_id", result.ExternalID).Msg("published")
	return result, nil
}

// hostMedia returns a URL the platform can fetch the media from. Local files
// are uploaded to the media host and removed again by cleanup.
func (ig *InstagramService) hostMedia(ctx context.Context, m *models.MediaItem) (string, bool, func(), error) {
	noop := func() {}

	if isRemote(m.SourceURI) {
		return m.SourceURI, strings.HasPrefix(m.MimeType, "video/"), noop, nil
	}
	if ig.host == nil {
		return "", false, noop, models.NewPermanentError(0, "media is not public and no media host is configured", nil)
	}

	body, err := readSource(ctx, ig.httpClient, m.SourceURI)
	if err != nil {
		return "", false, noop, err
	}
	kind, err := SniffContent(body)
	if err != nil {
		return "", false, noop, err
	}
	key, err := NewObjectKey(kind.Extension)
	if err != nil {
		return "", false, noop, fmt.Errorf("generate object key: %w", err)
	}

	publicURL, err := ig.host.Upload(ctx, key, body, kind.MIME.Value)
	if err != nil {
		return "", false, noop, err
	}

	cleanup := func() {
		if err := ig.host.Delete(context.WithoutCancel(ctx), key); err != nil {
			ig.log.Warn().Err(err).Str("key", key).Msg("hosted media cleanup failed")
		}
	}
	return publicURL, kind.MIME.Type == "video", cleanup, nil
}

func (ig *InstagramService) waitForContainer(ctx context.Context, client *http.Client, containerID string) error {
	deadline := time.Now().Add(ig.containerTimeout)
	statusURL := ig.endpoint(containerID) + "?fields=id,status_code,status"

	for {
		var status transfer.InstagramContainerStatus
		if err := ig.do(ctx, client, http.MethodGet, statusURL, nil, &status); err != nil {
			return fmt.Errorf("container status: %w", err)
		}

		switch status.StatusCode {
		case containerFinished, containerPublished:
			return nil
		case containerError, containerExpired:
			return models.NewPermanentError(0, fmt.Sprintf("container %s: %s %s", containerID, status.StatusCode, status.Status), nil)
		}

		if time.Now().After(deadline) {
			return models.NewTransientError(0, fmt.Sprintf("container %s still %s after %s", containerID, status.StatusCode, ig.containerTimeout), nil)
		}

		select {
		case <-ctx.Done():
			return cancelled("waiting for container", ctx.Err())
		case <-time.After(ig.pollInterval):
		}
	}
}

// UserInfo returns the professional account the token belongs to.
func (ig *InstagramService) UserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	var userInfo transfer.InstagramUserInfo
	reqURL := ig.endpoint("me") + "?fields=id,user_id,username,name"
	if err := ig.do(ctx, ig.client(ctx, accessToken), http.MethodGet, reqURL, nil, &userInfo); err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	return &userInfo, nil
}

// RefreshToken exchanges a long-lived token for a fresh one.
func (ig *InstagramService) RefreshToken(ctx context.Context, accessToken string) (*transfer.InstagramTokenRefresh, error) {
	params := url.Values{}
	params.Set("grant_type", "ig_refresh_token")
	params.Set("access_token", accessToken)
	reqURL := fmt.Sprintf("%s/refresh_access_token?%s", ig.graphURL, params.Encode())

	var result transfer.InstagramTokenRefresh
	if err := ig.do(ctx, ig.httpClient, http.MethodGet, reqURL, nil, &result); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if result.AccessToken == "" {
		return nil, models.NewPermanentError(0, "no access token returned from Instagram", nil)
	}
	return &result, nil
}

func (ig *InstagramService) do(ctx context.Context, client *http.Client, method, reqURL string, payload, out interface{}) error {
	if err := ig.limiter.Wait(ctx); err != nil {
		return cancelled("rate limiter", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("error marshalling payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled("request", ctx.Err())
		}
		return models.NewTransientError(0, "HTTP request error", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled("read response", ctx.Err())
		}
		return models.NewTransientError(resp.StatusCode, "error reading response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyGraphError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("error parsing response: %w", err)
		}
	}
	return nil
}

// classifyGraphError turns a non-200 Graph response into an ExternalError.
// The Graph error code wins over the HTTP status because throttling is
// reported as 400.
func classifyGraphError(status int, body []byte) *models.ExternalError {
	var igErr transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &igErr); err != nil || igErr.Error.Message == "" {
		return externalStatusError(status, fmt.Sprintf("unexpected status code from Instagram: %d", status))
	}

	e := igErr.Error
	msg := e.Message
	if e.ErrorUserMsg != "" {
		msg = fmt.Sprintf("%s (%s)", e.Message, e.ErrorUserMsg)
	}

	var extErr *models.ExternalError
	_, throttled := transientGraphCodes[e.Code]
	switch {
	case e.Code == graphCodeInvalidToken:
		extErr = models.NewPermanentError(status, msg, nil)
	case e.IsTransient || throttled:
		extErr = models.NewTransientError(status, msg, nil)
	case ClassifyHTTPStatus(status) == ErrorClassPermanent:
		extErr = models.NewPermanentError(status, msg, nil)
	default:
		extErr = models.NewTransientError(status, msg, nil)
	}
	extErr.Code = e.Code
	return extErr
}

// checkpoint aborts the attempt when ctx was cancelled.
func checkpoint(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return cancelled(step, err)
	}
	return nil
}

func cancelled(step string, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", step, models.ErrCancelled, cause)
	}
	return models.NewTransientError(0, step, cause)
}
