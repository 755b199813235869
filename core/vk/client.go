package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"vkcoursebot/core/logger"

	"log/slog"
)

const defaultBaseURL = "https://api.vk.com/method"

// Options configures the API client.
type Options struct {
	Token      string
	GroupID    int64
	APIVersion string
	// BaseURL overrides the VK method endpoint, used in tests.
	BaseURL string
	// SendRate caps messages.send calls per second; 0 -> 20.
	SendRate int
	// HTTPClient overrides the tuned default client, used in tests.
	HTTPClient *http.Client
}

// Client calls VK community API methods. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	groupID int64
	version string
	limiter *rate.Limiter
}

// NewClient builds an API client with sane defaults for zeroed options.
func NewClient(opts Options) *Client {
	if opts.APIVersion == "" {
		opts.APIVersion = "5.131"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.SendRate <= 0 {
		opts.SendRate = 20
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = BuildHTTPClient()
	}
	return &Client{
		http:    httpClient,
		baseURL: opts.BaseURL,
		token:   opts.Token,
		groupID: opts.GroupID,
		version: opts.APIVersion,
		limiter: rate.NewLimiter(rate.Limit(opts.SendRate), opts.SendRate),
	}
}

// AcquirePollServer fetches a fresh long-poll descriptor for the community.
func (c *Client) AcquirePollServer(ctx context.Context) (PollServer, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(c.groupID, 10))

	var server PollServer
	if err := c.call(ctx, "groups.getLongPollServer", params, &server); err != nil {
		return PollServer{}, fmt.Errorf("acquire poll server: %w", err)
	}
	logger.VK.Debug("poll server acquired",
		slog.String("event", "poll_server.acquired"),
		slog.String("cursor", server.TS),
	)
	return server, nil
}

// SendMessage delivers a text message with an optional keyboard to a user.
// Delivery is fire-and-forget from the caller's perspective: transient network
// faults are retried by the transport, anything else is surfaced as an error.
func (c *Client) SendMessage(ctx context.Context, userID int64, text string, kb *Keyboard) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("random_id", strconv.Itoa(rand.Intn(1_000_000)))
	params.Set("message", text)
	if kb != nil {
		encoded, err := json.Marshal(kb)
		if err != nil {
			return fmt.Errorf("send message: encode keyboard: %w", err)
		}
		params.Set("keyboard", string(encoded))
	}

	start := time.Now()
	if err := c.call(ctx, "messages.send", params, nil); err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	logger.VK.Debug("message sent",
		slog.String("event", "message.sent"),
		slog.Int64("user_id", userID),
		slog.Bool("kb", kb != nil),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// GetProfile fetches first and last name for a user. A user that cannot be
// resolved yields ErrProfileNotFound rather than a zero profile.
func (c *Client) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	params := url.Values{}
	params.Set("user_ids", strconv.FormatInt(userID, 10))

	var profiles []Profile
	if err := c.call(ctx, "users.get", params, &profiles); err != nil {
		return Profile{}, fmt.Errorf("get profile %d: %w", userID, err)
	}
	if len(profiles) == 0 {
		return Profile{}, ErrProfileNotFound
	}
	return profiles[0], nil
}

// ErrProfileNotFound indicates users.get returned an empty result set.
var ErrProfileNotFound = errors.New("vk: profile not found")

// call performs one VK method call and decodes the response envelope into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("access_token", c.token)
	params.Set("v", c.version)

	endpoint := c.baseURL + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return redactError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", method, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if env.Error != nil {
		return env.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%s: decode payload: %w", method, err)
	}
	return nil
}
