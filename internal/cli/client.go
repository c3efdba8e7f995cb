package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/api"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/daemon"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

// Client is an HTTP client for the catview API. It also serves as the
// host of an attached terminal viewer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no timeout; event streams end with their context
	streamClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	// The token only exists when the server requires auth
	var token string
	if cwd, err := os.Getwd(); err == nil {
		token, _ = daemon.LoadToken(cwd)
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: constants.DefaultRequestTimeout,
		},
		streamClient: &http.Client{},
	}
}

// APIError is an error response from the server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the domain error behind the code, so errors.Is works
// across the transport
func (e *APIError) Unwrap() error {
	return domain.ErrorForCode(e.Code)
}

// GetStatus gets server status
func (c *Client) GetStatus(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.get(ctx, "/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDevices lists devices, rescanning first when refresh is set
func (c *Client) GetDevices(ctx context.Context, refresh bool) (*api.DevicesResponse, error) {
	path := "/api/v1/devices"
	if refresh {
		path += "?refresh=true"
	}
	var resp api.DevicesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStream describes the current stream
func (c *Client) GetStream(ctx context.Context) (*api.StreamResponse, error) {
	var resp api.StreamResponse
	if err := c.get(ctx, "/api/v1/stream", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPids returns the pid to package map
func (c *Client) GetPids(ctx context.Context) (*api.PidsResponse, error) {
	var resp api.PidsResponse
	if err := c.get(ctx, "/api/v1/pids", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessageParams selects stored outbound messages
type MessageParams struct {
	Kinds []domain.Kind
	Limit int
	After uint64
}

func (p MessageParams) query() url.Values {
	query := url.Values{}
	if len(p.Kinds) > 0 {
		kinds := make([]string, len(p.Kinds))
		for i, k := range p.Kinds {
			kinds[i] = string(k)
		}
		query.Set("kinds", strings.Join(kinds, ","))
	}
	if p.Limit > 0 {
		query.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.After > 0 {
		query.Set("after", strconv.FormatUint(p.After, 10))
	}
	return query
}

// GetMessages returns recent outbound messages
func (c *Client) GetMessages(ctx context.Context, params MessageParams) (*api.MessagesResponse, error) {
	path := "/api/v1/messages"
	if query := params.query(); len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp api.MessagesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send posts one inbound message
func (c *Client) Send(ctx context.Context, msg domain.Message) error {
	body, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	var resp api.SuccessResponse
	return c.post(ctx, "/api/v1/messages", body, &resp)
}

// Resume continues a paused stream
func (c *Client) Resume(ctx context.Context) error {
	var resp api.SuccessResponse
	return c.post(ctx, "/api/v1/stream/resume", nil, &resp)
}

// Shutdown stops the server
func (c *Client) Shutdown(ctx context.Context) error {
	var resp api.SuccessResponse
	return c.post(ctx, "/api/v1/shutdown", nil, &resp)
}

// StreamEvents follows the event stream and calls fn for each entry until
// ctx is done or the server closes the stream. replay asks for stored
// entries first.
func (c *Client) StreamEvents(ctx context.Context, params MessageParams, replay int, fn func(logs.Entry)) error {
	body, err := c.openEvents(ctx, params, replay)
	if err != nil {
		return err
	}
	defer body.Close()

	err = readEvents(body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Subscribe implements the viewer host. The returned channel closes when
// the stream ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan domain.Message, error) {
	body, err := c.openEvents(ctx, MessageParams{}, 0)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.Message, constants.DefaultSubscriptionBuffer)
	go func() {
		defer close(ch)
		defer body.Close()
		err := readEvents(body, func(entry logs.Entry) {
			select {
			case ch <- entry.Message:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Debug("event stream ended")
		}
	}()
	return ch, nil
}

func (c *Client) openEvents(ctx context.Context, params MessageParams, replay int) (io.ReadCloser, error) {
	query := params.query()
	if replay > 0 {
		query.Set("replay", strconv.Itoa(replay))
	}
	path := "/api/v1/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.addAuthHeader(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// readEvents parses server-sent events. Each event carries its sequence
// as id and one envelope as data.
func readEvents(r io.Reader, fn func(logs.Entry)) error {
	reader := bufio.NewReaderSize(r, constants.ScannerBufferSize)
	var seq uint64
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// Blank line dispatches the event
			if data.Len() > 0 {
				msg, err := domain.DecodeMessage([]byte(data.String()))
				if err != nil {
					log.WithError(err).WithField("seq", seq).Debug("skipping undecodable event")
				} else {
					fn(logs.Entry{Seq: seq, Message: msg})
				}
			}
			seq = 0
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "id: "):
			seq, _ = strconv.ParseUint(strings.TrimPrefix(line, "id: "), 10, 64)
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, v)
}

func (c *Client) post(ctx context.Context, path string, body []byte, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v interface{}) error {
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// decodeError turns an error response into an APIError
func decodeError(resp *http.Response) error {
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Code != "" {
		return &APIError{Status: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}

// addAuthHeader adds the Authorization header if a token is available
func (c *Client) addAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
