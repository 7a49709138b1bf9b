package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const pageLimit = 200

// Client talks to the Slack Web API. Requests use a 15s timeout and no
// automatic retries; callers rerun the whole operation instead.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   strings.TrimSpace(token),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type userProfile struct {
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	Image192 string `json:"image_192"`
}

type userEntry struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Deleted bool        `json:"deleted"`
	IsBot   bool        `json:"is_bot"`
	Profile userProfile `json:"profile"`
}

type usersListResponse struct {
	OK               bool        `json:"ok"`
	Error            string      `json:"error"`
	Members          []userEntry `json:"members"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	cursor := ""
	for {
		page, next, err := c.listPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		members = append(members, page...)
		if next == "" {
			return members, nil
		}
		cursor = next
	}
}

func (c *Client) listPage(ctx context.Context, cursor string) ([]Member, string, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", pageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp usersListResponse
	if err := c.get(ctx, "/users.list?"+params.Encode(), &resp); err != nil {
		return nil, "", err
	}
	if !resp.OK {
		return nil, "", fmt.Errorf("slack users.list failed: %s", resp.Error)
	}

	members := make([]Member, 0, len(resp.Members))
	for _, u := range resp.Members {
		members = append(members, Member{
			ID:        u.ID,
			Name:      u.Profile.RealName,
			Username:  u.Name,
			Email:     u.Profile.Email,
			AvatarURL: u.Profile.Image192,
			IsBot:     u.IsBot,
			Deleted:   u.Deleted,
		})
	}
	return members, strings.TrimSpace(resp.ResponseMetadata.NextCursor), nil
}

type conversationsOpenRequest struct {
	Users string `json:"users"`
}

type conversationsOpenResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *Client) SendDirectMessage(ctx context.Context, userID string, text string) error {
	var open conversationsOpenResponse
	if err := c.post(ctx, "/conversations.open", conversationsOpenRequest{Users: userID}, &open); err != nil {
		return err
	}
	if !open.OK || open.Channel.ID == "" {
		return fmt.Errorf("slack conversations.open failed: %s", open.Error)
	}

	var posted postMessageResponse
	if err := c.post(ctx, "/chat.postMessage", postMessageRequest{Channel: open.Channel.ID, Text: text}, &posted); err != nil {
		return err
	}
	if !posted.OK {
		return fmt.Errorf("slack chat.postMessage failed: %s", posted.Error)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("slack_request_failed_status_%d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
