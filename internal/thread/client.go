package thread

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client implements Fetcher over the comment HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ListTopLevel(ctx context.Context, postID, cursor string, limit int) (Page, error) {
	return c.listComments(ctx, postID, "", cursor, limit)
}

func (c *Client) ListChildren(ctx context.Context, postID, parentID, cursor string, limit int) (Page, error) {
	return c.listComments(ctx, postID, parentID, cursor, limit)
}

func (c *Client) listComments(ctx context.Context, postID, parentID, cursor string, limit int) (Page, error) {
	query := url.Values{}
	if parentID != "" {
		query.Set("parentId", parentID)
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/api/posts/%s/comments", c.baseURL, url.PathEscape(postID))
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var page Page
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) CreateComment(ctx context.Context, postID, parentID, content string) (Comment, error) {
	endpoint := fmt.Sprintf("%s/api/posts/%s/comments", c.baseURL, url.PathEscape(postID))
	body := map[string]string{"parentId": parentID, "content": content}

	var created Comment
	if err := c.do(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return Comment{}, err
	}
	return created, nil
}

func (c *Client) SetVote(ctx context.Context, commentID string, sign VoteSign) (VoteResult, error) {
	endpoint := fmt.Sprintf("%s/api/comments/%s/vote", c.baseURL, url.PathEscape(commentID))
	body := map[string]string{"sign": string(sign)}

	var result VoteResult
	if err := c.do(ctx, http.MethodPut, endpoint, body, &result); err != nil {
		return VoteResult{}, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)

	switch envelope.Code {
	case "NOT_FOUND":
		return ErrNotFound
	case "INVALID_CURSOR":
		return ErrInvalidCursor
	case "UNAUTHENTICATED":
		return ErrUnauthenticated
	case "RATE_LIMITED":
		return ErrRateLimited
	case "VALIDATION_ERROR":
		return &ValidationError{Message: envelope.Message}
	}
	if envelope.Message != "" {
		return fmt.Errorf("api error %d: %s", resp.StatusCode, envelope.Message)
	}
	return fmt.Errorf("api error %d", resp.StatusCode)
}
