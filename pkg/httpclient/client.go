// Package httpclient REST 客户端封装（resty）
// 市场数据服务通过它访问行情 API；重试与限流处理集中在这一层
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client resty 客户端封装
type Client struct {
	client *resty.Client
}

// NewClient 创建客户端
// resty 会自动读取 HTTP_PROXY / HTTPS_PROXY 环境变量
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流：优先使用 Retry-After 头
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{client: client}
}

// SetAPIKey 设置认证头（可选）
func (c *Client) SetAPIKey(key string) {
	if strings.TrimSpace(key) != "" {
		c.client.SetHeader("X-API-KEY", key)
	}
}

// Get 发起 GET 请求并把响应 JSON 解析到 out
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return errors.Wrapf(err, "GET %s 请求失败", endpoint)
	}
	if resp.IsError() {
		return errors.Errorf("GET %s 返回错误状态 %d: %s", endpoint, resp.StatusCode(), truncate(resp.String(), 200))
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err, "GET %s 响应解析失败", endpoint)
		}
	}
	return nil
}

// truncate 截断过长的响应体（只用于错误信息）
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:n], len(s))
}
