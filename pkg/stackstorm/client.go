package stackstorm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mitchellh/mapstructure"

	"poundcake/internal/metrics"
	"poundcake/pkg/tools"
)

type Config struct {
	Url       string
	ApiKey    string
	AuthToken string
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.Url = strings.TrimRight(cfg.Url, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{cfg: cfg, http: &http.Client{}}
}

// HTTPClient 底层 http.Client
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// CreateExecution POST /executions，返回引擎分配的执行 ID
func (c *Client) CreateExecution(ctx context.Context, action string, params map[string]interface{}) (Execution, error) {
	body, err := sonic.Marshal(executionRequest{Action: action, Parameters: params})
	if err != nil {
		return Execution{}, fmt.Errorf("序列化请求体失败: %w", err)
	}

	var exec Execution
	if err := c.do(ctx, "create", http.MethodPost, "/executions", body, &exec); err != nil {
		return Execution{}, err
	}
	if exec.Id == "" {
		return Execution{}, ErrMissingExecutionId
	}

	return exec, nil
}

// GetExecution GET /executions/{id}
func (c *Client) GetExecution(ctx context.Context, id string) (Execution, error) {
	var exec Execution
	err := c.do(ctx, "get", http.MethodGet, "/executions/"+url.PathEscape(id), nil, &exec)
	return exec, err
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out *Execution) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := c.roundTrip(ctx, method, path, body, out)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EngineDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())

	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out *Execution) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Url+path, reader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.ApiKey != "" {
		req.Header.Set("St2-Api-Key", c.cfg.ApiKey)
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("X-Auth-Token", c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: 读取响应失败: %s", ErrUnavailable, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: tools.Truncate(string(data), 512)}
	}

	return decodeExecution(data, out)
}

// decodeExecution 引擎返回的字段较多且类型不固定，先解析为 map 再按需取值
func decodeExecution(data []byte, out *Execution) error {
	var raw map[string]interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: 响应解析失败: %s", ErrUnavailable, err.Error())
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(raw)
}

// Engine 外部修复引擎
type Engine interface {
	CreateExecution(ctx context.Context, action string, params map[string]interface{}) (Execution, error)
	GetExecution(ctx context.Context, id string) (Execution, error)
}

var _ Engine = (*Client)(nil)
