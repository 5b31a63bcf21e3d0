package remoteconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Fetcher 从远端获取配置和公钥。
// 每次调用恰好返回一次：要么结果，要么错误。
type Fetcher interface {
	FetchConfig(ctx context.Context) (*ConfigModel, error)
	FetchKey(ctx context.Context, keyID string) (*KeyModel, error)
}

// maxBodySize 限制响应体大小
const maxBodySize = 4 << 20

// HTTPFetcher 是基于 net/http 的 Fetcher 实现。
type HTTPFetcher struct {
	settings   *Settings
	httpClient *http.Client
}

// NewHTTPFetcher 创建 HTTPFetcher，client 为 nil 时使用 Settings.HTTPTimeout 构造默认客户端。
func NewHTTPFetcher(settings *Settings, client *http.Client) *HTTPFetcher {
	if client == nil {
		timeout := settings.HTTPTimeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFetcher{
		settings:   settings,
		httpClient: client,
	}
}

// configResponse 是 /app/{appId}/config 的响应体。
type configResponse struct {
	Body json.RawMessage `json:"body"`
}

// FetchConfig 请求 /app/{appId}/config，签名和 keyId 取自响应头。
func (f *HTTPFetcher) FetchConfig(ctx context.Context) (*ConfigModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.settings.ConfigURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create config request failed: %w", err)
	}
	f.setConfigHeaders(req)

	body, header, err := f.send(req)
	if err != nil {
		return nil, fmt.Errorf("config fetch %s failed: %w", req.URL, err)
	}

	var resp configResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode config response failed: %w", err)
	}
	if len(resp.Body) == 0 {
		return nil, errors.New("decode config response failed: missing body")
	}

	// keyId 是集成时约定的配置项；未配置时才使用响应头
	keyID := f.settings.KeyID
	if keyID == "" {
		keyID = header.Get(HeaderKeyID)
	}

	model, err := NewConfigModel(resp.Body, keyID, header.Get(HeaderSignature))
	if err != nil {
		return nil, fmt.Errorf("decode config response failed: %w", err)
	}
	return model, nil
}

// FetchKey 请求 /keys/{keyId}。
func (f *HTTPFetcher) FetchKey(ctx context.Context, keyID string) (*KeyModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.settings.KeyURL(keyID), nil)
	if err != nil {
		return nil, fmt.Errorf("create key request failed: %w", err)
	}
	req.Header.Set(HeaderAPIKey, f.settings.APIKey())

	body, _, err := f.send(req)
	if err != nil {
		return nil, fmt.Errorf("key fetch %s failed: %w", req.URL, err)
	}

	var key KeyModel
	if err := json.Unmarshal(body, &key); err != nil {
		return nil, fmt.Errorf("decode key response failed: %w", err)
	}
	return &key, nil
}

func (f *HTTPFetcher) setConfigHeaders(req *http.Request) {
	s := f.settings
	req.Header.Set(HeaderAPIKey, s.APIKey())
	headers := map[string]string{
		HeaderAppID:      s.AppID,
		HeaderAppName:    s.AppName,
		HeaderAppVersion: s.AppVersion,
		HeaderDevice:     s.DeviceModel,
		HeaderOSVersion:  s.OSVersion,
		HeaderSDKName:    s.SDKName,
		HeaderSDKVersion: s.SDKVersion,
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
}

// send 执行请求，非 2xx 响应映射为 *APIError。
func (f *HTTPFetcher) send(req *http.Request) ([]byte, http.Header, error) {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			apiErr = APIError{Code: resp.StatusCode, Message: "Unspecified server error occurred"}
		}
		return nil, nil, &apiErr
	}

	return body, resp.Header, nil
}
