package remoteconfig

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Settings 是宿主应用提供的身份与连接参数。
type Settings struct {
	Endpoint        string        `mapstructure:"endpoint"` // 服务端 base URL
	AppID           string        `mapstructure:"app_id"`
	SubscriptionKey string        `mapstructure:"subscription_key"`
	KeyID           string        `mapstructure:"key_id"` // 配置签名对应的 key id
	AppName         string        `mapstructure:"app_name"`
	AppVersion      string        `mapstructure:"app_version"`
	DeviceModel     string        `mapstructure:"device_model"`
	OSVersion       string        `mapstructure:"os_version"`
	SDKName         string        `mapstructure:"sdk_name"`
	SDKVersion      string        `mapstructure:"sdk_version"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CachePath       string        `mapstructure:"cache_path"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

var settingKeys = []string{
	"endpoint", "app_id", "subscription_key", "key_id",
	"app_name", "app_version", "device_model", "os_version",
	"sdk_name", "sdk_version", "poll_interval", "cache_path", "http_timeout",
}

// LoadSettings 从配置文件和环境变量读取 Settings。
// 配置文件名为 remoteconfig.{yaml,json,toml}，在 paths 中查找，找不到时忽略。
// 环境变量使用前缀 "RRC"，例如 app_id 对应 RRC_APP_ID。
func LoadSettings(paths ...string) (*Settings, error) {
	v := viper.New()
	v.SetConfigName("remoteconfig")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("RRC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 没有默认值的 key 需要显式绑定，Unmarshal 才能读到环境变量
	for _, k := range settingKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s failed: %w", k, err)
		}
	}

	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("sdk_name", DefaultSDKName)
	v.SetDefault("cache_path", DefaultCachePath())

	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read settings file failed: %w", err)
			}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal settings failed: %w", err)
	}
	return s, nil
}

// Validate 检查必填项，一次返回全部问题。
func (s *Settings) Validate() error {
	var errs *multierror.Error
	if s.Endpoint == "" {
		errs = multierror.Append(errs, errors.New("endpoint is required"))
	} else if u, err := url.Parse(s.Endpoint); err != nil || !u.IsAbs() {
		errs = multierror.Append(errs, fmt.Errorf("endpoint %q is not an absolute URL", s.Endpoint))
	}
	if s.AppID == "" {
		errs = multierror.Append(errs, errors.New("app_id is required"))
	}
	if s.SubscriptionKey == "" {
		errs = multierror.Append(errs, errors.New("subscription_key is required"))
	}
	if s.PollInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("poll_interval must be positive, got %s", s.PollInterval))
	}
	return errs.ErrorOrNil()
}

// ConfigURL 返回 {endpoint}/app/{appId}/config。
func (s *Settings) ConfigURL() string {
	return s.baseURL() + "/app/" + url.PathEscape(s.AppID) + "/config"
}

// KeyURL 返回 {endpoint}/keys/{keyId}。
func (s *Settings) KeyURL(keyID string) string {
	return s.baseURL() + "/keys/" + url.PathEscape(keyID)
}

// APIKey 返回 apiKey 头的值。
func (s *Settings) APIKey() string {
	return APIKeyPrefix + s.SubscriptionKey
}

func (s *Settings) baseURL() string {
	return strings.TrimSuffix(s.Endpoint, "/")
}
