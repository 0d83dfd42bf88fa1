package repo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

type LogisticsConfig struct {
	BaseURL    string        `envconfig:"LOGISTICS_BASE_URL"`
	APIKey     string        `envconfig:"LOGISTICS_API_KEY"`
	Timeout    time.Duration `envconfig:"LOGISTICS_TIMEOUT" default:"5s"`
	MaxRetries uint64        `envconfig:"LOGISTICS_MAX_RETRIES" default:"2"`
}

// Enabled reports whether a logistics provider is configured.
func (c LogisticsConfig) Enabled() bool { return c.BaseURL != "" }

// LogisticsClient queries the carrier tracking API.
type LogisticsClient struct {
	client  *resty.Client
	backoff func() retry.Backoff
}

var _ model.LogisticsService = (*LogisticsClient)(nil)

func NewLogisticsClient(cfg LogisticsConfig) *LogisticsClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &LogisticsClient{
		client: client,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(cfg.MaxRetries, retry.NewExponential(200*time.Millisecond))
		},
	}
}

// Status returns (nil, nil) when the carrier does not know the number.
func (c *LogisticsClient) Status(ctx context.Context, trackingNumber string) (*model.LogisticsStatus, error) {
	var out *model.LogisticsStatus
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var body model.LogisticsStatus
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&body).
			Get("/tracking/" + url.PathEscape(trackingNumber))
		if err != nil {
			return retry.RetryableError(err)
		}

		code := resp.StatusCode()
		switch {
		case code == http.StatusNotFound:
			out = nil
			return nil
		case isRetryableStatus(code):
			return retry.RetryableError(fmt.Errorf("logistics api status %d", code))
		case code >= 400:
			return fmt.Errorf("logistics api status %d: %s", code, resp.String())
		}

		if body.TrackingNumber == "" {
			body.TrackingNumber = trackingNumber
		}
		out = &body
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("tracking_number", trackingNumber).Msg("logistics lookup failed")
		return nil, errx.WrapUpstream(err)
	}
	return out, nil
}

func isRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
