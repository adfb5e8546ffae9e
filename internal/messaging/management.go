package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/contestpipe/contestpipe/internal/logger"
)

// ManagementClient is a read-only client for the broker's management
// API, used to observe channel depths. Depth data is observability-only
// so failures degrade to zero rather than propagating.
type ManagementClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewManagementClient(baseURL string, timeout time.Duration, logger *logger.Logger) *ManagementClient {
	return &ManagementClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "management-client"),
	}
}

// ChannelDepth returns the number of messages currently sitting in the
// named channel. A 404 means the channel was never declared and reads
// as zero. Any other non-200 status also reads as zero, with the
// failure logged; only transport-level errors are returned.
func (c *ManagementClient) ChannelDepth(ctx context.Context, channel string) (int64, error) {
	url := fmt.Sprintf("%s/api/channels/%s", c.baseURL, channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build management request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("management request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Unexpected management API status, treating depth as zero",
			"channel", channel,
			"status", resp.StatusCode,
		)
		return 0, nil
	}

	var body struct {
		Messages int64 `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode management response: %w", err)
	}

	return body.Messages, nil
}
