// Package soundpost is the HTTP client for the networked soundpost
// controller: speech requests, cancellation, and play-status polling.
package soundpost

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Content is a play request's body: either a pre-recorded media URL or
// text to be spoken.
type Content struct {
	URL  *string
	Text *string
}

func URLContent(url string) Content   { return Content{URL: &url} }
func TTSContent(text string) Content  { return Content{Text: &text} }

// SpeechLoop controls how the soundpost repeats a single speech request.
type SpeechLoop struct {
	Duration uint64
	Times    uint32
	Gap      uint64
}

type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

func New(apiHost, token string, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(apiHost).
		SetHeader("Authorization", "Bearer "+token).
		SetTimeout(10 * time.Second)
	return &Client{http: http, log: log}
}

type speechLoopWire struct {
	Duration uint64 `json:"duration"`
	Times    uint32 `json:"times"`
	Gap      uint64 `json:"gap"`
}

type speechRequest struct {
	DeviceIDs []uint32       `json:"device_ids"`
	URL       *string        `json:"url,omitempty"`
	Text      *string        `json:"text,omitempty"`
	Speech    *uint8         `json:"speech,omitempty"`
	Volume    uint8          `json:"volume"`
	Loop      speechLoopWire `json:"loop"`
}

type speechResultData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type speechRespData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id"`
	Body    string `json:"body"`
}

type speechResp struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    []speechRespData `json:"data"`
}

type statusResultData struct {
	Speech bool `json:"speech"`
}

type statusResult struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    *statusResultData `json:"data"`
}

type statusRespData struct {
	Code int    `json:"code"`
	ID   string `json:"id"`
	Body string `json:"body"`
}

type statusResp struct {
	Code int              `json:"code"`
	Data []statusRespData `json:"data"`
}

func encodeDeviceIDs(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// Cancel tells the controller to stop playback on the given devices. It
// never returns an error to the caller: a failed cancel is logged only,
// matching the fire-and-forget cancel semantics used before every new play.
func (c *Client) Cancel(ctx context.Context, deviceIDs []uint32) {
	if len(deviceIDs) == 0 {
		return
	}
	_, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("device_ids", encodeDeviceIDs(deviceIDs)).
		Delete("/v1/speech")
	if err != nil {
		c.log.Warn().Err(err).Msg("soundpost cancel request failed")
	}
}

// IsPlayFinished reports whether every requested device has stopped
// speaking. Any error, non-200, or still-speaking device fails closed
// (returns false) so a caller never mistakes a broken poll for "done".
func (c *Client) IsPlayFinished(ctx context.Context, deviceIDs []uint32) bool {
	if len(deviceIDs) == 0 {
		return true
	}
	var resp statusResp
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("device_ids", encodeDeviceIDs(deviceIDs)).
		SetResult(&resp).
		Get("/v1/play_status")
	if err != nil || httpResp.StatusCode() != 200 || resp.Code != 200 {
		return false
	}
	for _, d := range resp.Data {
		if d.Code != 200 {
			return false
		}
		var inner statusResult
		if err := json.Unmarshal([]byte(d.Body), &inner); err != nil || inner.Code != 200 {
			return false
		}
		if inner.Data == nil || inner.Data.Speech {
			return false
		}
	}
	return true
}

// Play cancels any in-flight playback on the devices, issues a speech
// request, and polls play-status until finished or the loop's duration
// elapses. The returned bool is true if all devices finished speaking
// before the poll budget was exhausted.
func (c *Client) Play(ctx context.Context, deviceIDs []uint32, content Content, speed *uint8, volume uint8, loop SpeechLoop) (bool, error) {
	c.Cancel(ctx, deviceIDs)

	req := speechRequest{
		DeviceIDs: deviceIDs,
		URL:       content.URL,
		Text:      content.Text,
		Speech:    speed,
		Volume:    volume,
		Loop:      speechLoopWire{Duration: loop.Duration, Times: loop.Times, Gap: loop.Gap},
	}

	var resp speechResp
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/v1/speech")
	if err != nil {
		return false, fmt.Errorf("soundpost: speech request: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return false, fmt.Errorf("soundpost: speech request returned %s", httpResp.Status())
	}
	if resp.Code != 200 {
		return false, fmt.Errorf("soundpost: speech response code %d: %s", resp.Code, resp.Message)
	}
	for _, d := range resp.Data {
		if d.Code != 200 {
			return false, fmt.Errorf("soundpost: device %s speech code %d: %s", d.ID, d.Code, d.Message)
		}
		var inner speechResultData
		if err := json.Unmarshal([]byte(d.Body), &inner); err == nil && inner.Code != 200 {
			return false, fmt.Errorf("soundpost: device %s speech result code %d: %s", d.ID, inner.Code, inner.Message)
		}
	}

	return c.waitForFinished(ctx, deviceIDs, time.Duration(loop.Duration)*time.Second), nil
}

// waitForFinished polls IsPlayFinished every second, bounded by budget. On
// timeout it cancels again and returns false.
func (c *Client) waitForFinished(ctx context.Context, deviceIDs []uint32, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if c.IsPlayFinished(ctx, deviceIDs) {
			return true
		}
		if time.Now().After(deadline) {
			c.log.Warn().Msg("soundpost play-status poll timed out")
			c.Cancel(ctx, deviceIDs)
			return false
		}
		select {
		case <-ctx.Done():
			c.Cancel(ctx, deviceIDs)
			return false
		case <-ticker.C:
		}
	}
}
