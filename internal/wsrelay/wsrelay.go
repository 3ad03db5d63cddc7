// Package wsrelay maintains a WebSocket connection to the soundpost
// controller's notification feed and republishes online/offline device
// status onto the broker.
package wsrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/metrics"
)

// StatusTopic is the broker topic onlineStatus events are republished on.
const StatusTopic = "ap/soundpost/status"

const (
	reconnectBackoff = 5 * time.Second
	pongWriteTimeout = 1 * time.Second
	readIdleTimeout  = 60 * time.Second
)

// Publisher is the narrow broker capability the relay needs: republishing a
// raw payload on a topic. *broker.Client satisfies this.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Options struct {
	APIHost  string
	Username string
	Password string
	Broker   Publisher
	Log      zerolog.Logger
}

type Relay struct {
	apiHost  string
	username string
	password string
	broker   Publisher
	http     *resty.Client
	log      zerolog.Logger
}

func New(opts Options) *Relay {
	return &Relay{
		apiHost:  opts.APIHost,
		username: opts.Username,
		password: opts.Password,
		broker:   opts.Broker,
		http:     resty.New().SetBaseURL("http://" + opts.APIHost).SetTimeout(10 * time.Second),
		log:      opts.Log,
	}
}

// Run maintains the connection until ctx is canceled, reconnecting on any
// error with a fixed backoff.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.runOnce(ctx); err != nil && ctx.Err() == nil {
			metrics.WebsocketReconnectsTotal.Inc()
			r.log.Warn().Err(err).Msg("websocket relay disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

type loginResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Value   *struct {
		Token string `json:"token"`
	} `json:"value"`
}

func (r *Relay) login(ctx context.Context) (string, error) {
	var resp loginResponse
	httpResp, err := r.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": r.username, "password": r.password}).
		SetResult(&resp).
		Post("/v1/login")
	if err != nil {
		return "", fmt.Errorf("wsrelay: login request: %w", err)
	}
	if httpResp.StatusCode() != 200 || resp.Code != 200 {
		return "", fmt.Errorf("wsrelay: login failed: %s", resp.Message)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("wsrelay: login response missing token")
	}
	return resp.Value.Token, nil
}

type notifyFrame struct {
	Event string `json:"event"`
}

func (r *Relay) runOnce(ctx context.Context) error {
	token, err := r.login(ctx)
	if err != nil {
		return err
	}

	url := "ws://" + r.apiHost + "/v1/ws/notify"
	header := map[string][]string{"Authorization": {"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("wsrelay: dial: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	r.log.Info().Msg("websocket relay connected")

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close() //nolint:errcheck
		case <-closed:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readIdleTimeout)) //nolint:errcheck
	conn.SetPingHandler(func(string) error {
		r.log.Debug().Msg("received ping")
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout)) //nolint:errcheck
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(pongWriteTimeout))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout)) //nolint:errcheck
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("wsrelay: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout)) //nolint:errcheck

		switch msgType {
		case websocket.TextMessage:
			r.handleText(data)
		case websocket.CloseMessage:
			return fmt.Errorf("wsrelay: received close frame")
		}
	}
}

// handleText republishes any onlineStatus event frame verbatim. Frames of
// any other event, or that fail to parse, are ignored.
func (r *Relay) handleText(data []byte) {
	var frame notifyFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Event != "onlineStatus" {
		return
	}
	if err := r.broker.Publish(StatusTopic, data); err != nil {
		r.log.Warn().Err(err).Msg("failed to republish onlineStatus frame")
	}
}
