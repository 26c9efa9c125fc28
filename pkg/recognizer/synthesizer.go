package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Synthesizer turns text into encoded audio bytes: send text, voice,
// model, format, and speed; get back one of mp3/wav/flac/aac/opus/ogg.
// Two transports satisfy it here, plain HTTP POST and a persistent
// websocket stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, format string, speed float64) ([]byte, error)
}

const (
	synthesizerConnectTimeout = 30 * time.Second
	synthesizerTotalTimeout   = 60 * time.Second
)

// HTTPSynthesizer POSTs a JSON request to an OpenAI-compatible
// /audio/speech endpoint and returns the raw encoded audio body.
type HTTPSynthesizer struct {
	APIKey string
	URL    string
	Model  string
	client *http.Client
}

// NewHTTPSynthesizer returns a synthesizer bound to url (e.g.
// "https://api.openai.com/v1/audio/speech").
func NewHTTPSynthesizer(apiKey, url, model string) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		APIKey: apiKey,
		URL:    url,
		Model:  model,
		client: &http.Client{
			Timeout: synthesizerTotalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: synthesizerConnectTimeout}).DialContext,
			},
		},
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, voice, format string, speed float64) ([]byte, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  s.Model,
		"input":  text,
		"voice":  voice,
		"format": format,
		"speed":  speed,
	})
	if err != nil {
		return nil, fmt.Errorf("recognizer: encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("recognizer: build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognizer: synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("recognizer: read synthesis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognizer: synthesizer error: %s (status %d)", string(audio), resp.StatusCode)
	}
	return audio, nil
}

// WebsocketSynthesizer streams synthesis over a persistent websocket
// connection: one JSON request per call, binary frames accumulated until
// a terminal "EOS" text frame or an "ERR:"-prefixed error frame.
type WebsocketSynthesizer struct {
	apiKey string
	host   string
	mu     sync.Mutex
	conn   *websocket.Conn
}

// NewWebsocketSynthesizer returns a synthesizer bound to host (e.g.
// "api.example.com").
func NewWebsocketSynthesizer(apiKey, host string) *WebsocketSynthesizer {
	return &WebsocketSynthesizer{apiKey: apiKey, host: host}
}

func (w *WebsocketSynthesizer) getConn(ctx context.Context) (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return w.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: w.host, Path: "/ws", RawQuery: "api_key=" + w.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("recognizer: connect to synthesizer: %w", err)
	}
	w.conn = conn
	return conn, nil
}

func (w *WebsocketSynthesizer) Synthesize(ctx context.Context, text, voice, format string, speed float64) ([]byte, error) {
	conn, err := w.getConn(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	req := map[string]interface{}{
		"text":   text,
		"voice":  voice,
		"format": format,
		"speed":  speed,
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		w.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return nil, fmt.Errorf("recognizer: send synthesis request: %w", err)
	}

	var audio []byte
	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			w.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return nil, fmt.Errorf("recognizer: read synthesizer response: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			audio = append(audio, payload...)
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return audio, nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return nil, fmt.Errorf("recognizer: synthesizer error: %s", msg)
			}
		}
	}
}

func (w *WebsocketSynthesizer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		err := w.conn.Close(websocket.StatusNormalClosure, "")
		w.conn = nil
		return err
	}
	return nil
}
