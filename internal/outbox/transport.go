package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/attendance"
)

// Transport はサーバとの通信
type Transport interface {
	// Ping は疎通確認。失敗は ErrOffline を包んで返す
	Ping(ctx context.Context) error
	Deliver(ctx context.Context, e Event) (Receipt, error)
}

// DeliveryError はサーバが拒否した / 応答しなかった配送
type DeliveryError struct {
	Status    int // 0 ならネットワークエラー
	Code      string
	Message   string
	Permanent bool
}

func (e *DeliveryError) Error() string {
	if e.Status == 0 {
		return "delivery failed: " + e.Message
	}
	return fmt.Sprintf("delivery failed: %d %s: %s", e.Status, e.Code, e.Message)
}

type HTTPTransport struct {
	base   string
	token  string
	client *http.Client
}

func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// GET /healthz
func (t *HTTPTransport) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: healthz returned %d", ErrOffline, resp.StatusCode)
	}
	return nil
}

// POST /api/v1/attendance/sync or /api/v1/attendance/edit
func (t *HTTPTransport) Deliver(ctx context.Context, e Event) (Receipt, error) {
	path := "/api/v1/attendance/sync"
	if e.Kind == attendance.KindEdit {
		path = "/api/v1/attendance/edit"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+path, bytes.NewReader(e.Payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set(attendance.HeaderIdempotencyKey, e.Key)

	resp, err := t.client.Do(req)
	if err != nil {
		return Receipt{}, &DeliveryError{Message: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, &DeliveryError{Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		de := &DeliveryError{Status: resp.StatusCode, Permanent: resp.StatusCode >= 400 && resp.StatusCode < 500}
		var eb struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &eb) == nil && eb.Error.Code != "" {
			de.Code, de.Message = eb.Error.Code, eb.Error.Message
		} else {
			de.Message = http.StatusText(resp.StatusCode)
		}
		return Receipt{}, de
	}

	var ok struct {
		EventID          string    `json:"eventId"`
		SyncedAt         time.Time `json:"syncedAt"`
		EditedAt         time.Time `json:"editedAt"`
		AlreadyProcessed bool      `json:"alreadyProcessed"`
	}
	if err := json.Unmarshal(body, &ok); err != nil {
		return Receipt{}, &DeliveryError{Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	at := ok.SyncedAt
	if at.IsZero() {
		at = ok.EditedAt
	}
	return Receipt{EventID: ok.EventID, At: at, AlreadyProcessed: ok.AlreadyProcessed}, nil
}
