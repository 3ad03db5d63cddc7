package wsrelay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type fakeBroker struct {
	mu        sync.Mutex
	published [][]byte
}

func (f *fakeBroker) Publish(_ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBroker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestHandleText_OnlyRepublishesOnlineStatus(t *testing.T) {
	fb := &fakeBroker{}
	r := &Relay{log: zerolog.Nop(), broker: fb}

	r.handleText([]byte(`{"event":"deviceTemp"}`))
	r.handleText([]byte(`not json`))
	if fb.count() != 0 {
		t.Fatalf("non-onlineStatus frames should not be republished, got %d", fb.count())
	}

	r.handleText([]byte(`{"event":"onlineStatus","deviceId":1,"online":true}`))
	if fb.count() != 1 {
		t.Fatalf("onlineStatus frame should be republished once, got %d", fb.count())
	}
}

func TestRelay_RunOnceRepublishesOnlineStatusFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/login", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"message":"ok","value":{"token":"tok"}}`))
	})
	mux.HandleFunc("/v1/ws/notify", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"onlineStatus","deviceId":1,"online":true}`))
		time.Sleep(100 * time.Millisecond)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	apiHost := strings.TrimPrefix(srv.URL, "http://")

	fb := &fakeBroker{}
	r := &Relay{
		apiHost:  apiHost,
		username: "admin",
		password: "123456",
		broker:   fb,
		http:     resty.New().SetBaseURL(srv.URL),
		log:      zerolog.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := r.runOnce(ctx)
	if err == nil {
		t.Fatal("expected runOnce to return once the server closed the connection")
	}

	if fb.count() != 1 {
		t.Fatalf("expected exactly one republished frame, got %d", fb.count())
	}
}

func TestRelay_LoginFailureIsReported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/login", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":401,"message":"bad credentials"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := &Relay{
		http: resty.New().SetBaseURL(srv.URL),
		log:  zerolog.Nop(),
	}

	if _, err := r.login(context.Background()); err == nil {
		t.Fatal("expected login to fail on non-200 code")
	}
}
