package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration.
// Broker-backed tests live in integration_test.go.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "localectl-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "localectl",
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("home/localectl/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Status", topics.Status(), "home/localectl/status"},
		{"LocaleState", topics.LocaleState("kitchen"), "home/localectl/state/kitchen"},
		{"LocaleCommand", topics.LocaleCommand("kitchen"), "home/localectl/command/kitchen"},
		{"Response", topics.Response("req-1"), "home/localectl/response/req-1"},
		{"SyncEvent", topics.SyncEvent(), "home/localectl/event/sync"},
		{"AllLocaleCommands", topics.AllLocaleCommands(), "home/localectl/command/+"},
		{"AllLocaleStates", topics.AllLocaleStates(), "home/localectl/state/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}

	if got := NewTopics("").Prefix; got != DefaultTopicPrefix {
		t.Errorf("NewTopics(\"\").Prefix = %q, want %q", got, DefaultTopicPrefix)
	}
}

func TestLocaleFromCommand(t *testing.T) {
	topics := NewTopics("localectl")

	tests := []struct {
		topic  string
		want   string
		wantOk bool
	}{
		{"localectl/command/kitchen", "kitchen", true},
		{"localectl/command/a%2Fb", "a/b", true},
		{"localectl/command/a%2Bb", "a+b", true},
		{"localectl/command/100%25", "100%", true},
		{"localectl/command/bad%zz", "", false},
		{"localectl/command/", "", false},
		{"localectl/command/a/b", "", false},
		{"localectl/state/kitchen", "", false},
		{"other/command/kitchen", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := topics.LocaleFromCommand(tt.topic)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("LocaleFromCommand(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestTopicLevelsEscaped(t *testing.T) {
	topics := NewTopics("localectl")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state slash", topics.LocaleState("a/b"), "localectl/state/a%2Fb"},
		{"command plus", topics.LocaleCommand("a+b"), "localectl/command/a%2Bb"},
		{"response hash", topics.Response("req#1"), "localectl/response/req%231"},
		{"response wildcard", topics.Response("+"), "localectl/response/%2B"},
		{"percent", topics.LocaleState("50%"), "localectl/state/50%25"},
		{"plain", topics.LocaleState("living room"), "localectl/state/living room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
			if strings.Count(tt.got, "/") != 2 {
				t.Errorf("topic %q spans more than one level", tt.got)
			}
		})
	}

	for _, name := range []string{"a/b", "a+b", "x#y", "100%", "kitchen"} {
		got, ok := topics.LocaleFromCommand(topics.LocaleCommand(name))
		if !ok || got != name {
			t.Errorf("LocaleFromCommand(LocaleCommand(%q)) = %q, %v", name, got, ok)
		}
	}

	if _, err := UnescapeLevel("%g0"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("UnescapeLevel(%%g0) error = %v, want ErrInvalidTopic", err)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var p statusPayload
	if err := json.Unmarshal([]byte(buildStatusPayload("offline", "localectl-test", "graceful_shutdown")), &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "localectl-test" || p.Reason != "graceful_shutdown" || p.Timestamp == "" {
		t.Errorf("payload = %+v", p)
	}

	online := buildStatusPayload("online", "localectl-test", "")
	if strings.Contains(online, "reason") {
		t.Errorf("online payload %s should omit reason", online)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "pass"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "localectl-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set for TLS broker")
	}

	configureLWT(opts, NewTopics(cfg.TopicPrefix), cfg.Broker.ClientID)
	if !opts.WillEnabled || opts.WillTopic != "localectl/status" || !opts.WillRetained {
		t.Errorf("LWT = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "localectl/state/kitchen", nil, 3, ErrInvalidQoS},
		{"oversized payload", "localectl/state/kitchen", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "localectl/state/kitchen", []byte(`{}`), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if err := client.PublishJSON("localectl/state/x", make(chan int), true); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
	if err := client.PublishJSON("localectl/state/x", map[string]string{"status": "on"}, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishJSON() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe("t", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if client.SubscriptionCount() != 0 || client.HasSubscription("t") {
		t.Error("failed Subscribe must not be tracked")
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { panic("boom") }, "localectl/command/x", nil)
	client.dispatch(func(string, []byte) error { return errors.New("bad request") }, "localectl/command/x", nil)

	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors=%v warns=%v, want one of each", logger.errors, logger.warns)
	}
}
