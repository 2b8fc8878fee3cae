package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/dashboard"
)

// Config MQTT 报警推送配置
type Config struct {
	Broker         string
	Topic          string
	ClientID       string
	Username       string
	Password       string
	QOS            int
	ConnectTimeout time.Duration
}

// Publisher 把新报警发布到 MQTT
type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	log     *zap.Logger

	mu        sync.RWMutex
	connected bool
}

// Nop broker 未配置时使用
type Nop struct{}

// PublishAlert 丢弃
func (Nop) PublishAlert(context.Context, dashboard.AlertEvent) error { return nil }

// Close 无操作
func (Nop) Close() {}

// AlertPublisher 带关闭的发布器
type AlertPublisher interface {
	dashboard.AlertPublisher
	Close()
}

// New broker 为空返回 Nop；连接在后台重试，不阻塞启动
func New(cfg Config, log *zap.Logger) AlertPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	broker := normalizeBroker(cfg.Broker)
	if broker == "" {
		return Nop{}
	}
	if cfg.Topic == "" {
		cfg.Topic = "clinisense/alerts"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("clinisense-%d", time.Now().UnixNano())
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	p := &Publisher{
		topic:   strings.TrimRight(cfg.Topic, "/"),
		qos:     clampQOS(cfg.QOS),
		timeout: cfg.ConnectTimeout,
		log:     log.Named("mqtt"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		p.setConnected(true)
		p.log.Info("connected", zap.String("broker", broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.log.Warn("connection lost", zap.Error(err))
	}

	p.client = mqtt.NewClient(opts)
	p.client.Connect()
	return p
}

// NewWithClient 使用已有客户端
func NewWithClient(client mqtt.Client, topic string, qos int, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		client:    client,
		topic:     strings.TrimRight(topic, "/"),
		qos:       clampQOS(qos),
		timeout:   10 * time.Second,
		log:       log.Named("mqtt"),
		connected: client.IsConnected(),
	}
}

// Message MQTT 载荷
type Message struct {
	Scope      string             `json:"scope"`
	DetectedAt time.Time          `json:"detected_at"`
	Alert      dashboard.AlertRow `json:"alert"`
}

// Topic 按诊所细分：<topic>/<clinique_id>，无诊所时为 <topic>
func (p *Publisher) Topic(ev dashboard.AlertEvent) string {
	if ev.Alert.ClinicID != "" {
		return p.topic + "/" + ev.Alert.ClinicID.String()
	}
	return p.topic
}

// PublishAlert 发布一条报警，等待 broker 确认
func (p *Publisher) PublishAlert(ctx context.Context, ev dashboard.AlertEvent) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(Message{Scope: ev.Scope, DetectedAt: ev.DetectedAt.UTC(), Alert: ev.Alert})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	token := p.client.Publish(p.Topic(ev), p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	p.log.Debug("alert published", zap.String("topic", p.Topic(ev)), zap.String("alert_id", ev.Alert.ID.String()))
	return nil
}

// Connected broker 连接状态
func (p *Publisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Close 断开连接
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
}

func normalizeBroker(broker string) string {
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return ""
	}
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func clampQOS(qos int) byte {
	if qos < 0 {
		return 0
	}
	if qos > 2 {
		return 2
	}
	return byte(qos)
}
