package mqtt

import (
	"context"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/jwzl/wssocket/fifo"
	"github.com/jwzl/wssocket/model"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/common"
	"github.com/jwzl/edgepnp/config"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/types"
)

// publisher is the part of the paho client used to send.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

type twinResponse struct {
	status  int
	version int64
	body    []byte
}

// Client is the MQTT transport of one device. Inbound deliveries are queued
// as model messages and read with ReadMessage; twin requests are matched to
// their responses by request id.
type Client struct {
	conf    *config.MqttConfig
	client  MQTT.Client
	pub     publisher
	timeout time.Duration

	// serializes publishes.
	mutex sync.Mutex
	// message fifo.
	messageFifo *fifo.MessageFifo
	// request id -> chan *twinResponse
	pending sync.Map
}

// NewClient builds the transport. Connect with Start.
func NewClient(conf *config.MqttConfig) *Client {
	if conf == nil {
		return nil
	}

	c := &Client{
		conf:        conf,
		timeout:     time.Duration(conf.OperationTimeout) * time.Second,
		messageFifo: fifo.NewMessageFifo(0),
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}

	opts := MQTT.NewClientOptions().AddBroker(conf.URL).SetClientID(conf.ClientID).SetCleanSession(true)
	if conf.User != "" {
		opts.SetUsername(conf.User)
		if conf.Passwd != "" {
			opts.SetPassword(conf.Passwd)
		}
	}
	if conf.KeepAliveInterval > 0 {
		opts.SetKeepAlive(time.Duration(conf.KeepAliveInterval) * time.Second)
	}
	if conf.PingTimeout > 0 {
		opts.SetPingTimeout(time.Duration(conf.PingTimeout) * time.Second)
	}
	tlsConfig, err := CreateTLSConfig(conf.CertFilePath, conf.KeyFilePath)
	if err != nil {
		klog.Infof("TLSConfig Disabled (%v)", err)
	} else {
		opts.SetTLSConfig(tlsConfig)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)
	c.pub = c.client
	return c
}

// CheckClientToken waits for token and returns its error.
func CheckClientToken(token MQTT.Token) (bool, error) {
	if token.Wait() && token.Error() != nil {
		return false, token.Error()
	}
	return true, nil
}

// Start connects, retrying until the broker accepts or ctx is done.
func (c *Client) Start(ctx context.Context) error {
	for {
		klog.Infof("start connect to mqtt server with client id: %s", c.conf.ClientID)
		token := c.client.Connect()
		rs, err := CheckClientToken(token)
		if rs {
			return nil
		}
		klog.Errorf("connect error: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// Close disconnects from the broker.
func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Client) onConnect(client MQTT.Client) {
	for _, t := range SubscribeTopics() {
		token := client.Subscribe(t, byte(c.conf.QOS), c.messageArrived)
		if rs, err := CheckClientToken(token); !rs {
			klog.Errorf("subscribe topic: %s, %v", t, err)
			c.messageFifo.Write(common.BuildConnectionMessage(dtcontext.ConnectionDisconnectedRetrying, err.Error()))
			return
		}
		klog.Infof("subscribe topic to %s", t)
	}
	c.messageFifo.Write(common.BuildConnectionMessage(dtcontext.ConnectionConnected, "connection ok"))
}

func (c *Client) onConnectionLost(client MQTT.Client, err error) {
	klog.Errorf("connection lost with error: %v", err)
	c.messageFifo.Write(common.BuildConnectionMessage(dtcontext.ConnectionDisconnectedRetrying, err.Error()))
}

func (c *Client) messageArrived(client MQTT.Client, message MQTT.Message) {
	topic := message.Topic()
	klog.V(4).Infof("message arrived on %s", topic)

	if version, ok := ParseDesiredTopic(topic); ok {
		klog.V(2).Infof("desired patch version %d", version)
		c.messageFifo.Write(common.BuildDesiredMessage(message.Payload()))
		return
	}

	if name, rid, err := ParseMethodTopic(topic); err == nil {
		c.messageFifo.Write(common.BuildMethodMessage(rid, name, message.Payload()))
		return
	}

	if status, rid, version, err := ParseTwinResponseTopic(topic); err == nil {
		v, exist := c.pending.Load(rid)
		if !exist {
			klog.Warningf("twin response for unknown request %s, ignored", rid)
			return
		}
		ch, isChan := v.(chan *twinResponse)
		if !isChan {
			return
		}
		select {
		case ch <- &twinResponse{status: status, version: version, body: message.Payload()}:
		default:
		}
		return
	}

	klog.Infof("topic %s, msg ignored", topic)
}

// ReadMessage reads the next inbound delivery.
func (c *Client) ReadMessage() (*model.Message, error) {
	return c.messageFifo.Read()
}

// WriteMessage publishes a command response built by the device client.
func (c *Client) WriteMessage(msg *model.Message) error {
	if msg.GetOperation() != common.PNP_OPS_RESPONSE {
		return errors.Errorf("cannot publish %s message", msg.GetOperation())
	}
	status, err := common.ParseMethodResponseResource(msg.GetResource())
	if err != nil {
		return err
	}
	content, err := common.GetContent(msg)
	if err != nil {
		return err
	}
	return c.publish(MethodResponseTopic(status, msg.GetTag()), content)
}

// Serve feeds every inbound delivery to handle and publishes its replies
// until ctx is done or the fifo fails.
func (c *Client) Serve(ctx context.Context, handle func(ctx context.Context, msg *model.Message) (*model.Message, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := c.ReadMessage()
		if err != nil {
			klog.Errorf("failed to receive message from mqtt channel")
			return err
		}
		if msg == nil {
			continue
		}

		reply, err := handle(ctx, msg)
		if err != nil {
			klog.Warningf("handle message %s: %v, ignored", msg.GetResource(), err)
			continue
		}
		if reply != nil {
			if err := c.WriteMessage(reply); err != nil {
				klog.Errorf("publish reply: %v", err)
			}
		}
	}
}

// SendReportedPropertyPatch publishes a reported patch and waits for the
// service to accept it.
func (c *Client) SendReportedPropertyPatch(ctx context.Context, patch []byte) error {
	resp, err := c.request(ctx, ReportedPatchTopic, patch)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		return errors.Errorf("reported patch rejected with status %d", resp.status)
	}
	klog.V(4).Infof("reported patch accepted, version %d", resp.version)
	return nil
}

// SendTelemetry publishes one telemetry envelope.
func (c *Client) SendTelemetry(ctx context.Context, msg *types.TelemetryMessage) error {
	return c.publish(TelemetryTopic(c.conf.ClientID, msg), msg.Payload)
}

// GetTwin requests the full twin document.
func (c *Client) GetTwin(ctx context.Context) ([]byte, error) {
	resp, err := c.request(ctx, TwinGetTopic, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != types.StatusCompleted {
		return nil, errors.Errorf("twin request failed with status %d", resp.status)
	}
	return resp.body, nil
}

func (c *Client) request(ctx context.Context, topic func(rid string) string, payload []byte) (*twinResponse, error) {
	rid := uuid.NewV4().String()
	ch := make(chan *twinResponse, 1)
	c.pending.Store(rid, ch)
	defer c.pending.Delete(rid)

	if payload == nil {
		payload = []byte{}
	}
	if err := c.publish(topic(rid), payload); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.timeout):
		return nil, errors.Errorf("request %s timed out after %v", rid, c.timeout)
	}
}

func (c *Client) publish(topic string, payload []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	token := c.pub.Publish(topic, byte(c.conf.QOS), c.conf.Retain, payload)
	if rs, err := CheckClientToken(token); !rs {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}
