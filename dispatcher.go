package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

type EventListener struct {
	ch chan []byte
}

// EventDispatcher fans serialized change events out to websocket listeners.
type EventDispatcher struct {
	listeners  map[*EventListener]bool
	broadcast  chan []byte
	register   chan *EventListener
	deregister chan *EventListener
}

func newEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *EventListener),
		deregister: make(chan *EventListener),
		listeners:  make(map[*EventListener]bool),
	}
}

type broadcastEvent struct {
	Source string      `json:"source"`
	Data   interface{} `json:"data"`
}

func serializeEvent(source string, data interface{}) []byte {
	msg, _ := json.Marshal(&broadcastEvent{Source: source, Data: data})
	return msg
}

// broadcastEvent never blocks the caller; events are dropped when the
// dispatcher falls behind.
func (d *EventDispatcher) broadcastEvent(source string, data interface{}) {
	select {
	case d.broadcast <- serializeEvent(source, data):
	default:
		log.Warnf("dispatcher backlog full, dropping event for %s", source)
	}
}

func (d *EventDispatcher) run(ctx context.Context) {
	for {
		select {
		case listener := <-d.register:
			d.listeners[listener] = true
		case listener := <-d.deregister:
			if _, ok := d.listeners[listener]; ok {
				delete(d.listeners, listener)
				close(listener.ch)
			}
		case message := <-d.broadcast:
			for listener := range d.listeners {
				select {
				case listener.ch <- message:
				default:
					close(listener.ch)
					delete(d.listeners, listener)
				}
			}
		case <-ctx.Done():
			for listener := range d.listeners {
				close(listener.ch)
				delete(d.listeners, listener)
			}
			return
		}
	}
}

func attributeValueString(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return onOffToString(v)
	case Mode:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func readAttribute(v Ventilator, attr Attribute) interface{} {
	switch attr {
	case AttrFanActive:
		return v.ReadFanActive()
	case AttrFanMode:
		return v.ReadFanMode()
	case AttrFanTimeout:
		return v.ReadFanTimeoutMinutes()
	case AttrFanDutyCycle:
		return v.ReadFanDutyCycle()
	case AttrHrvActive:
		return v.ReadHrvActive()
	case AttrHrvMode:
		return v.ReadHrvMode()
	default:
		return nil
	}
}

// putAttribute parses a textual value and writes it to the ventilator.
func putAttribute(v Ventilator, attr Attribute, value string) error {
	switch attr {
	case AttrFanActive, AttrHrvActive:
		on, ok := stringToOnOff(value)
		if !ok {
			return fmt.Errorf("invalid on/off value '%s'", value)
		}
		if attr == AttrFanActive {
			v.WriteFanActive(on)
		} else {
			v.WriteHrvActive(on)
		}
	case AttrFanMode, AttrHrvMode:
		mode, ok := stringToMode(value)
		if !ok {
			return fmt.Errorf("invalid mode '%s'", value)
		}
		if attr == AttrFanMode {
			v.WriteFanMode(mode)
		} else {
			v.WriteHrvMode(mode)
		}
	case AttrFanTimeout:
		minutes, ok := stringToUint8(value)
		if !ok {
			return fmt.Errorf("invalid timeout '%s'", value)
		}
		v.WriteFanTimeoutMinutes(minutes)
	case AttrFanDutyCycle:
		percent, ok := stringToUint8(value)
		if !ok {
			return fmt.Errorf("invalid duty cycle '%s'", value)
		}
		v.WriteFanDutyCycle(percent)
	default:
		return fmt.Errorf("unknown attribute '%s'", attr)
	}
	return nil
}

// mqttBridge publishes every attribute change retained under prefix and
// accepts writes on prefix/<output>/<attribute>/set.
type mqttBridge struct {
	client mqtt.Client
	prefix string
	v      Ventilator
}

func (b *mqttBridge) Changed(attr Attribute, value interface{}) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}

	topic := b.prefix + "/" + string(attr)
	payload := attributeValueString(value)
	log.Infof("MQTT PUB: %s -> %s", topic, payload)
	b.client.Publish(topic, 0, true, payload)
}

func (b *mqttBridge) publishAll() {
	for _, attr := range allAttributes {
		b.Changed(attr, readAttribute(b.v, attr))
	}
}

// handle messages
// topics: PREFIX/fan/active/set, PREFIX/fan/mode/set, PREFIX/hrv/active/set ...
func (b *mqttBridge) messageHandler(client mqtt.Client, msg mqtt.Message) {
	log.Infof("MQTT: Received message: %s from topic: %s", msg.Payload(), msg.Topic())

	rest := strings.TrimPrefix(msg.Topic(), b.prefix+"/")
	ts := strings.Split(rest, "/")

	if rest == msg.Topic() || len(ts) != 3 || ts[2] != "set" {
		log.Errorf("mqtt received unexpected topic '%s'", msg.Topic())
		return
	}

	attr := Attribute(ts[0] + "/" + ts[1])
	if err := putAttribute(b.v, attr, string(msg.Payload())); err != nil {
		log.Errorf("mqtt write to '%s' rejected: %s", msg.Topic(), err)
	}
}

func newMqttBridge(opts MqttOptions, v Ventilator) *mqttBridge {
	b := &mqttBridge{prefix: opts.TopicPrefix, v: v}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.URL)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetOnConnectHandler(func(cl mqtt.Client) {
		topic := b.prefix + "/+/+/set"
		t := cl.Subscribe(topic, 0, b.messageHandler)
		t.Wait()
		if t.Error() != nil {
			log.Errorf("MQTT: failed to subscribe for %s: %s", topic, t.Error())
		} else {
			log.Infof("MQTT: subscribe succeeded for %s", topic)
		}
		b.publishAll()
	})

	b.client = mqtt.NewClient(co)
	return b
}

// Connect publishes the current state once connected and on every reconnect.
func (b *mqttBridge) Connect() error {
	t := b.client.Connect()
	t.Wait()
	if t.Error() != nil {
		return fmt.Errorf("MQTT: failed to connect to MQTT broker: %w", t.Error())
	}

	log.Info("MQTT: connected to MQTT broker")
	return nil
}

func (b *mqttBridge) Close() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}
