// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"errors"
	"reflect"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/territoryrun/server/internal/model"
)

var json = jsoniter.Config{
	EscapeHTML:                    false,
	SortMapKeys:                   true,
	ObjectFieldMustBeSimpleString: true,
}.Froze()

var (
	// inboundMessageTypes maps the wire "type" string to the concrete Go type
	// registered for it, so decodeMessage can build the right Inbound.
	inboundMessageTypes = make(map[messageType]reflect.Type)
	// outboundMessageTypes maps a concrete outbound struct type back to its
	// wire "type" string for encoding.
	outboundMessageTypes = make(map[reflect.Type]messageType)
)

type (
	// Inbound is any message a client may send. Process runs on the Hub
	// goroutine with the sender's up-to-date Player pointer.
	Inbound interface {
		Process(h *Hub, client Client, player *model.Player)
	}

	// Outbound is any message the server may send to a client.
	Outbound interface{}

	// Message is the envelope: {"type": "...", "data": {...}}. Grounded
	// verbatim on the teacher's server/message.go Message/messageJSON split,
	// which lets one Go struct marshal/unmarshal through a type-tagged
	// envelope without every call site naming the tag itself.
	Message struct {
		Data interface{}
	}

	messageJSON struct {
		Data interface{} `json:"data"`
		Type messageType `json:"type"`
	}

	messageType string

	// SignedInbound pairs a decoded Inbound with the Client it arrived on,
	// queued onto Hub.inbound.
	SignedInbound struct {
		Client Client
		Inbound
	}

	// InvalidInbound is substituted for any message whose type string isn't
	// registered, so a malformed/unknown packet can be logged and dropped
	// instead of crashing the decoder.
	InvalidInbound struct {
		messageType messageType
	}
)

func (InvalidInbound) Process(*Hub, Client, *model.Player) {}

func uncapitalize(str string) string {
	return strings.ToLower(str[0:1]) + str[1:]
}

// registerInbound indexes each Inbound implementation by its lower-camel
// type name (e.g. *LocationUpdate -> "locationUpdate").
func registerInbound(inbounds ...Inbound) {
	for _, in := range inbounds {
		val := reflect.ValueOf(in)
		m := messageType(uncapitalize(reflect.Indirect(val).Type().Name()))
		inboundMessageTypes[m] = val.Type()
	}
}

// registerOutbound indexes each Outbound implementation the same way, in
// reverse (type -> wire name).
func registerOutbound(outbounds ...Outbound) {
	for _, out := range outbounds {
		val := reflect.ValueOf(out)
		m := messageType(uncapitalize(reflect.Indirect(val).Type().Name()))
		outboundMessageTypes[val.Type()] = m
	}
}

func (message Message) messageJSON() (messageJSON, error) {
	typ := reflect.TypeOf(message.Data)
	mType, ok := outboundMessageTypes[typ]
	if !ok {
		return messageJSON{}, errors.New("hub: unregistered outbound type " + typ.Name())
	}
	return messageJSON{Data: message.Data, Type: mType}, nil
}

func (message Message) MarshalJSON() ([]byte, error) {
	wire, err := message.messageJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

func (message *Message) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type messageType     `json:"type"`
		Data jsoniter.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	typ, ok := inboundMessageTypes[probe.Type]
	if !ok {
		message.Data = InvalidInbound{messageType: probe.Type}
		return nil
	}

	ptr := reflect.New(typ)
	if len(probe.Data) > 0 {
		if err := json.Unmarshal(probe.Data, ptr.Interface()); err != nil {
			return err
		}
	}
	message.Data = reflect.Indirect(ptr).Interface()
	return nil
}
