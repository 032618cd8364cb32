package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fenggwsx/hirechat/internal/chat"
)

var validate = newValidator()

// newValidator reports fields by their wire names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Event is the closed set of inbound live-channel requests.
type Event interface {
	Type() MessageType
	sealed()
}

// JoinRoom subscribes the connection to its room with the receiver.
type JoinRoom struct {
	ReceiverID   string `json:"receiverId" validate:"required,max=128"`
	ReceiverKind string `json:"receiverKind" validate:"required,oneof=candidate hr"`
}

// SendMessage persists a message for the receiver. Sender fields are
// optional and, when given, must describe the connection itself.
type SendMessage struct {
	SenderID     string `json:"senderId,omitempty" validate:"max=128"`
	SenderKind   string `json:"senderKind,omitempty" validate:"omitempty,oneof=candidate hr"`
	SenderName   string `json:"senderName,omitempty" validate:"max=128"`
	ReceiverID   string `json:"receiverId" validate:"required,max=128"`
	ReceiverKind string `json:"receiverKind" validate:"required,oneof=candidate hr"`
	Body         string `json:"body" validate:"required,max=4096"`
}

// GetMessages requests the room history with another participant.
type GetMessages struct {
	SelfID    string `json:"selfId,omitempty" validate:"max=128"`
	SelfKind  string `json:"selfKind,omitempty" validate:"omitempty,oneof=candidate hr"`
	OtherID   string `json:"otherId" validate:"required,max=128"`
	OtherKind string `json:"otherKind" validate:"required,oneof=candidate hr"`
}

func (JoinRoom) Type() MessageType    { return MessageTypeJoinRoom }
func (SendMessage) Type() MessageType { return MessageTypeSendMessage }
func (GetMessages) Type() MessageType { return MessageTypeGetMessages }

func (JoinRoom) sealed()    {}
func (SendMessage) sealed() {}
func (GetMessages) sealed() {}

// Receiver returns the addressed participant.
func (e JoinRoom) Receiver() (chat.Identity, error) {
	return chat.NewIdentity(e.ReceiverID, e.ReceiverKind)
}

// Receiver returns the addressed participant.
func (e SendMessage) Receiver() (chat.Identity, error) {
	return chat.NewIdentity(e.ReceiverID, e.ReceiverKind)
}

// Other returns the counterpart whose room is requested.
func (e GetMessages) Other() (chat.Identity, error) {
	return chat.NewIdentity(e.OtherID, e.OtherKind)
}

// DecodeEvent turns an inbound envelope into its typed event, validating
// required fields. Failures are *chat.ValidationError.
func DecodeEvent(env Envelope) (Event, error) {
	switch env.Type {
	case MessageTypeJoinRoom:
		return decodeValid[JoinRoom](env.Payload)
	case MessageTypeSendMessage:
		ev, err := decodeValid[SendMessage](env.Payload)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.Body) == "" {
			return nil, &chat.ValidationError{Field: "body", Reason: "message empty"}
		}
		return ev, nil
	case MessageTypeGetMessages:
		return decodeValid[GetMessages](env.Payload)
	case "":
		return nil, &chat.ValidationError{Field: "type", Reason: "required"}
	default:
		return nil, &chat.ValidationError{Field: "type", Reason: "unsupported event " + string(env.Type)}
	}
}

// DecodeHandshake validates the identity metadata sent at connect time.
func DecodeHandshake(payload interface{}) (Handshake, error) {
	return decodeValid[Handshake](payload)
}

// DecodePayload re-decodes a loosely typed payload into T.
func DecodePayload[T any](payload interface{}) (T, error) {
	var out T
	if payload == nil {
		return out, errors.New("payload empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeValid[T any](payload interface{}) (T, error) {
	out, err := DecodePayload[T](payload)
	if err != nil {
		return out, &chat.ValidationError{Reason: err.Error()}
	}
	if err := validate.Struct(out); err != nil {
		return out, validationError(err)
	}
	return out, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &chat.ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
	}
	return &chat.ValidationError{Reason: err.Error()}
}
