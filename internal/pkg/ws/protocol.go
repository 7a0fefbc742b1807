package ws

import (
	"Homestead/internal/model"

	"github.com/goccy/go-json"
)

// EnvelopeType 推送/控制消息类型
type EnvelopeType string

const (
	TypeInitialSnapshot EnvelopeType = "INITIAL_SNAPSHOT"
	TypeNew             EnvelopeType = "NEW"
	TypeDeleted         EnvelopeType = "DELETED"
	TypeUpdated         EnvelopeType = "UPDATED"

	// TypeGetSnapshot 客户端 -> 服务端，请求立即回复 INITIAL_SNAPSHOT
	TypeGetSnapshot EnvelopeType = "GET_SNAPSHOT"
)

// Envelope 服务端推送消息，每次都携带完整快照
// Notification / DeletedID / DeletedRecord 仅用于客户端提示文案，正确性只依赖 Snapshot
type Envelope struct {
	Type          EnvelopeType          `json:"type"`
	Snapshot      []*model.Notification `json:"snapshot"`
	Notification  *model.Notification   `json:"notification,omitempty"`
	DeletedID     string                `json:"deletedId,omitempty"`
	DeletedRecord *model.Notification   `json:"deletedRecord"`
}

// envelopeWire Envelope 的线上格式，deletedRecord 只在 DELETED 中出现
type envelopeWire struct {
	Type          EnvelopeType          `json:"type"`
	Snapshot      []*model.Notification `json:"snapshot"`
	Notification  *model.Notification   `json:"notification,omitempty"`
	DeletedID     string                `json:"deletedId,omitempty"`
	DeletedRecord json.RawMessage       `json:"deletedRecord,omitempty"`
}

// MarshalJSON DELETED 的 deletedRecord 在记录不存在时为 null，其他类型不输出该字段
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := envelopeWire{
		Type:         e.Type,
		Snapshot:     e.Snapshot,
		Notification: e.Notification,
		DeletedID:    e.DeletedID,
	}
	if w.Snapshot == nil {
		w.Snapshot = make([]*model.Notification, 0)
	}
	if e.Type == TypeDeleted {
		record, err := json.Marshal(e.DeletedRecord)
		if err != nil {
			return nil, err
		}
		w.DeletedRecord = record
	}
	return json.Marshal(&w)
}

// ControlMessage 客户端控制消息
type ControlMessage struct {
	Type EnvelopeType `json:"type"`
}

// Encode 序列化，空快照输出为 []
func (e *Envelope) Encode() ([]byte, error) {
	if e.Snapshot == nil {
		e.Snapshot = make([]*model.Notification, 0)
	}
	return json.Marshal(e)
}

// DecodeEnvelope 解析服务端推送
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeControl 解析客户端控制消息
func DecodeControl(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeControl 序列化客户端控制消息
func EncodeControl(t EnvelopeType) ([]byte, error) {
	return json.Marshal(&ControlMessage{Type: t})
}

// CarriesSnapshot 是否为携带完整快照的推送类型
func CarriesSnapshot(t EnvelopeType) bool {
	switch t {
	case TypeInitialSnapshot, TypeNew, TypeDeleted, TypeUpdated:
		return true
	default:
		return false
	}
}
