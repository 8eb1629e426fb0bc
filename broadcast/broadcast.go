// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"

	"github.com/wfunc/soundbeats/network"
	"github.com/wfunc/soundbeats/session"
)

// Event topics.
const (
	TopicGameStateChanged = "soundbeats_game_state_changed"
	TopicTimerUpdate      = "soundbeats_timer_update"
	TopicRoundEnded       = "soundbeats_round_ended"
	TopicGameEnded        = "soundbeats_game_ended"
	TopicTeamAssigned     = "soundbeats_team_assigned"
)

// Topics lists every topic the service publishes.
var Topics = []string{TopicGameStateChanged, TopicTimerUpdate, TopicRoundEnded, TopicGameEnded, TopicTeamAssigned}

// Publisher is the notification sink for game and playback changes.
type Publisher interface {
	Publish(topic string, payload interface{}) error
}

// Envelope tags a payload with the instance it belongs to. A non-empty
// Users list restricts delivery to those users' sessions.
type Envelope struct {
	InstanceID string
	Users      []string
	Data       interface{}
}

// Targeted is a payload meant only for the sessions of Users.
type Targeted struct {
	Users []string
	Data  interface{}
}

func ToUsers(data interface{}, users ...string) Targeted {
	return Targeted{Users: users, Data: data}
}

type scoped struct {
	next       Publisher
	instanceID string
}

// ForInstance wraps every payload published through p in an Envelope.
func ForInstance(p Publisher, instanceID string) Publisher {
	return &scoped{next: p, instanceID: instanceID}
}

func (s *scoped) Publish(topic string, payload interface{}) error {
	env := Envelope{InstanceID: s.instanceID, Data: payload}
	if t, ok := payload.(Targeted); ok {
		env.Users = t.Users
		env.Data = t.Data
	}
	return s.next.Publish(topic, env)
}

// Discard drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, interface{}) error { return nil }

// 广播接口
type Broadcaster interface {
	BroadcastToAll(topic string, instanceID string, data []byte) error
	BroadcastToUsers(userIDs []string, topic string, instanceID string, data []byte) error
}

// SessionBroadcaster pushes events to connected command-channel sessions.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func newEvent(topic, instanceID string, data []byte) *network.Event {
	return &network.Event{
		Type: network.MsgTypeEvent,
		Event: network.EventBody{
			EventType:  topic,
			InstanceID: instanceID,
			Data:       json.RawMessage(data),
		},
	}
}

// BroadcastToAll sends to every session interested in instanceID.
func (b *SessionBroadcaster) BroadcastToAll(topic string, instanceID string, data []byte) error {
	ev := newEvent(topic, instanceID, data)
	for _, s := range b.sessionManager.Subscribers(instanceID) {
		if err := s.Send(ev); err != nil {
			// 处理发送错误，连接关闭时由读循环清理
			continue
		}
	}
	return nil
}

// BroadcastToUsers sends to every session of the listed users, whatever their subscription.
func (b *SessionBroadcaster) BroadcastToUsers(userIDs []string, topic string, instanceID string, data []byte) error {
	ev := newEvent(topic, instanceID, data)
	for _, userID := range userIDs {
		for _, s := range b.sessionManager.ByUser(userID) {
			if err := s.Send(ev); err != nil {
				continue
			}
		}
	}
	return nil
}
