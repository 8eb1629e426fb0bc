package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/soundbeats/auth"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mutex  sync.Mutex
	sent   []interface{}
	closed bool
}

func (m *MockConnection) Send(v interface{}) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, v)
	return nil
}

func (m *MockConnection) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}
func (m *MockConnection) ReadMessage() ([]byte, error)        { return nil, nil }

func newSession(id, userID string) *Session {
	return NewSession(id, &MockConnection{}, auth.Caller{UserID: userID})
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sess := newSession("s1", "alice")

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	got, exists := manager.Get("s1")
	if !exists || got != sess {
		t.Fatal("Get should return the added session")
	}

	manager.Remove("s1")
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}
	if _, exists = manager.Get("s1"); exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_ByUser(t *testing.T) {
	manager := NewManager()
	manager.Add(newSession("s1", "alice"))
	manager.Add(newSession("s2", "bob"))
	manager.Add(newSession("s3", "alice"))

	if got := len(manager.ByUser("alice")); got != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", got)
	}
	if got := len(manager.ByUser("carol")); got != 0 {
		t.Errorf("Expected 0 sessions for carol, got %d", got)
	}
	if got := len(manager.All()); got != 3 {
		t.Errorf("Expected 3 sessions in All, got %d", got)
	}
}

func TestManager_Subscribers(t *testing.T) {
	manager := NewManager()
	everything := newSession("s1", "alice")
	kitchen := newSession("s2", "bob")
	kitchen.Subscribe("kitchen")
	garage := newSession("s3", "carol")
	garage.Subscribe("garage")
	manager.Add(everything)
	manager.Add(kitchen)
	manager.Add(garage)

	if got := len(manager.Subscribers("kitchen")); got != 2 {
		t.Errorf("Expected 2 kitchen subscribers, got %d", got)
	}
	if got := len(manager.Subscribers("")); got != 3 {
		t.Errorf("Expected instance-less events to reach all 3 sessions, got %d", got)
	}
}

func TestSession_Subscribe(t *testing.T) {
	sess := newSession("s", "alice")
	if !sess.Wants("kitchen") {
		t.Error("unsubscribed session should receive every instance")
	}

	sess.Subscribe("living_room")
	if sess.Subscription() != "living_room" {
		t.Errorf("Expected subscription living_room, got %q", sess.Subscription())
	}
	if sess.Wants("kitchen") {
		t.Error("subscribed session should not receive other instances")
	}
	if !sess.Wants("living_room") {
		t.Error("subscribed session should receive its instance")
	}

	sess.Subscribe("")
	if !sess.Wants("kitchen") {
		t.Error("clearing the subscription should receive every instance again")
	}
}

func TestSession_SendTouches(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s", conn, auth.Caller{UserID: "alice"})
	before := sess.LastSeen()

	time.Sleep(time.Millisecond)
	if err := sess.Send("hello"); err != nil {
		t.Fatal(err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected one frame, got %d", len(conn.sent))
	}
	if !sess.LastSeen().After(before) {
		t.Error("Send should update LastSeen")
	}
	if sess.ConnectedAt().After(before) {
		t.Error("ConnectedAt should not move")
	}
}

func TestManager_CloseAll(t *testing.T) {
	manager := NewManager()
	c1, c2 := &MockConnection{}, &MockConnection{}
	manager.Add(NewSession("s1", c1, auth.Caller{}))
	manager.Add(NewSession("s2", c2, auth.Caller{}))

	manager.CloseAll()
	if !c1.closed || !c2.closed {
		t.Error("CloseAll should close every connection")
	}
}
