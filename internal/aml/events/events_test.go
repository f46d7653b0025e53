package events

import (
	"testing"
	"time"
)

func TestServerStartStopAndPublish(t *testing.T) {
	srv, err := NewServer(ServerConfig{Port: 18422})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.IsRunning() {
		t.Fatal("server should not be running before Start()")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Shutdown()

	if !srv.IsRunning() {
		t.Fatal("server should be running after Start()")
	}
	if want := "nats://127.0.0.1:18422"; srv.URL() != want {
		t.Fatalf("expected URL %s, got %s", want, srv.URL())
	}

	client, err := Connect(srv.URL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if !client.IsConnected() {
		t.Fatal("expected client to be connected")
	}

	received := make(chan Message, 1)
	sub, err := client.Subscribe(SubjectPatternWritten, func(m Message) { received <- m })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	evt := WriteEvent{Agent: "agent-1", ResourceID: "p1", ResourceType: "pattern", Timestamp: time.Now()}
	if err := client.PublishJSON(SubjectPatternWritten, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Subject != SubjectPatternWritten {
			t.Fatalf("unexpected subject: %s", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
