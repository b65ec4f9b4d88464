package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type testConfig struct {
	redisURL string
	queue    string
}

func (c testConfig) GetRedisURL() string       { return c.redisURL }
func (c testConfig) GetRedisTLSInsecure() bool { return false }
func (c testConfig) GetAsynqQueueName() string { return c.queue }
func (c testConfig) GetAsynqConcurrency() int  { return 1 }

func TestOutreachTaskDuePayloadRoundTrip(t *testing.T) {
	payload := OutreachTaskDuePayload{
		TaskID:         "0b2f7a43-9a1e-4d27-b9a9-5f2d0c1f61a0",
		OrganizationID: "4c4e9a1d-6f0b-4b8f-8f3f-2e1a9c7d5b30",
	}

	task, err := NewOutreachTaskDueTask(payload)
	if err != nil {
		t.Fatalf("NewOutreachTaskDueTask: %v", err)
	}
	if task.Type() != TaskOutreachTaskDue {
		t.Fatalf("task type = %q, want %q", task.Type(), TaskOutreachTaskDue)
	}

	got, err := ParseOutreachTaskDuePayload(task)
	if err != nil {
		t.Fatalf("ParseOutreachTaskDuePayload: %v", err)
	}
	if got != payload {
		t.Fatalf("payload round trip = %+v, want %+v", got, payload)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testConfig{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestClientSchedulesOutreachTask(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testConfig{redisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if client.queue != "default" {
		t.Fatalf("queue = %q, want default fallback", client.queue)
	}

	payload := OutreachTaskDuePayload{
		TaskID:         "0b2f7a43-9a1e-4d27-b9a9-5f2d0c1f61a0",
		OrganizationID: "4c4e9a1d-6f0b-4b8f-8f3f-2e1a9c7d5b30",
	}
	runAt := time.Now().Add(5 * time.Minute)

	if err := client.ScheduleOutreachTask(context.Background(), payload, runAt); err != nil {
		t.Fatalf("ScheduleOutreachTask: %v", err)
	}

	if len(mr.Keys()) == 0 {
		t.Fatal("expected the scheduled task to be written to redis")
	}
}

func TestNilClientIsNoOp(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
	if err := client.ScheduleOutreachTask(context.Background(), OutreachTaskDuePayload{}, time.Now()); err != nil {
		t.Fatalf("ScheduleOutreachTask on nil client: %v", err)
	}
}
