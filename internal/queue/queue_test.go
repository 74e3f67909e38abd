package queue

import (
	"testing"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 3 {
		t.Fatalf("WorkQueueNames len = %d, want 3", len(work))
	}

	expected := map[string]struct{}{
		"federation.notifications.email":    {},
		"federation.notifications.whatsapp": {},
		"federation.notifications.webhook":  {},
	}

	for _, name := range work {
		if _, ok := expected[name]; !ok {
			t.Fatalf("unexpected queue name: %s", name)
		}
	}

	dlq := DLQNames()
	if len(dlq) != 3 {
		t.Fatalf("DLQNames len = %d, want 3", len(dlq))
	}

	for _, name := range dlq {
		if _, ok := expected[name[:len(name)-len(".dlq")]]; !ok {
			t.Fatalf("unexpected dlq name: %s", name)
		}
	}
}

func TestQueueName(t *testing.T) {
	queueName := QueueName(domain.ChannelWhatsApp)
	if queueName != "federation.notifications.whatsapp" {
		t.Fatalf("QueueName = %s, want federation.notifications.whatsapp", queueName)
	}

	dlqName := DLQName(domain.ChannelEmail)
	if dlqName != "federation.notifications.email.dlq" {
		t.Fatalf("DLQName = %s, want federation.notifications.email.dlq", dlqName)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name     string
		priority domain.Priority
		want     uint8
	}{
		{name: "high", priority: domain.PriorityHigh, want: 3},
		{name: "normal", priority: domain.PriorityNormal, want: 2},
		{name: "low", priority: domain.PriorityLow, want: 1},
		{name: "invalid", priority: domain.Priority("invalid"), want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityValue(tt.priority)
			if got != tt.want {
				t.Fatalf("PriorityValue(%q) = %d, want %d", tt.priority, got, tt.want)
			}
		})
	}
}

func TestMessageFor(t *testing.T) {
	msg := MessageFor(domain.Notification{
		ID:            "n1",
		CorrelationID: "c1",
		Type:          domain.TypeMembershipCreated,
		Channel:       domain.ChannelEmail,
		Priority:      domain.PriorityHigh,
	})

	if msg.NotificationID != "n1" || msg.CorrelationID != "c1" || msg.Type != domain.TypeMembershipCreated {
		t.Fatalf("MessageFor() = %+v", msg)
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestNotificationMessageValidate(t *testing.T) {
	msg := NotificationMessage{
		NotificationID: "n1",
		Channel:        domain.ChannelWebhook,
		Priority:       domain.PriorityNormal,
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.NotificationID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty notification id")
	}

	msg.NotificationID = "n1"
	msg.Channel = domain.Channel("SMS")
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for invalid channel")
	}

	msg.Channel = domain.ChannelWebhook
	msg.Priority = domain.Priority("invalid")
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for invalid priority")
	}

	msg.Priority = domain.PriorityLow
	msg.Type = domain.NotificationType("PROMO")
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestChannelForQueue(t *testing.T) {
	testCases := []struct {
		name   string
		want   domain.Channel
		wantOK bool
	}{
		{name: "federation.notifications.email", want: domain.ChannelEmail, wantOK: true},
		{name: "federation.notifications.whatsapp.dlq", want: domain.ChannelWhatsApp, wantOK: true},
		{name: "federation.notifications.sms"},
		{name: ""},
	}

	for _, tc := range testCases {
		got, ok := ChannelForQueue(tc.name)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ChannelForQueue(%q) = %q, %v; want %q, %v", tc.name, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestTopologyDeclaresDLQsFirst(t *testing.T) {
	specs := topology()
	if len(specs) != 6 {
		t.Fatalf("topology len = %d, want 6", len(specs))
	}

	for i, qs := range specs[:3] {
		if qs.exchange != dlxExchangeName || qs.name != DLQNames()[i] {
			t.Fatalf("specs[%d] = %+v, want dlq bound to %s", i, qs, dlxExchangeName)
		}
	}
	for i, qs := range specs[3:] {
		if qs.name != WorkQueueNames()[i] {
			t.Fatalf("specs[%d].name = %q", i+3, qs.name)
		}
		if qs.args["x-dead-letter-exchange"] != dlxExchangeName {
			t.Fatalf("queue %q has no dead-letter exchange", qs.name)
		}
		if qs.args["x-max-priority"] != queueMaxPriority {
			t.Fatalf("queue %q max priority = %v", qs.name, qs.args["x-max-priority"])
		}
	}
}
