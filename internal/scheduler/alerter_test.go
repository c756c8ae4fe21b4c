package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/notify"
)

// ---- shared helpers ----

type memNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (m *memNotifier) Send(ctx context.Context, a notify.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return m.err
}

func (m *memNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func transition(site string, from, to domain.Status, code int) domain.Transition {
	return domain.Transition{Site: site, URL: "https://" + site, From: from, To: to, At: time.Now(), StatusCode: intp(code)}
}

func intp(i int) *int { return &i }

// ---- tests ----

func TestAlerter_SendsOnDown_RespectsCooldown(t *testing.T) {
	nt := &memNotifier{}
	al := NewAlerter(nt, AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute}, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	al.now = func() time.Time { return now }
	ctx := context.Background()

	al.handle(ctx, transition("A", domain.StatusOnline, domain.StatusDown, 500))
	if nt.count() != 1 {
		t.Fatalf("want 1 alert, got %d", nt.count())
	}

	// recovery then down again inside the cooldown: only the recovery goes out
	al.handle(ctx, transition("A", domain.StatusDown, domain.StatusOnline, 200))
	now = now.Add(30 * time.Second)
	al.handle(ctx, transition("A", domain.StatusOnline, domain.StatusDown, 500))
	if nt.count() != 2 {
		t.Fatalf("want cooldown to suppress, got %d", nt.count())
	}
	if nt.alerts[1].Kind != notify.KindRecovery {
		t.Fatalf("want recovery alert, got %q", nt.alerts[1].Kind)
	}

	// other sites have their own cooldown
	al.handle(ctx, transition("B", domain.StatusUnknown, domain.StatusDown, 503))
	if nt.count() != 3 {
		t.Fatalf("want alert for B, got %d", nt.count())
	}

	now = now.Add(time.Minute)
	al.handle(ctx, transition("A", domain.StatusOnline, domain.StatusDown, 500))
	if nt.count() != 4 {
		t.Fatalf("want alert after cooldown, got %d", nt.count())
	}
}

func TestAlerter_NoRecoveryIfDisabled(t *testing.T) {
	nt := &memNotifier{}
	al := NewAlerter(nt, AlerterConfig{AlertOnRecovery: false}, nil)
	ctx := context.Background()

	// first Online after start is not a recovery
	al.handle(ctx, transition("B", domain.StatusUnknown, domain.StatusOnline, 200))
	al.handle(ctx, transition("B", domain.StatusOnline, domain.StatusDown, 500))
	al.handle(ctx, transition("B", domain.StatusDown, domain.StatusOnline, 200))
	if nt.count() != 1 || nt.alerts[0].Kind != notify.KindDown {
		t.Fatalf("want one down alert, got %d", nt.count())
	}
}

func TestAlerter_RunDrainsQueue(t *testing.T) {
	nt := &memNotifier{}
	al := NewAlerter(nt, AlerterConfig{AlertOnRecovery: true}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- al.Run(ctx) }()

	al.Enqueue(transition("A", domain.StatusOnline, domain.StatusDown, 502))
	deadline := time.Now().Add(2 * time.Second)
	for nt.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if nt.count() != 1 {
		t.Fatalf("want 1 alert, got %d", nt.count())
	}
	if !strings.Contains(nt.alerts[0].Text, "HTTP: 502") {
		t.Fatalf("unexpected text %q", nt.alerts[0].Text)
	}
}

func TestAlerter_EnqueueNeverBlocks(t *testing.T) {
	al := NewAlerter(&memNotifier{}, AlerterConfig{Buffer: 1}, nil)
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			al.Enqueue(transition("A", domain.StatusOnline, domain.StatusDown, 500))
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestAlerter_SendErrorIsSwallowed(t *testing.T) {
	nt := &memNotifier{err: errors.New("webhook down")}
	al := NewAlerter(nt, AlerterConfig{}, nil)
	al.handle(context.Background(), transition("A", domain.StatusOnline, domain.StatusDown, 500))
	if nt.count() != 1 {
		t.Fatalf("send must still be attempted")
	}
}

func TestAlertText_IncludesDowntime(t *testing.T) {
	d := 95 * time.Second
	rt := 0.25
	tr := transition("A", domain.StatusDown, domain.StatusOnline, 200)
	tr.ResponseTime = &rt
	tr.Incident = &domain.Incident{Duration: &d}
	txt := alertText(tr)
	for _, want := range []string{"Latency: 250 ms", "Downtime: 1m 35s", "Reason: ok"} {
		if !strings.Contains(txt, want) {
			t.Fatalf("missing %q in %q", want, txt)
		}
	}
}

func TestAlerter_EveryTransitionIgnoresFilters(t *testing.T) {
	nt := &memNotifier{}
	al := NewAlerter(nt, AlerterConfig{EveryTransition: true, Cooldown: time.Hour}, nil)
	ctx := context.Background()

	al.handle(ctx, transition("A", domain.StatusUnknown, domain.StatusOnline, 200))
	al.handle(ctx, transition("A", domain.StatusOnline, domain.StatusDown, 500))
	al.handle(ctx, transition("A", domain.StatusDown, domain.StatusOnline, 200))
	al.handle(ctx, transition("A", domain.StatusOnline, domain.StatusDown, 500))

	if nt.count() != 4 {
		t.Fatalf("want every transition forwarded, got %d", nt.count())
	}
	want := []string{notify.KindUp, notify.KindDown, notify.KindRecovery, notify.KindDown}
	for i, k := range want {
		if nt.alerts[i].Kind != k {
			t.Fatalf("alert %d: kind %q want %q", i, nt.alerts[i].Kind, k)
		}
	}
}

func TestEnqueueAll_FeedsAlertsAndEvents(t *testing.T) {
	chat, events := &memNotifier{}, &memNotifier{}
	alerts := NewAlerter(chat, AlerterConfig{Cooldown: time.Hour}, nil)
	stream := NewAlerter(events, AlerterConfig{EveryTransition: true}, nil)
	hook := EnqueueAll(alerts, nil, stream)

	hook(transition("A", domain.StatusOnline, domain.StatusDown, 500))
	hook(transition("A", domain.StatusDown, domain.StatusOnline, 200))
	hook(transition("A", domain.StatusOnline, domain.StatusDown, 500))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = alerts.Run(ctx) }()
	go func() { _ = stream.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for events.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	for chat.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if events.count() != 3 {
		t.Fatalf("event sink must see every transition, got %d", events.count())
	}
	// recovery alerts are off and the second down is inside the cooldown
	if chat.count() != 1 {
		t.Fatalf("alert sink should stay filtered, got %d", chat.count())
	}
}

func TestEnqueueAll_NoneConfigured(t *testing.T) {
	if EnqueueAll(nil, nil) != nil {
		t.Fatalf("want nil hook without alerters")
	}
}
