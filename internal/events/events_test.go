package events

import (
	"errors"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventDownloadResolved)

	bus.Publish(&DownloadEvent{
		BaseEvent: BaseEvent{EventType: EventDownloadResolved, Time: time.Now()},
		Label:     "TV4",
		Path:      "/downloads/TV4.xlsx",
	})

	select {
	case received := <-ch:
		dl, ok := received.(*DownloadEvent)
		if !ok {
			t.Fatal("Expected DownloadEvent")
		}
		if dl.Label != "TV4" {
			t.Errorf("Expected label 'TV4', got '%s'", dl.Label)
		}
		if dl.Path != "/downloads/TV4.xlsx" {
			t.Errorf("Expected path '/downloads/TV4.xlsx', got '%s'", dl.Path)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventLog)
	ch2 := bus.Subscribe(EventLog)

	bus.PublishLog(InfoLevel, "Test log", "task", nil)

	received1 := false
	received2 := false

	select {
	case <-ch1:
		received1 = true
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-ch2:
		received2 = true
	case <-time.After(100 * time.Millisecond):
	}

	if !received1 || !received2 {
		t.Error("Not all subscribers received the event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	startedCh := bus.Subscribe(EventDownloadStarted)
	logCh := bus.Subscribe(EventLog)

	bus.PublishDownload(EventDownloadStarted, "Sunland", "Sunland.xlsx.crdownload", "", nil)

	select {
	case <-startedCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Started subscriber didn't receive event")
	}

	select {
	case <-logCh:
		t.Error("Log subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.PublishDownload(EventIntentTriggered, "a", "", "", nil)
	bus.Publish(&MetricEvent{
		BaseEvent: BaseEvent{EventType: EventMetricScraped, Time: time.Now()},
		Label:     "Grubhub Members",
		Value:     42,
	})

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if count != 2 {
		t.Errorf("Expected to receive 2 events, got %d", count)
	}
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventDownloadStarted)

	for i := 0; i < 10; i++ {
		bus.PublishDownload(EventDownloadStarted, "x", "x.crdownload", "", nil)
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		case <-time.After(10 * time.Millisecond):
			goto done
		}
	}
done:

	if count != 2 {
		t.Errorf("Expected 2 buffered events, got %d", count)
	}
	if dropped := bus.GetDroppedEventCount(); dropped != 8 {
		t.Errorf("Expected 8 dropped events, got %d", dropped)
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventRunComplete)

	bus.Close()

	_, ok := <-ch
	if ok {
		t.Error("Channel should be closed after bus.Close()")
	}

	// Publishing after close should not panic
	bus.Publish(&RunCompleteEvent{
		BaseEvent: BaseEvent{EventType: EventRunComplete, Time: time.Now()},
	})

	// Subscribing after close yields a closed channel
	if _, ok := <-bus.Subscribe(EventLog); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestEventBus_NilIsNoop(t *testing.T) {
	var bus *EventBus
	bus.PublishDownload(EventDownloadTimeout, "label", "", "", nil)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTaskFailed)
	bus.Unsubscribe(EventTaskFailed, ch)

	if _, ok := <-ch; ok {
		t.Error("Unsubscribed channel should be closed")
	}

	// Must not panic or deliver to the removed channel
	bus.Publish(&TaskFailedEvent{
		BaseEvent: BaseEvent{EventType: EventTaskFailed, Time: time.Now()},
		Task:      "Clearcover",
		Error:     errors.New("boom"),
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}

func TestPublishDownload_Fields(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventRenameFailed)
	cause := errors.New("permission denied")

	bus.PublishDownload(EventRenameFailed, "Uber", "", "/dl/export.xlsx", cause)

	select {
	case event := <-ch:
		dl, ok := event.(*DownloadEvent)
		if !ok {
			t.Fatal("Expected DownloadEvent")
		}
		if dl.Path != "/dl/export.xlsx" {
			t.Errorf("Expected kept path '/dl/export.xlsx', got '%s'", dl.Path)
		}
		if !errors.Is(dl.Error, cause) {
			t.Errorf("Expected cause to be carried, got %v", dl.Error)
		}
		if dl.Timestamp().IsZero() {
			t.Error("Expected timestamp to be set")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for rename event")
	}
}
