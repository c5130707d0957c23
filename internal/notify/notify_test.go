package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"podium-bot/internal/models"
)

type fakeSender struct {
	mu    sync.Mutex
	fail  map[int64]bool
	block map[int64]bool
	got   []Message
}

func (f *fakeSender) Send(ctx context.Context, handle int64, text string) error {
	if f.block[handle] {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.fail[handle] {
		return errors.New("chat not found")
	}
	f.mu.Lock()
	f.got = append(f.got, Message{Handle: handle, Text: text})
	f.mu.Unlock()
	return nil
}

type fakeAnnouncer struct{ texts []string }

func (f *fakeAnnouncer) Announce(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	s := &fakeSender{fail: map[int64]bool{2: true}, block: map[int64]bool{3: true}}
	d := NewDispatcher(s, nil, 20*time.Millisecond, zerolog.Nop())

	sent := d.Broadcast(context.Background(), models.NotifyClosingSoon, []Message{
		{Handle: 1, Text: "a"}, {Handle: 2, Text: "b"}, {Handle: 3, Text: "c"}, {Handle: 4, Text: "d"},
	})
	if sent != 2 {
		t.Errorf("Expected 2 delivered, got %d", sent)
	}
	if len(s.got) != 2 || s.got[0].Handle != 1 || s.got[1].Handle != 4 {
		t.Errorf("Unexpected deliveries %+v", s.got)
	}
}

func TestAnnounceOptional(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, nil, time.Second, zerolog.Nop())
	d.Announce(context.Background(), models.NotifyRaceResult, "ignored")

	a := &fakeAnnouncer{}
	d = NewDispatcher(&fakeSender{}, a, time.Second, zerolog.Nop())
	d.Announce(context.Background(), models.NotifyRaceResult, "podium")
	if len(a.texts) != 1 || a.texts[0] != "podium" {
		t.Errorf("Expected one announcement, got %v", a.texts)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("🏁", 2100)
	got := truncate(text, discordMaxChars)
	if !utf8.ValidString(got) {
		t.Fatal("Expected valid UTF-8 after truncation")
	}
	if n := utf8.RuneCountInString(got); n != discordMaxChars {
		t.Errorf("Expected %d runes, got %d", discordMaxChars, n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected an ellipsis, got %q", got[len(got)-8:])
	}
	if short := "🏁 Results"; truncate(short, discordMaxChars) != short {
		t.Error("Expected short text unchanged")
	}
}
