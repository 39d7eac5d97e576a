package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/skalibog/cryptosignals/internal/config"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/skalibog/cryptosignals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type scriptedChannel struct {
	name string
	mu   sync.Mutex
	errs []error
	sent []Message
}

func (c *scriptedChannel) Name() string { return c.name }

func (c *scriptedChannel) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return err
		}
	}
	c.sent = append(c.sent, msg)
	return nil
}

func testConfig() config.NotificationConfig {
	return config.NotificationConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestSendSignalNotification_PartialSuccess(t *testing.T) {
	ok := &scriptedChannel{name: "ok"}
	flaky := &scriptedChannel{name: "flaky", errs: []error{models.ErrDelivery, models.ErrDelivery}}
	broken := &scriptedChannel{name: "broken", errs: []error{ErrUnauthorized}}

	svc := NewService(testConfig(), ok, flaky, broken)
	res := svc.SendSignalNotification(context.Background(), testutil.LongSignal("s1", "binance", "BTCUSDT", created))

	assert.True(t, res.Success())
	assert.ElementsMatch(t, []string{"ok", "flaky"}, res.Delivered)
	assert.Equal(t, 3, res.Attempts["flaky"])
	assert.Equal(t, 1, res.Attempts["broken"])
	require.Contains(t, res.Failed, "broken")
	assert.ErrorIs(t, res.Err(), ErrUnauthorized)

	require.Len(t, ok.sent, 1)
	assert.Equal(t, "s1", ok.sent[0].Signal.ID)
	assert.Equal(t, PriorityNormal, ok.sent[0].Priority)
}

func TestDeliver_RetriesExhausted(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = models.ErrDelivery
	}
	ch := &scriptedChannel{name: "down", errs: errs}

	svc := NewService(testConfig(), ch)
	res := svc.SendAlert(context.Background(), PriorityCritical, "Сбой", "биржа недоступна")

	assert.False(t, res.Success())
	assert.Equal(t, 4, res.Attempts["down"])
	assert.ErrorIs(t, res.Err(), models.ErrDelivery)
}

func TestDeliver_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	ch := &scriptedChannel{name: "slow", errs: []error{models.ErrDelivery}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewService(cfg, ch).SendAlert(ctx, PriorityLow, "тест", "тест")

	assert.Equal(t, 1, res.Attempts["slow"])
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestNewService_CapsBackoff(t *testing.T) {
	svc := NewService(config.NotificationConfig{MaxBackoff: time.Hour})
	assert.Equal(t, 30*time.Second, svc.maxBackoff)
	assert.Equal(t, time.Second, svc.initialBackoff)
}

func TestPermanent(t *testing.T) {
	assert.True(t, Permanent(ErrInvalidMessage))
	assert.True(t, Permanent(ErrNotFound))
	assert.False(t, Permanent(models.ErrDelivery))
	assert.False(t, Permanent(errors.New("timeout")))
}

type fakeSender struct {
	params *bot.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &tgmodels.Message{ID: 1}, nil
}

func TestTelegramChannel_Send(t *testing.T) {
	sender := &fakeSender{}
	ch := &TelegramChannel{sender: sender, chatID: 42}

	require.NoError(t, ch.Send(context.Background(), Message{Title: "Алерт", Text: "текст", Priority: PriorityLow}))
	assert.Equal(t, int64(42), sender.params.ChatID)
	assert.Equal(t, tgmodels.ParseModeHTML, sender.params.ParseMode)
	assert.True(t, sender.params.DisableNotification)
	assert.Contains(t, sender.params.Text, "<b>Алерт</b>")
}

func TestTelegramChannel_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{bot.ErrorUnauthorized, ErrUnauthorized},
		{bot.ErrorForbidden, ErrUnauthorized},
		{bot.ErrorNotFound, ErrNotFound},
		{bot.ErrorBadRequest, ErrInvalidMessage},
		{errors.New("connection reset"), models.ErrDelivery},
	}
	for _, tt := range tests {
		ch := &TelegramChannel{sender: &fakeSender{err: tt.err}, chatID: 1}
		err := ch.Send(context.Background(), Message{Text: "x"})
		assert.ErrorIs(t, err, tt.want, tt.err.Error())
	}
}

func TestLogChannel(t *testing.T) {
	ch := LogChannel{}
	assert.Equal(t, "log", ch.Name())
	assert.NoError(t, ch.Send(context.Background(), Message{Signal: testutil.LongSignal("s1", "binance", "BTCUSDT", created)}))
}
