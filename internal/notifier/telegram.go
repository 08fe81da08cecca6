// Package notifier pushes triple-signal alerts to Telegram when a run
// completes.
package notifier

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/controller"
	"stocksignal/models"
)

// Sender is the slice of the Telegram bot API the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram watches the controller's event stream and sends one message
// per completed run listing the tickers that fired the triple signal.
// Runs without alerts are silent.
//
// Result events also arrive outside a run: a settings change re-emits
// the whole stored result set. Only results produced between a run's
// start and its terminal state count toward that run's message, keyed
// by ticker so a mid-run re-emission updates rather than duplicates.
type Telegram struct {
	bot    Sender
	chatID int64
	logger zerolog.Logger

	inRun  bool
	order  []string
	alerts map[string]models.AnalysisResult
}

// New connects to the Telegram bot API.
func New(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return NewWithSender(bot, chatID), nil
}

// NewWithSender builds a notifier over an existing sender. Tests use
// this to avoid the network.
func NewWithSender(bot Sender, chatID int64) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "notifier").Logger(),
	}
}

// Observe consumes controller events until the channel closes. Run it
// on its own goroutine with a dedicated subscription.
func (t *Telegram) Observe(events <-chan controller.Event) {
	for ev := range events {
		switch ev.Type {
		case controller.EventState:
			switch ev.State {
			case controller.StateRunning:
				// A resume also reports Running; alerts collected so
				// far belong to the same run and are kept. A fresh
				// run starts an empty collection.
				if !t.inRun {
					t.inRun = true
					t.reset()
				}
			case controller.StateCompleted:
				t.inRun = false
				t.flush()
			case controller.StateStopped:
				t.inRun = false
				t.reset()
			}
		case controller.EventResult:
			if !t.inRun || ev.Result == nil {
				continue
			}
			key := ev.Result.Ticker
			if ev.Result.Alert {
				if _, seen := t.alerts[key]; !seen {
					t.order = append(t.order, key)
				}
				t.alerts[key] = *ev.Result
			} else {
				// A re-emitted result may have been relabeled out of
				// alert status.
				delete(t.alerts, key)
			}
		}
	}
}

func (t *Telegram) reset() {
	t.order = nil
	t.alerts = make(map[string]models.AnalysisResult)
}

func (t *Telegram) flush() {
	collected := make([]models.AnalysisResult, 0, len(t.alerts))
	for _, ticker := range t.order {
		if r, ok := t.alerts[ticker]; ok {
			collected = append(collected, r)
		}
	}
	t.reset()

	if len(collected) == 0 {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, formatAlerts(collected))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("sending alert message")
	} else {
		t.logger.Info().Int("alerts", len(collected)).Msg("alert message sent")
	}
}

func formatAlerts(alerts []models.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Triple signal* on %d ticker(s):\n", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n*%s* price %.2f\nRSI %.1f | MFI %.1f | lower band %.2f",
			a.Ticker, a.Price, a.RSI, a.MFI, a.BBLower)
	}
	return b.String()
}
