package notifications

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradeforge/position-engine/internal/position"
)

type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	emoji := "ℹ️"
	switch level {
	case "warning":
		emoji = "⚠️"
	case "error":
		emoji = "🚨"
	case "success":
		emoji = "✅"
	}

	text := fmt.Sprintf("%s *Position Engine Alert*\n\n%s", emoji, message)

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	resp, err := t.client.Post(apiURL, "application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// NotifyTradeClosed formats and sends a closed-trade summary
func (t *TelegramNotifier) NotifyTradeClosed(record *position.TradeRecord) error {
	level := "success"
	if record.PnL < 0 {
		level = "warning"
	}
	message := fmt.Sprintf(
		"%s closed (%s)\nEntry: $%.4f → Exit: $%.4f\nPnL: $%.2f (%.2f%%)\nHeld: %s",
		record.Symbol, record.Reason,
		record.EntryPrice, record.ExitPrice,
		record.PnL, record.PnLRate*100,
		record.HoldDuration.Round(time.Minute),
	)
	return t.SendAlert(level, message)
}

// NotifyBreakerTripped alerts that the consecutive-loss breaker halted entries
func (t *TelegramNotifier) NotifyBreakerTripped(losses int) error {
	return t.SendAlert("error",
		fmt.Sprintf("Circuit breaker tripped after %d consecutive losses. New entries halted until the daily reset.", losses))
}

// NotifyDailyLimit alerts that the daily loss limit halted entries
func (t *TelegramNotifier) NotifyDailyLimit(dailyPnL float64) error {
	return t.SendAlert("error",
		fmt.Sprintf("Daily loss limit reached (%.2f). New entries halted for the rest of the day.", dailyPnL))
}

// NotifyCapitalProtection alerts that the balance fell below the protection floor
func (t *TelegramNotifier) NotifyCapitalProtection(balance float64) error {
	return t.SendAlert("error",
		fmt.Sprintf("Capital protection triggered at balance $%.2f. Trading halted.", balance))
}

// NotifyPresetSwitch alerts that the adaptive preset changed
func (t *TelegramNotifier) NotifyPresetSwitch(from, to string, score, confidence float64) error {
	return t.SendAlert("info",
		fmt.Sprintf("Preset switched: %s → %s (score %+.1f, confidence %.0f%%)", from, to, score, confidence*100))
}
