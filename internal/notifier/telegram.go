package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type TelegramNotifier struct {
	Token  string
	ChatID string

	// Retries and Backoff control SendWithRetry; zero values take the
	// defaults (3 attempts, 2s base backoff).
	Retries int
	Backoff time.Duration
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{Token: token, ChatID: chatID}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.Token)
	resp, err := http.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

// SendWithRetry retries transient failures with a growing pause. The last
// error is returned when every attempt fails.
func (t *TelegramNotifier) SendWithRetry(message string) error {
	retries := t.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := t.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var err error
	for i := 0; i < retries; i++ {
		if err = t.Send(message); err == nil {
			return nil
		}
		time.Sleep(backoff * time.Duration(i+1))
	}
	return fmt.Errorf("telegram send after %d attempts: %w", retries, err)
}
