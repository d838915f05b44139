package telegram

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wayfarer/pkg/api"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotServer mimics the Telegram Bot API endpoints the channel talks to.
func fakeBotServer(t *testing.T) (*TelegramChannel, *[]string) {
	t.Helper()

	var sentTexts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Wayfarer","username":"wayfarer_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			sentTexts = append(sentTexts, r.FormValue("text"))
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
		case strings.HasSuffix(r.URL.Path, "/sendChatAction"):
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		default:
			t.Errorf("unexpected bot API call: %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	bot, err := tgbotapi.NewBotAPIWithClient("test-token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	return &TelegramChannel{
		bot:          bot,
		messageLimit: 10,
		mediaGroups:  make(map[string]*mediaGroupBuffer),
	}, &sentTexts
}

func chatSession() api.SessionContext {
	return api.SessionContext{ChannelID: "telegram", ChatID: "42", Username: "alice"}
}

func TestSendShortMessage(t *testing.T) {
	channel, sent := fakeBotServer(t)

	require.NoError(t, channel.Send(chatSession(), "short"))
	assert.Equal(t, []string{"short"}, *sent)
}

func TestSendSplitsLongMessage(t *testing.T) {
	channel, sent := fakeBotServer(t)

	// 25 runes with a 10-rune limit gives three bubbles.
	require.NoError(t, channel.Send(chatSession(), strings.Repeat("日", 25)))

	require.Len(t, *sent, 3)
	assert.Equal(t, strings.Repeat("日", 10), (*sent)[0])
	assert.Equal(t, strings.Repeat("日", 10), (*sent)[1])
	assert.Equal(t, strings.Repeat("日", 5), (*sent)[2])
}

func TestSendInvalidChatID(t *testing.T) {
	channel, _ := fakeBotServer(t)

	err := channel.Send(api.SessionContext{ChatID: "not-a-number"}, "hi")
	assert.Error(t, err)
}

func TestSendSignalThinking(t *testing.T) {
	channel, _ := fakeBotServer(t)

	// "thinking" maps to the typing chat action; other signals are ignored.
	assert.NoError(t, channel.SendSignal(chatSession(), "thinking"))
	assert.NoError(t, channel.SendSignal(chatSession(), "role:system"))
}
