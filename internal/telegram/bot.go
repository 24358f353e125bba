package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/cyclopcam/logs"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/pipeline"
)

const (
	msgStart = `🌱 Send me a photo of a corn, rice, sorghum or wheat leaf and I will tell you which disease it most likely shows.

Commands:
/help: how to take a good photo
/labels: diseases I can recognise`

	msgHelp = `ℹ️ Tips:
• Fill the frame with a single leaf
• Shoot in daylight, avoid glare
• Send the photo as a picture or as an image file`

	msgSendPhoto      = "📸 Please send a photo of a leaf."
	msgUnknownCommand = "❓ Unknown command. Use /help."
	msgDownloadError  = "⚠️ Could not download the image. Please try again."
	msgFailed         = "⚠️ Could not analyse this image. Try another photo."

	maxDownloadBytes = 20 << 20
)

type Bot struct {
	api      *tgbotapi.BotAPI
	pipeline *pipeline.Pipeline
	log      logs.Log
	client   *http.Client
}

func NewBot(token string, p *pipeline.Pipeline, log logs.Log) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login failed: %w", err)
	}

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		pipeline: p,
		log:      log,
		client:   &http.Client{Timeout: time.Minute},
	}, nil
}

// Run processes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(update.Message)
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.sendMessage(msg.Chat.ID, commandReply(msg.Command(), b.pipeline.Labels()))
		return
	}

	fileID := imageFileID(msg)
	if fileID == "" {
		b.sendMessage(msg.Chat.ID, msgSendPhoto)
		return
	}

	data, err := b.downloadFile(fileID)
	if err != nil {
		b.log.Warnf("Error downloading photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgDownloadError)
		return
	}

	b.log.Debugf("Received image: %d bytes from chat %d", len(data), msg.Chat.ID)
	text, err := classifyBytes(b.pipeline, data)
	if err != nil {
		text += "\n\n" + msgFailed
	}
	b.sendMessage(msg.Chat.ID, text)
}

// classifyBytes decodes and classifies an image. The returned text is always what the user
// should see, the fallback text included; err is set when that is a failure.
func classifyBytes(p *pipeline.Pipeline, data []byte) (string, error) {
	outcome, err := p.RunReader(bytes.NewReader(data))
	if err != nil {
		return model.FailureText, err
	}
	return outcome.Result.Display(), nil
}

func commandReply(command string, labels []string) string {
	switch command {
	case "start":
		return msgStart
	case "help":
		return msgHelp
	case "labels":
		names := make([]string, len(labels))
		for i, l := range labels {
			names[i] = "• " + strings.ReplaceAll(l, "_", " ")
		}
		return strings.Join(names, "\n")
	}
	return msgUnknownCommand
}

// imageFileID picks the largest photo size, or an image sent as a document.
func imageFileID(msg *tgbotapi.Message) string {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID
	}
	return ""
}

func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	resp, err := b.client.Get(file.Link(b.api.Token))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %v", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warnf("Error sending message: %v", err)
	}
}
