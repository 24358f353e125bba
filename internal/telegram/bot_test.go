package telegram

import (
	"bytes"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/crop-disease-api/internal/inference"
	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/pipeline"
)

type fixedModel struct {
	out []int8
}

func (f *fixedModel) Run(input []int8) ([]int8, error) {
	return f.out, nil
}

func (f *fixedModel) Info() inference.TensorInfo {
	return inference.TensorInfo{
		InputShape:   []int64{1, model.InputSize, model.InputSize, 3},
		OutputShape:  []int64{1, int64(len(f.out))},
		InputSide:    model.InputSize,
		OutputSize:   len(f.out),
		Quantization: model.QuantizationParams{Scale: 1.0 / 256, ZeroPoint: -128},
	}
}

func TestCommandReply(t *testing.T) {
	assert.Equal(t, msgStart, commandReply("start", model.DefaultLabels))
	assert.Equal(t, msgHelp, commandReply("help", model.DefaultLabels))
	assert.Equal(t, msgUnknownCommand, commandReply("weather", model.DefaultLabels))

	labels := commandReply("labels", []string{"Corn_Blight", "Rice_Healthy"})
	assert.Equal(t, "• Corn Blight\n• Rice Healthy", labels)
}

func TestImageFileID(t *testing.T) {
	msg := &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90},
		{FileID: "large", Width: 1280},
	}}
	assert.Equal(t, "large", imageFileID(msg))

	msg = &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/png"}}
	assert.Equal(t, "doc", imageFileID(msg))

	msg = &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "pdf", MimeType: "application/pdf"}}
	assert.Empty(t, imageFileID(msg))

	assert.Empty(t, imageFileID(&tgbotapi.Message{Text: "hello"}))
}

func TestClassifyBytes(t *testing.T) {
	out := make([]int8, len(model.DefaultLabels))
	for i := range out {
		out[i] = -128
	}
	out[13] = 127
	p := pipeline.New(&fixedModel{out: out}, model.DefaultLabels, logs.NewTestingLog(t))
	var failures int
	p.OnFailure(func(err error) { failures++ })

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 30)), nil))

	text, err := classifyBytes(p, buf.Bytes())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, model.DefaultLabels[13]+" ("), text)

	text, err = classifyBytes(p, []byte("garbage"))
	assert.ErrorIs(t, err, model.ErrInvalidImage)
	assert.Equal(t, model.FailureText, text)
	assert.Equal(t, 1, failures)
}
