package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/crop-disease-api/internal/telegram"
)

func (a *app) botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Answer leaf photos sent to a Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.TelegramToken == "" {
				return errors.New("TELEGRAM_TOKEN is not set")
			}

			p, release := a.openPipeline()
			defer release()

			bot, err := telegram.NewBot(a.cfg.TelegramToken, p, a.log)
			if err != nil {
				return err
			}
			a.log.Infof("Bot is running")
			return bot.Run(cmd.Context())
		},
	}
}
