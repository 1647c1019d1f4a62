package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lessonshelf/lectern/internal/synthserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the speech synthesis service",
	Long: paragraph(fmt.Sprintf("\n%s the HTTP endpoint the player narrates through. "+
		"Audio comes from Google Cloud Text-to-Speech using the service account JSON in %s.",
		keyword("Serve"), synthserver.CredentialsEnv)),
	Example: paragraph("lectern serve\nlectern serve --addr 127.0.0.1:9000"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		synth := synthserver.NewGoogleSynthesizer(synthserver.GoogleConfig{
			CredentialsJSON: os.Getenv(synthserver.CredentialsEnv),
			LanguageCode:    viper.GetString("serve.language_code"),
			VoiceName:       viper.GetString("serve.voice_name"),
			SpeakingRate:    viper.GetFloat64("serve.speaking_rate"),
		})
		defer func() {
			if err := synth.Close(); err != nil {
				log.Warn("Could not close synthesis client", "error", err)
			}
		}()

		if os.Getenv(synthserver.CredentialsEnv) == "" {
			log.Warn("Synthesis requests will fail until credentials are set", "env", synthserver.CredentialsEnv)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srv := synthserver.New(synth, synthserver.Config{
			Addr:           viper.GetString("serve.addr"),
			AllowedOrigins: viper.GetStringSlice("serve.allowed_origins"),
			Getenv:         os.Getenv,
		})
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", keyword(viper.GetString("serve.addr")))
		return srv.ListenAndServe(ctx) //nolint:wrapcheck
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address")
	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}
