package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/user/meeting-voiceid/internal/app"
	"github.com/user/meeting-voiceid/internal/audio"
	"github.com/user/meeting-voiceid/internal/capture/discord"
	"github.com/user/meeting-voiceid/internal/capture/local"
	"github.com/user/meeting-voiceid/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "voiceid",
	Short:         "Identify meeting speakers by voice",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <id> <name>",
	Short: "Record a voice sample for a participant",
	Long: `Record a short voice sample and store its fingerprint.

The participant should speak normally for ENROLLMENT_SECONDS seconds.
Press Ctrl+C to abort without changing the stored profile.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, cfg *config.Config, svc *app.Service) error {
			return runEnroll(ctx, cfg, svc, args[0], args[1])
		})
	},
}

var listenStdin bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Announce speaker changes until interrupted",
	Long: `Listen continuously and print the name of each new speaker.

With --stdin, every line read from standard input is attributed to the
current speaker and saved with the speaker timeline.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, cfg *config.Config, svc *app.Service) error {
			return runListen(ctx, svc)
		})
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List stored voice profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(svc *app.Service) error {
			profiles := svc.ListVoiceProfiles()
			if len(profiles) == 0 {
				fmt.Println("No voice profiles.")
				return nil
			}
			for _, p := range profiles {
				if !p.Enrolled {
					fmt.Printf("%-16s %-24s not enrolled\n", p.ID, p.Name)
					continue
				}
				fmt.Printf("%-16s %-24s pitch %.0f Hz  enrolled %s\n",
					p.ID, p.Name, p.Features.AvgPitch, p.EnrolledAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Change a participant's display name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(svc *app.Service) error {
			profile, err := svc.RenameVoiceProfile(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", profile.ID, profile.Name)
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored voice profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(svc *app.Service) error {
			if err := svc.ClearVoiceProfiles(); err != nil {
				return err
			}
			fmt.Println("Cleared all voice profiles.")
			return nil
		})
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenStdin, "stdin", false, "attribute lines from stdin to the current speaker")

	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(clearCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

// withStore runs fn against the persisted profiles without opening any
// capture device.
func withStore(fn func(svc *app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.NewService(cfg, unavailableMicrophone{})
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

// withService runs fn with a live capture backend and shuts everything down
// on return or on SIGINT/SIGTERM.
func withService(fn func(ctx context.Context, cfg *config.Config, svc *app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mic, release, err := newMicrophone(cfg)
	if err != nil {
		return err
	}
	defer release()

	svc, err := app.NewService(cfg, mic)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx, cfg, svc)
	shutdown(svc)
	return runErr
}

func newMicrophone(cfg *config.Config) (audio.Microphone, func(), error) {
	switch cfg.CaptureBackend {
	case "discord":
		mic, err := discord.NewMicrophone(cfg.DiscordToken, cfg.DiscordGuildID, cfg.DiscordChannelID)
		if err != nil {
			return nil, nil, err
		}
		return mic, func() {
			if err := mic.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Discord session")
			}
		}, nil
	default:
		return local.NewMicrophone(), func() {}, nil
	}
}

type unavailableMicrophone struct{}

func (unavailableMicrophone) Open(context.Context, audio.StreamConfig) (audio.Stream, error) {
	return nil, errors.New("no capture backend for this command")
}

func shutdown(svc *app.Service) {
	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- svc.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		} else {
			log.Debug().Msg("Stopped gracefully")
		}
	case <-ctx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
	}
}

func runEnroll(ctx context.Context, cfg *config.Config, svc *app.Service, id, name string) error {
	if _, ok := svc.GetVoiceProfile(id); ok {
		if _, err := svc.RenameVoiceProfile(id, name); err != nil {
			return err
		}
	} else {
		svc.CreateVoiceProfile(id, name)
	}

	fmt.Printf("Recording %s for %d seconds, please speak now...\n", name, cfg.EnrollmentSeconds)
	err := svc.StartEnrollment(ctx, id, func(seconds float64) {
		fmt.Printf("\r  %.1fs", seconds)
	})
	if err != nil {
		return fmt.Errorf("failed to start enrollment: %w", err)
	}

	timer := time.NewTimer(cfg.EnrollmentDuration())
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		svc.CancelEnrollment()
		fmt.Println()
		return fmt.Errorf("enrollment aborted: %w", ctx.Err())
	}

	profile, err := svc.StopEnrollment(context.Background(), id)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to complete enrollment: %w", err)
	}

	fmt.Printf("Enrolled %s (pitch %.0f Hz, %d enrolled)\n", profile.Name, profile.Features.AvgPitch, svc.EnrolledCount())
	return nil
}

func runListen(ctx context.Context, svc *app.Service) error {
	started, err := svc.StartRealtimeIdentification(ctx, func(name string) {
		fmt.Printf("Speaker: %s\n", name)
	})
	if err != nil {
		return fmt.Errorf("failed to start identification: %w", err)
	}
	if !started {
		fmt.Println("No enrolled voices. Run 'voiceid enroll' first.")
		return nil
	}

	log.Info().Int("enrolled", svc.EnrolledCount()).Msg("Listening. Press Ctrl+C to exit.")

	if listenStdin {
		go readSegments(ctx, svc)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case <-svc.RealtimeDone():
		return errors.Join(errors.New("capture stream ended"), svc.StopRealtimeIdentification())
	}
	return svc.StopRealtimeIdentification()
}

func readSegments(ctx context.Context, svc *app.Service) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if seg, ok := svc.AddTranscriptSegment(scanner.Text()); ok {
			fmt.Printf("[%s] %s\n", seg.SpeakerName, seg.Text)
		}
	}
}
