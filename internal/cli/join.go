package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aashish-nayak/WatchTOgather/internal/config"
	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
	"github.com/aashish-nayak/WatchTOgather/internal/ui"
)

var (
	flagViewerDomain   string
	flagViewerServer   string
	flagViewerSTUN     string
	flagViewerTURN     string
	flagViewerTURNUser string
	flagViewerTURNPass string
	flagViewerName     string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a broadcast as a viewer",
	Long: `Join an existing room and watch the host's screen.

Examples:
  watch join cosmic-otter-matinee
  watch join https://watchtogether.fly.dev/w/cosmic-otter-matinee
  watch join movie-night --name bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return runJoin(roomID)
	},
}

func runJoin(roomID string) error {
	cfg, err := config.Load(config.Options{
		Domain:     flagViewerDomain,
		ServerURL:  flagViewerServer,
		STUNServer: flagViewerSTUN,
		TURNServer: flagViewerTURN,
		TURNUser:   flagViewerTURNUser,
		TURNPass:   flagViewerTURNPass,
	})
	if err != nil {
		return err
	}

	s := newSession(cfg, protocol.RoleViewer, roomID, flagViewerName)
	defer s.close()

	s.channel.Send(&protocol.Envelope{
		Type:     protocol.TypeJoinRoom,
		RoomID:   roomID,
		UserID:   s.userID,
		Username: s.username,
	})
	if err := s.waitReady(); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	ui.PrintSuccessf("Joined room %s, waiting for the broadcast...", roomID)
	fmt.Println()

	if err := s.runChat(); err != nil {
		return err
	}

	s.summary()
	return nil
}

func parseRoomInput(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "w" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagViewerName, "name", "n", "", "Display name in chat")
	joinCmd.Flags().StringVar(&flagViewerDomain, "domain", "", "Custom relay domain")
	joinCmd.Flags().StringVar(&flagViewerServer, "server", "", "Full relay websocket URL")
	joinCmd.Flags().StringVarP(&flagViewerSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagViewerTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagViewerTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagViewerTURNPass, "turn-pass", "", "TURN password")
}
