package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aashish-nayak/WatchTOgather/internal/config"
	"github.com/aashish-nayak/WatchTOgather/internal/protocol"
	"github.com/aashish-nayak/WatchTOgather/internal/roomid"
	"github.com/aashish-nayak/WatchTOgather/internal/ui"
)

var (
	flagDomain   string
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRoom     string
	flagName     string
)

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Start a broadcast and invite viewers",
	Long: `Start sharing your screen in a new room. Viewers join with the room ID.

Examples:
  watch host
  watch host --room movie-night
  watch host --name alice --domain relay.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost()
	},
}

func runHost() error {
	cfg, err := config.Load(config.Options{
		Domain:     flagDomain,
		ServerURL:  flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
	if err != nil {
		return err
	}

	roomID := flagRoom
	if roomID == "" {
		roomID = roomid.Generate()
	}

	s := newSession(cfg, protocol.RoleHost, roomID, flagName)
	defer s.close()

	src, err := broadcastSource()
	if err != nil {
		return fmt.Errorf("prepare broadcast source: %w", err)
	}
	s.manager.StartSharing(src)

	s.channel.Send(&protocol.Envelope{
		Type:     protocol.TypeCreateRoom,
		RoomID:   roomID,
		UserID:   s.userID,
		Username: s.username,
	})
	if err := s.waitReady(); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	info := ui.RoomInfo{RoomID: roomID}
	info.Render()
	fmt.Println()

	if err := s.runChat(); err != nil {
		return err
	}

	s.summary()
	return nil
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room ID to create (random when omitted)")
	hostCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name in chat")
	hostCmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Custom relay domain")
	hostCmd.Flags().StringVar(&flagServer, "server", "", "Full relay websocket URL")
	hostCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	hostCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	hostCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	hostCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
}
