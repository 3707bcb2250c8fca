package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kseli/kseli-go/internal/session"
)

// join <roomID>: enter an existing room with the invite credentials.
func joinCmd() *cobra.Command {
	var username, secret, key string

	cmd := &cobra.Command{
		Use:   "join <roomID>",
		Short: "Join an existing chat room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := session.New(appCfg, session.WithLogger(logger), session.WithBus(bus))
			if err != nil {
				return err
			}

			room, err := s.Join(cmd.Context(), args[0], username, secret, key)
			if err != nil {
				return err
			}

			fmt.Printf("joined room %s as %s (%d/%d participants). /quit to leave.\n",
				args[0], s.Username(), len(room.Participants), room.MaxParticipants)

			return chatLoop(cmd, s)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "your display name")
	cmd.Flags().StringVar(&secret, "secret", "", "room invite secret")
	cmd.Flags().StringVar(&key, "key", "", "room encryption key")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
