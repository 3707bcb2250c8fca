package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kseli/kseli-go/internal/session"
)

// create: open a new room and chat in it until it ends.
func createCmd() *cobra.Command {
	var username string
	var maxParticipants int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a chat room and wait for participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := session.New(appCfg, session.WithLogger(logger), session.WithBus(bus))
			if err != nil {
				return err
			}

			room, err := s.Create(cmd.Context(), username, maxParticipants)
			if err != nil {
				return err
			}

			fmt.Printf("room %s created (max %d participants)\n", s.RoomID(), room.MaxParticipants)
			fmt.Printf("invite secret: %s\n", room.SecretKey)
			fmt.Printf("encryption key: %s\n", s.KeyMaterial())
			fmt.Println("share the room id, secret, and key with invitees. /quit to leave.")

			return chatLoop(cmd, s)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "your display name")
	cmd.Flags().IntVar(&maxParticipants, "max", 5, "maximum number of participants")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
