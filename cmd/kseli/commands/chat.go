package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kseli/kseli-go/internal/session"
	"github.com/kseli/kseli-go/pkg/protocol"
)

// chatLoop reads stdin lines into the room and prints events until the
// session ends.
func chatLoop(cmd *cobra.Command, s *session.Session) error {
	defer s.End()

	done := make(chan protocol.CloseReason, 1)
	go func() {
		for event := range eventsUntilEnd(s, done) {
			switch event.Kind {
			case session.EventMessage:
				fmt.Printf("[%s]: %s\n", event.Message.Username, event.Message.Content)
			case session.EventJoin:
				fmt.Printf("* %s joined\n", event.Participant.Username)
			case session.EventLeave:
				fmt.Printf("* participant %d left\n", event.LeftID)
			case session.EventConflict:
				fmt.Printf("* another session of this profile is active in room %s\n", event.ConflictRoomID)
			}
		}
	}()

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	for {
		select {
		case reason := <-done:
			if msg := reason.Message(); msg != "" {
				fmt.Println(msg)
			}
			return nil

		case line, ok := <-input:
			if !ok || strings.TrimSpace(line) == "/quit" {
				s.End()
				fmt.Println("left the room")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := s.SendMessage(line); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
			}
		}
	}
}

// eventsUntilEnd relays session events and signals done when the session
// ends.
func eventsUntilEnd(s *session.Session, done chan<- protocol.CloseReason) <-chan session.Event {
	out := make(chan session.Event)
	go func() {
		defer close(out)
		for event := range s.Events() {
			if event.Kind == session.EventEnd {
				done <- event.Reason
				return
			}
			out <- event
		}
	}()
	return out
}
