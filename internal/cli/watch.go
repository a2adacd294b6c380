package cli

import (
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live canvas events to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := NewClient(serverURL, nickname, userID).Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			for {
				msg, err := session.Next(0)
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return err
				}
				if msg.Message != "" {
					fmt.Printf("%s: %s\n", msg.Type, msg.Message)
					continue
				}
				fmt.Printf("%s: %s\n", msg.Type, string(msg.Data))
			}
		},
	}
}
