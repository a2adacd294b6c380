package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openplace/pixelfield/internal/protocol"
)

func newPaintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paint <x> <y> <color>",
		Short: "Paint one pixel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid x: %w", err)
			}
			y, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid y: %w", err)
			}
			color := args[2]

			session, err := NewClient(serverURL, nickname, userID).Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Send(protocol.TypeUpdatePixel, protocol.PixelWriteData{
				X: x, Y: y, Color: color,
			}); err != nil {
				return err
			}

			// The server pushes the initial snapshot and presence updates
			// before any reply to the write; wait for either our pixel echo
			// or an error.
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				msg, err := session.Next(time.Until(deadline))
				if err != nil {
					return err
				}
				switch msg.Type {
				case protocol.TypePixelUpdate:
					var update protocol.PixelBroadcast
					if json.Unmarshal(msg.Data, &update) == nil && update.X == x && update.Y == y {
						fmt.Printf("painted (%d,%d) %s as %s\n", x, y, update.Color, session.UserID)
						return nil
					}
				case protocol.TypeError:
					return fmt.Errorf("rejected: %s", msg.Message)
				}
			}
			return fmt.Errorf("no confirmation within 5s")
		},
	}
}
