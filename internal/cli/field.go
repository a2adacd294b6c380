package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openplace/pixelfield/internal/protocol"
)

func newFieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "field",
		Short: "Dump the current field state",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := NewClient(serverURL, nickname, userID).Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			// The server pushes a field_state snapshot right after login,
			// so the first matching message is the answer.
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				msg, err := session.Next(time.Until(deadline))
				if err != nil {
					return err
				}
				switch msg.Type {
				case protocol.TypeFieldState:
					return printFieldState(msg)
				case protocol.TypeError:
					return fmt.Errorf("rejected: %s", msg.Message)
				}
			}
			return fmt.Errorf("no field state within 5s")
		},
	}
}

func printFieldState(msg *ServerMessage) error {
	var state protocol.FieldStateData
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		return fmt.Errorf("malformed field state: %w", err)
	}
	fmt.Printf("%d pixels, %d selections\n", len(state.Pixels), len(state.Selections))
	for _, cell := range state.Pixels {
		fmt.Printf("  (%d,%d) %s by %s\n", cell.Position.X, cell.Position.Y, cell.Color, cell.Nickname)
	}
	for _, sel := range state.Selections {
		fmt.Printf("  %s selecting (%d,%d)\n", sel.Nickname, sel.Position.X, sel.Position.Y)
	}
	return nil
}
