package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Manage rooms on the media provider",
}

var roomCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := roomProvider()
		if err != nil {
			return err
		}
		room, err := p.CreateRoom(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), room)
	},
}

var roomJoinCmd = &cobra.Command{
	Use:   "join <name>",
	Short: "Join a room and print its descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := roomProvider()
		if err != nil {
			return err
		}
		room, err := p.JoinRoom(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), room)
	},
}

var roomValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Check whether a room exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := roomProvider()
		if err != nil {
			return err
		}
		if !p.ValidateRoom(cmd.Context(), args[0]) {
			return fmt.Errorf("room %q is not valid", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %q is valid\n", args[0])
		return nil
	},
}

var roomEndCmd = &cobra.Command{
	Use:   "end <name>",
	Short: "End a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := roomProvider()
		if err != nil {
			return err
		}
		if !p.EndRoom(cmd.Context(), args[0]) {
			return fmt.Errorf("could not end room %q", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %q ended\n", args[0])
		return nil
	},
}

var iceCmd = &cobra.Command{
	Use:   "ice",
	Short: "Print the ICE servers a call would use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), iceServers(cmd.Context()))
	},
}

func init() {
	roomCmd.AddCommand(roomCreateCmd, roomJoinCmd, roomValidateCmd, roomEndCmd)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
