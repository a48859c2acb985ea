package main

import (
	"github.com/spf13/cobra"

	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

type stateView struct {
	DeviceID string         `json:"device_id"`
	State    registry.State `json:"state"`
}

func (c *cli) stateCmd() *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show or set a device's operational state",
	}
	cmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "", "device ID (optional with a single device)")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the active state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLine(cmd, func(l *line) error {
				st, err := l.station(deviceID)
				if err != nil {
					return err
				}
				state, err := st.device.State()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stateView{DeviceID: st.cfg.ID, State: state})
			})
		},
	}

	set := &cobra.Command{
		Use:       "set STATE",
		Short:     "Set the active state (Idle, Active or Error)",
		Long:      "Set the active state. Setting Idle is how an operator clears an Error.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(registry.StateIdle), string(registry.StateActive), string(registry.StateError)},
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := registry.ParseState(args[0])
			if err != nil {
				return err
			}
			return c.withLine(cmd, func(l *line) error {
				st, err := l.station(deviceID)
				if err != nil {
					return err
				}
				if err := st.device.SetState(state); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stateView{DeviceID: st.cfg.ID, State: state})
			})
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
