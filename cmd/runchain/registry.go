package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

func (c *cli) registryCmd() *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:     "registry",
		Aliases: []string{"reg"},
		Short:   "Inspect and edit a device's service registry",
	}
	cmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "", "device ID (optional with a single device)")

	// onStore runs fn against the registry of the selected device.
	onStore := func(cmd *cobra.Command, fn func(l *line, st *station) error) error {
		return c.withLine(cmd, func(l *line) error {
			st, err := l.station(deviceID)
			if err != nil {
				return err
			}
			return fn(l, st)
		})
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onStore(cmd, func(_ *line, st *station) error {
				services, err := st.registry.List()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), services)
			})
		},
	}

	query := &cobra.Command{
		Use:   "query NAME",
		Short: "Show one service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return onStore(cmd, func(_ *line, st *station) error {
				d, err := st.registry.Query(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}

	var desc registry.ServiceDescriptor
	descriptorFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&desc.Input, "input", "", "input parameter description")
		cmd.Flags().StringVar(&desc.Output, "output", "", "output description")
		cmd.Flags().StringVar(&desc.DriverFunction, "driver-function", "", "driver function implementing the service")
		cmd.Flags().StringVar(&desc.Effector, "effector", "", "effector used by the service")
	}

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return onStore(cmd, func(_ *line, st *station) error {
				desc.Name = args[0]
				if err := st.registry.Add(desc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s\n", desc.Name, st.cfg.ID)
				return nil
			})
		},
	}
	descriptorFlags(add)

	configure := &cobra.Command{
		Use:   "configure NAME",
		Short: "Replace the attributes of an existing service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return onStore(cmd, func(_ *line, st *station) error {
				desc.Name = args[0]
				if err := st.registry.Configure(desc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configured %s on %s\n", desc.Name, st.cfg.ID)
				return nil
			})
		},
	}
	descriptorFlags(configure)

	remove := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a service",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return onStore(cmd, func(_ *line, st *station) error {
				if err := st.registry.Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", args[0], st.cfg.ID)
				return nil
			})
		},
	}

	push := &cobra.Command{
		Use:   "push",
		Short: "Publish the registry document on the value channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onStore(cmd, func(l *line, st *station) error {
				data, err := st.registry.Export()
				if err != nil {
					return err
				}
				addr := l.registryAddress(st.cfg.ID)
				if err := l.channel.WriteBlob(cmd.Context(), addr, data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pushed %d bytes to %s\n", len(data), addr)
				return nil
			})
		},
	}

	pull := &cobra.Command{
		Use:   "pull",
		Short: "Replace the registry document with the one on the value channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onStore(cmd, func(l *line, st *station) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), l.cfg.ValueChannel.ReadTimeout)
				defer cancel()
				addr := l.registryAddress(st.cfg.ID)
				data, err := l.channel.ReadBlob(ctx, addr)
				if err != nil {
					return err
				}
				if err := st.registry.Import(data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pulled %d bytes from %s\n", len(data), addr)
				return nil
			})
		},
	}

	cmd.AddCommand(list, query, add, configure, remove, push, pull)
	return cmd
}
