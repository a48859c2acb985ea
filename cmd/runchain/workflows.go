package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nothineazi/robotic-chain-control/internal/api"
	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/workflow"
)

func (c *cli) buildCmd() *cobra.Command {
	var (
		targetsPath string
		preDelay    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the targets on the vision cell and hand off to the conveyor cell",
		Long: `Build places every target of the targets file on the next build slot,
retrying each until it is placed, then moves the finished build to the
conveyor cell. The targets file lists each target as "name:" followed by
"shape:" and "color:" lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLine(cmd, func(l *line) error {
				path := targetsPath
				if path == "" {
					path = l.cfg.Workflow.TargetsFile
				}
				if path == "" {
					return fmt.Errorf("no targets: pass --targets or set workflow.targets_file")
				}
				targets, err := workflow.LoadTargets(path)
				if err != nil {
					return err
				}
				b, err := l.newBuild(targets)
				if err != nil {
					return err
				}

				delay := l.cfg.Workflow.PreDelay
				if cmd.Flags().Changed("pre-delay") {
					delay = preDelay
				}
				task, err := l.sequencer.StartBuild(b, delay)
				if err != nil {
					return err
				}
				l.log.Info("build started", "task_id", task.ID(), "device_id", task.Device(), "targets", len(targets), "pre_delay", delay)

				rep, err := task.Wait(cmd.Context())
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), api.NewBuildView(task)); err != nil {
					return err
				}
				if !rep.OK() {
					return fmt.Errorf("build %s %s: %s", task.ID(), rep.Status, rep.ErrorText())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&targetsPath, "targets", "t", "", "targets file (default workflow.targets_file)")
	cmd.Flags().DurationVar(&preDelay, "pre-delay", 0, "wait before the first action (default workflow.pre_delay)")
	return cmd
}

// linearCmd runs a single-device workflow built by mk on --device, or on
// the first device with role when --device is empty.
func (c *cli) linearCmd(use, short, role string, mk func(st *station, svc workflow.Services, det *capability.Detection) (workflow.Linear, error)) *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLine(cmd, func(l *line) error {
				st := l.firstWithRole(role)
				if deviceID != "" {
					var err error
					if st, err = l.station(deviceID); err != nil {
						return err
					}
				}
				if st == nil {
					return fmt.Errorf("no %s device configured", role)
				}

				var det capability.Detection
				wf, err := mk(st, l.services(), &det)
				if err != nil {
					return err
				}
				wf.Logger = l.log
				rep := wf.Run(cmd.Context())

				var detection *capability.Detection
				if role == "vision" {
					detection = &det
				}
				if err := printJSON(cmd.OutOrStdout(), api.NewWorkflowView(st.cfg.ID, rep, detection)); err != nil {
					return err
				}
				if !rep.OK() {
					return fmt.Errorf("%s %s: %s", rep.Workflow, rep.Status, rep.ErrorText())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "device ID (default first "+role+" device)")
	return cmd
}

func (c *cli) pickReplaceCmd() *cobra.Command {
	return c.linearCmd("pick-replace", "Load a piece, look at it, pick it with vision and put it back", "vision",
		func(st *station, svc workflow.Services, det *capability.Detection) (workflow.Linear, error) {
			if st.vision == nil {
				return workflow.Linear{}, fmt.Errorf("device %s has no vision cell", st.cfg.ID)
			}
			return workflow.PickReplace(st.device, st.vision, svc, func(d capability.Detection) { *det = d }), nil
		})
}

func (c *cli) visionTestCmd() *cobra.Command {
	return c.linearCmd("vision-test", "Run one gated detection", "vision",
		func(st *station, svc workflow.Services, det *capability.Detection) (workflow.Linear, error) {
			if st.vision == nil {
				return workflow.Linear{}, fmt.Errorf("device %s has no vision cell", st.cfg.ID)
			}
			return workflow.VisionTest(st.device, st.vision, svc, func(d capability.Detection) { *det = d }), nil
		})
}

func (c *cli) feedCmd() *cobra.Command {
	var shape, color string
	cmd := c.linearCmd("feed", "Have the conveyor cell drop a stored piece on the vision cell's ramp", "conveyor",
		func(st *station, svc workflow.Services, _ *capability.Detection) (workflow.Linear, error) {
			if st.conveyor == nil {
				return workflow.Linear{}, fmt.Errorf("device %s has no conveyor cell", st.cfg.ID)
			}
			s, err := capability.ParseShape(shape)
			if err != nil {
				return workflow.Linear{}, err
			}
			co, err := capability.ParseColor(color)
			if err != nil {
				return workflow.Linear{}, err
			}
			return workflow.Feed(st.device, st.conveyor, svc, s, co), nil
		})
	cmd.Flags().StringVar(&shape, "shape", "", "piece shape (square, circle)")
	cmd.Flags().StringVar(&color, "color", "", "piece color (red, green, blue)")
	return cmd
}
