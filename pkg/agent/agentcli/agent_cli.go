package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc"
	"github.com/neuroplastio/neio-xr/pkg/agent"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/profiles"
	"github.com/spf13/cobra"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "neio-xr"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type agentProvider func() *agent.Agent

func NewRootCmd(configDir string) *cobra.Command {
	cfg := agent.Config{
		DataDir:        filepath.Join(configDir, "data"),
		HeadsetConfig:  filepath.Join(configDir, "headset.yml"),
		ProfilesConfig: filepath.Join(configDir, "profiles.yml"),
	}
	agentCmd := &cobra.Command{
		Use:   "neio-xr",
		Short: "Neuroplast.io XR runtime",
		Long:  `neio-xr drives a headset backend and publishes poses and controller input to the engine.`,
	}
	var a *agent.Agent
	agentProvider := func() *agent.Agent {
		return a
	}
	agentCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	agentCmd.PersistentFlags().StringVar(&cfg.HeadsetConfig, "headset-config", cfg.HeadsetConfig, "headset config file")
	agentCmd.PersistentFlags().StringVar(&cfg.ProfilesConfig, "profiles-config", cfg.ProfilesConfig, "controller profile overrides file")
	agentCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = agent.NewAgent(cfg)
		return err
	}
	agentCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if a == nil {
			return nil
		}
		return a.Close()
	}
	agentCmd.AddCommand(NewRun(agentProvider))
	agentCmd.AddCommand(NewProfiles(agentProvider))
	agentCmd.AddCommand(NewResolveProfile(agentProvider))
	agentCmd.AddCommand(NewListControllers(agentProvider))
	return agentCmd
}

func NewRun(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the XR runtime",
		Long:  `Run the XR runtime until interrupted. The event mirror is served when configured in headset.yml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agent().Run(cmd.Context())
		},
	}
}

// layoutView is the printable form of a profiles.Layout.
type layoutView struct {
	Profile    string         `json:"profile"`
	Buttons    map[string]int `json:"buttons,omitempty"`
	Trigger    string         `json:"trigger,omitempty"`
	Grip       string         `json:"grip,omitempty"`
	Touchpad   []int          `json:"touchpad,omitempty"`
	Thumbstick []int          `json:"thumbstick,omitempty"`
}

func sourceString(s profiles.AnalogSource) string {
	switch s.Kind {
	case profiles.SourceButton:
		return fmt.Sprintf("button %d", s.Index)
	case profiles.SourceAxis:
		return fmt.Sprintf("axis %d", s.Index)
	}
	return ""
}

func axesView(p profiles.AxisPair) []int {
	if !p.Present {
		return nil
	}
	return []int{p.X, p.Y}
}

func newLayoutView(l profiles.Layout) layoutView {
	v := layoutView{
		Profile:    l.Profile.String(),
		Buttons:    make(map[string]int),
		Trigger:    sourceString(l.Trigger),
		Grip:       sourceString(l.Grip),
		Touchpad:   axesView(l.Touchpad),
		Thumbstick: axesView(l.Thumbstick),
	}
	for b := xrapi.Button(0); b < xrapi.ButtonCount; b++ {
		if idx, ok := l.Buttons.Lookup(b); ok {
			v.Buttons[b.String()] = idx
		}
	}
	return v
}

func printYAML(w io.Writer, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func NewProfiles(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [key]",
		Short: "Show controller profiles",
		Long:  `List controller profile keys, or print the layouts of one key with profiles.yml applied.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := agent().Profiles()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return printYAML(cmd.OutOrStdout(), reg.Keys())
			}
			layouts, ok := reg.Layouts(args[0])
			if !ok {
				return fmt.Errorf("unknown profile key %q", args[0])
			}
			views := make(map[string]layoutView, len(layouts))
			for hand, l := range layouts {
				views[hand.String()] = newLayoutView(l)
			}
			return printYAML(cmd.OutOrStdout(), views)
		},
	}
}

func NewResolveProfile(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-profile <id> [hand]",
		Short: "Resolve a controller id",
		Long:  `Resolve a controller id reported by a backend to the layout the runtime would bind.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hand := xrapi.HandNone
			if len(args) == 2 {
				var err error
				hand, err = xrapi.ParseHandedness(args[1])
				if err != nil {
					return err
				}
			}
			reg, err := agent().Profiles()
			if err != nil {
				return err
			}
			l, ok := reg.Resolve([]string{args[0]}, hand)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: pose only\n", args[0])
				return nil
			}
			return printYAML(cmd.OutOrStdout(), newLayoutView(l))
		},
	}
}

func NewListControllers(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-controllers",
		Short: "List seen controllers",
		Long:  `List controllers recorded by previous runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := agent().Store().List()
			if err != nil {
				return err
			}
			if records == nil {
				records = []headsetsvc.ControllerRecord{}
			}
			jsonB, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}
