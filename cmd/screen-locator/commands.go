package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	screenlocator "github.com/menta2k/screen-locator"
	"github.com/menta2k/screen-locator/internal/config"
	"github.com/menta2k/screen-locator/internal/utils"
	"github.com/menta2k/screen-locator/pkg/locator"
	"github.com/menta2k/screen-locator/pkg/processing"
	"github.com/menta2k/screen-locator/pkg/types"
)

var (
	taskID   string
	debugOut string
	kind     string
	button   string
	sides    int
	force    bool
)

var locateCmd = &cobra.Command{
	Use:   "locate <screenshot> <description>",
	Short: "Locate an element on a saved screenshot without clicking",
	Example: `  screen-locator locate screen.png "the blue Save button"
  screen-locator locate screen.png "search field" --debug-out debug.png`,
	Args: cobra.ExactArgs(2),
	RunE: runLocate,
}

var clickCmd = &cobra.Command{
	Use:   "click <description>",
	Short: "Screenshot the device, locate an element and click it",
	Example: `  screen-locator click "the close button"
  screen-locator click "file icon" --kind double --button left`,
	Args: cobra.ExactArgs(1),
	RunE: runClick,
}

var gridCmd = &cobra.Command{
	Use:   "grid <image> <output>",
	Short: "Draw the numbered marker grid over an image",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrid,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), screenlocator.GetVersion())
	},
}

func init() {
	locateCmd.Flags().StringVar(&taskID, "task-id", "", "task id for artifacts (default: random UUID)")
	locateCmd.Flags().StringVar(&debugOut, "debug-out", "", "write the screenshot annotated with every zoom box here")

	clickCmd.Flags().StringVar(&taskID, "task-id", "", "task id for artifacts (default: random UUID)")
	clickCmd.Flags().StringVar(&kind, "kind", string(types.ClickSingle), "click kind: single or double")
	clickCmd.Flags().StringVar(&button, "button", string(types.ButtonLeft), "mouse button: left, right or middle")

	gridCmd.Flags().IntVar(&sides, "sides", 0, "grid sides (default: from config)")

	configInitCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	if debugOut != "" {
		if err := checkOutput(debugOut); err != nil {
			return err
		}
	}
	sl, err := newScreenLocator()
	if err != nil {
		return err
	}
	img, err := sl.LoadImage(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	res, err := sl.Locate(ctx, taskID, img, args[1])
	if err != nil {
		return err
	}

	if debugOut != "" {
		format := processing.NormalizeFormat(utils.GetFileExtension(debugOut))
		if err := sl.SaveImage(sl.DebugOverlay(img, res), debugOut, format); err != nil {
			return fmt.Errorf("failed to save debug image: %w", err)
		}
	}
	return printResult(cmd.OutOrStdout(), res)
}

func runClick(cmd *cobra.Command, args []string) error {
	k, err := types.ParseClickKind(kind)
	if err != nil {
		return err
	}
	b, err := types.ParseMouseButton(button)
	if err != nil {
		return err
	}

	sl, err := newScreenLocator()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	res, err := sl.Click(ctx, taskID, args[0], k, b)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}

func runGrid(cmd *cobra.Command, args []string) error {
	if err := checkOutput(args[1]); err != nil {
		return err
	}
	sl, err := newScreenLocator()
	if err != nil {
		return err
	}
	img, err := sl.LoadImage(args[0])
	if err != nil {
		return err
	}
	out, err := sl.RenderGrid(img, sides)
	if err != nil {
		return err
	}
	if err := sl.SaveImage(out, args[1], processing.NormalizeFormat(utils.GetFileExtension(args[1]))); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Grid written to %s\n", args[1])
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GetConfigPath()
	if len(args) == 1 {
		path = args[0]
	}
	if utils.FileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
	return nil
}

// checkOutput rejects output paths whose extension has no encoder
func checkOutput(path string) error {
	if !utils.IsImageFile(path) {
		return fmt.Errorf("%s: output must end in .png, .jpg, .jpeg or .webp", path)
	}
	return nil
}

func printResult(w io.Writer, res locator.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
