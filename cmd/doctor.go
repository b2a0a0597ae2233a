package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/holdfast/internal/config"
	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

func doctorCmd() *cobra.Command {
	var launch bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), launch)
		},
	}
	cmd.Flags().BoolVar(&launch, "launch", false, "also launch the browser and open a blank page")
	return cmd
}

func runDoctor(ctx context.Context, launch bool) {
	fmt.Println("holdfast doctor")
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Browser:")
	checkBrowserBinary()
	fmt.Printf("    Headless:  %v\n", cfg.Driver.Headless)

	fmt.Println()
	fmt.Println("  Artifacts:")
	checkArtifactsDir(cfg.Driver.ArtifactsDir)

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Enabled {
		fmt.Printf("    Enabled, OTLP endpoint %s\n", cfg.Telemetry.OTLPEndpoint)
	} else {
		fmt.Println("    Disabled")
	}

	fmt.Println()
	s := cfg.Settings()
	fmt.Println("  Timing profile:")
	fmt.Printf("    Default timeout:    %s\n", s.DefaultTimeout)
	fmt.Printf("    Poll interval:      %s\n", s.PollInterval)
	fmt.Printf("    Recovery attempts:  %d\n", s.MaxRecoveryAttempts)
	fmt.Printf("    Refresh on flaky:   %v\n", s.RefreshOnFlaky)

	if launch {
		fmt.Println()
		fmt.Println("  Launch check:")
		checkLaunch(ctx, cfg.Driver.Headless)
	}
}

// checkLaunch boots the browser, opens a blank page and reads its URL
// back through the full adapter path.
func checkLaunch(ctx context.Context, headless bool) {
	drv := driver.NewRod(driver.WithHeadless(headless))
	if err := drv.Start(ctx); err != nil {
		fmt.Printf("    Launch:    FAILED (%s)\n", err)
		return
	}
	defer drv.Close()

	if err := drv.Navigate(ctx, "about:blank"); err != nil {
		fmt.Printf("    Navigate:  FAILED (%s)\n", err)
		return
	}
	url, err := drv.CurrentURL(ctx)
	if err != nil {
		fmt.Printf("    Page info: FAILED (%s)\n", err)
		return
	}
	fmt.Printf("    Browser:   OK (%s)\n", url)
}

// checkBrowserBinary looks for a Chromium-family browser on PATH. The
// rod launcher can also download its own, so absence is a note, not a
// failure.
func checkBrowserBinary() {
	candidates := []string{
		"google-chrome", "google-chrome-stable", "chromium", "chromium-browser",
		"msedge", "brave-browser",
	}
	for _, bin := range candidates {
		if path, err := exec.LookPath(bin); err == nil {
			fmt.Printf("    Binary:    %s (OK)\n", path)
			return
		}
	}
	fmt.Println("    Binary:    none on PATH (launcher will download one)")
}

func checkArtifactsDir(dir string) {
	if dir == "" {
		fmt.Println("    Disabled (no artifacts_dir)")
		return
	}
	fmt.Printf("    Dir:       %s", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
		return
	}
	fmt.Println(" (OK)")
}
