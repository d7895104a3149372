package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cachewarden/cachewarden/internal/config"
	"github.com/cachewarden/cachewarden/internal/health"
	"github.com/cachewarden/cachewarden/pkg/retry"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's state",
	Long:  `Status queries the daemon's health endpoint and prints the controller state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://localhost:%d/status", cfg.Global.HealthPort)
		client := &http.Client{Timeout: 5 * time.Second}

		// The daemon may be mid-restart; give it a few tries.
		var st health.StatusResponse
		retryer := retry.New(retry.Config{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond})
		err = retryer.Do(func() error {
			resp, err := client.Get(url)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return json.NewDecoder(resp.Body).Decode(&st)
		})
		if err != nil {
			return fmt.Errorf("daemon not reachable at %s: %w", url, err)
		}

		if statusJSON {
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		c := st.Controller
		fmt.Printf("Phase:        %s\n", c.Phase)
		fmt.Printf("Auto-clean:   %v\n", c.Enabled)
		fmt.Printf("Metric:       %s", config.FormatSize(c.Metric))
		if c.Capacity > 0 {
			fmt.Printf(" of %s (%.1f%%)", config.FormatSize(c.Capacity),
				100*float64(c.Metric)/float64(c.Capacity))
		}
		fmt.Println()
		fmt.Printf("Thresholds:   start %s, stop %s\n",
			config.FormatSize(c.StartThreshold), config.FormatSize(c.StopThreshold))
		if !c.LastAction.IsZero() {
			fmt.Printf("Last cycle:   %s ago", time.Since(c.LastAction).Round(time.Second))
			if o := c.LastOutcome; o != nil {
				fmt.Printf(", reclaimed %s of %s", config.FormatSize(o.Reclaimed),
					config.FormatSize(o.AttemptedTarget))
				if o.Degraded {
					fmt.Printf(" (degraded)")
				}
			}
			fmt.Println()
		}
		if c.SampleErrors > 0 {
			fmt.Printf("Sample errors: %d\n", c.SampleErrors)
		}
		if st.LastUpdate != nil {
			fmt.Printf("Last status:  %s\n", st.LastUpdate.Message)
		}
		fmt.Printf("Uptime:       %s\n", (time.Duration(st.UptimeSecs) * time.Second).Round(time.Second))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON")
	rootCmd.AddCommand(statusCmd)
}
