package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"quorum/internal/config"
	"quorum/internal/store/decisionlog"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent consensus events from the audit store",
	RunE:  runEvents,
}

var (
	eventsSymbol string
	eventsLimit  int
	eventsVetoed bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsSymbol, "symbol", "", "按交易对过滤")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "最多显示条数")
	eventsCmd.Flags().BoolVar(&eventsVetoed, "vetoed", false, "只显示被否决的记录")
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}
	if !cfg.Audit.Enabled {
		return fmt.Errorf("审计日志未启用 (audit.enabled=false)")
	}
	store, err := decisionlog.New(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), decisionlog.Query{
		Symbol:     eventsSymbol,
		VetoedOnly: eventsVetoed,
		Limit:      eventsLimit,
	})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCYCLE\tSYMBOL\tOUTCOME\tACTION\tCONF\tREASON")
	for _, e := range entries {
		reason := e.ReasonCode
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			time.UnixMilli(e.Timestamp).Format(time.DateTime),
			e.CycleID, e.Symbol, e.Outcome, e.Action, e.Confidence, reason)
	}
	return tw.Flush()
}
