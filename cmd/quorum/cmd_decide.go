package main

import (
	"encoding/json"
	"fmt"
	"time"

	"quorum/internal/app"
	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/decision"

	"github.com/spf13/cobra"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one consensus round and print the JSON response",
	Long: `对给定交易对执行一轮共识决策（不启动 HTTP），结果以 JSON 输出到 stdout。

Examples:
  quorum decide --symbols BTCUSDT
  quorum decide --symbols btc/usdt,ETH-USDT --price 3200 --atr 45 --cycle-id manual-1`,
	RunE: runDecide,
}

var (
	decideSymbols []string
	decidePrice   float64
	decideATR     float64
	decideCycleID string
)

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringSliceVar(&decideSymbols, "symbols", nil, "交易对列表，逗号分隔")
	decideCmd.Flags().Float64Var(&decidePrice, "price", 0, "当前价格（用于动态阈值）")
	decideCmd.Flags().Float64Var(&decideATR, "atr", 0, "ATR 波动率提示，0 表示不提供")
	decideCmd.Flags().StringVar(&decideCycleID, "cycle-id", "", "决策周期 ID，留空自动生成")
	_ = decideCmd.MarkFlagRequired("symbols")
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}
	shutdown, err := startTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdown()

	a, err := app.NewApp(cfg, app.WithoutHTTP())
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	defer a.Close()

	snap := decision.Snapshot{Price: decidePrice, Timestamp: time.Now()}
	if decideATR > 0 {
		atr := decideATR
		snap.ATR = &atr
	}
	resp := a.Engine().Decide(cmd.Context(), consensus.Request{
		Symbols:  decideSymbols,
		Snapshot: snap,
		CycleID:  decideCycleID,
	})
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
