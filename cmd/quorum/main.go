package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Multi-provider trading decision consensus engine",
	Long: `quorum 汇总多个决策来源的结论，经过校验、加权投票和否决规则后输出最终决策。

Examples:
  quorum serve
  quorum decide --symbols BTCUSDT,ETHUSDT --price 65000 --atr 900
  quorum events --symbol BTCUSDT --vetoed --limit 20`,
	SilenceUsage:      true,
	PersistentPreRunE: resolveConfigPath,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "配置文件路径（默认读取 QUORUM_CONFIG）")
}

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath 在 .env 加载之后读取 QUORUM_CONFIG，显式的 --config 优先。
func resolveConfigPath(cmd *cobra.Command, _ []string) error {
	if !cmd.Flags().Changed("config") {
		cfgPath = envOr("QUORUM_CONFIG", defaultConfigPath)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
