package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one poll cycle and print the ranking",
	Long: `Fetches one market snapshot, ranks it and prints sectors, candidates and
the picks the session gates would record at that time.

Example:
  go run ./cmd/tailgame scan
  go run ./cmd/tailgame scan --at 14:30 --top 5`,
	RunE: runScan,
}

var (
	scanAt  string
	scanTop int
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanAt, "at", "", "simulate today's clock at HH:MM")
	scanCmd.Flags().IntVar(&scanTop, "top", 10, "candidates to print")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(true)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var dash *contracts.Dashboard
	if scanAt != "" {
		hm, err := calendar.ParseHM(scanAt)
		if err != nil {
			return err
		}
		dash, err = a.engine.Simulate(ctx, hm.Hour, hm.Minute)
		if err != nil {
			return err
		}
	} else {
		dash, err = a.engine.Cycle(ctx)
		if err != nil {
			return err
		}
	}

	printDashboardHeader(dash)
	if dash.Error != "" {
		PrintError(dash.Error)
	}
	if len(dash.Sectors) > 0 {
		fmt.Println()
		renderSectors(dash.Sectors)
	}
	if len(dash.Candidates) > 0 {
		fmt.Println()
		renderCandidates(dash.Candidates, scanTop)
	}
	fmt.Println()
	printPicks(dash)
	return nil
}

func printDashboardHeader(dash *contracts.Dashboard) {
	PrintDoubleSeparator()
	fmt.Printf("  尾盘博弈  %s  %s\n", dash.Now.Format("2006-01-02 15:04:05"), dash.Period)
	PrintSeparator()
	PrintKeyValue("状态", fmt.Sprintf("%s (%s)", dash.StatusLabel, dash.Source), 8)
	PrintKeyValue("阶段", dash.Phase, 8)
	PrintKeyValue("市场", fmt.Sprintf("%d 只 / 过滤后 %d 只", dash.Market.Total, dash.Market.Filtered), 8)
	PrintKeyValue("选股池", dash.PoolSector, 8)
	if dash.WeightWarning != "" {
		PrintKeyValue("权重", dash.WeightWarning, 8)
	}
	PrintDoubleSeparator()
}

func renderSectors(sectors []contracts.SectorStrength) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"板块", "平均涨幅", "成交额(亿)", "资金占比", "数量", "强度"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range sectors {
		table.Append([]string{
			s.Industry,
			fmt.Sprintf("%+.2f%%", s.AvgChangePct),
			fmt.Sprintf("%.2f", s.TotalAmount/1e8),
			fmt.Sprintf("%.1f%%", s.CapitalShare*100),
			strconv.Itoa(s.Count),
			fmt.Sprintf("%.1f", s.Strength),
		})
	}
	table.Render()
}

func renderCandidates(candidates []contracts.ScoredStock, top int) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "代码", "名称", "涨幅", "成交额(亿)", "换手", "量比", "得分", "风险"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, c := range candidates {
		if top > 0 && i >= top {
			break
		}
		row := []string{
			strconv.Itoa(c.Rank),
			c.Code,
			c.Name,
			fmt.Sprintf("%+.2f%%", c.ChangePct),
			fmt.Sprintf("%.2f", c.Amount/1e8),
			fmt.Sprintf("%.2f", c.TurnoverRate),
			fmt.Sprintf("%.2f", c.VolumeRatio),
			fmt.Sprintf("%.3f", c.RiskAdjusted),
			fmt.Sprintf("%.3f", c.RiskPenalty),
		}
		if i == 0 {
			table.Rich(row, []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgRedColor}})
			continue
		}
		table.Append(row)
	}
	table.Render()
}

func printPicks(dash *contracts.Dashboard) {
	if p := dash.FirstPick; p != nil {
		PrintSuccess(fmt.Sprintf("首次推荐 %s %s %+.2f%% @ %s", p.Code, p.Name, p.ChangePct, p.Time.Format("15:04:05")))
		if dash.Advice != "" {
			PrintInfo(dash.Advice)
		}
	} else {
		PrintInfo(fmt.Sprintf("首次推荐窗口 %s-%s", dash.Windows.FirstStart, dash.Windows.FirstEnd))
	}
	if p := dash.FinalPick; p != nil {
		PrintSuccess(fmt.Sprintf("🔒 最终锁定 %s %s %+.2f%%", p.Code, p.Name, p.ChangePct))
		if dash.Plan != nil {
			PrintKeyValue("仓位", dash.Plan.Position, 6)
			PrintKeyValue("止损", fmt.Sprintf("%.1f%%", dash.Plan.StopLoss), 6)
			PrintKeyValue("提示", dash.Plan.Note, 6)
		}
	} else {
		PrintInfo(fmt.Sprintf("最终锁定时间 %s", dash.Windows.LockAt))
	}
}
