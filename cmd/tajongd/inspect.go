package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tajong-backend/internal/model"
	"tajong-backend/internal/parse"
	"tajong-backend/internal/scheduler"
	"tajong-backend/internal/store"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next bell without starting the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, gormDB, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		s := store.NewGormStore(gormDB)
		ledger := scheduler.NewLedger(s, 0)
		resolver := scheduler.NewResolver(s, ledger, cfg.Scheduler.LookaheadDays, log)
		now := time.Now().In(cfg.Scheduler.Location)
		ev, err := resolver.Resolve(cmd.Context(), now)
		if err != nil {
			return err
		}
		if ev == nil {
			fmt.Println("no upcoming bell")
			return nil
		}
		paused, err := ledger.IsPausedDay(cmd.Context(), parse.DayKey(now))
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  (%s, volume %.2f)\n", ev.RunAt.Format("2006-01-02 15:04"), ev.Name, ev.SoundName, ev.Volume)
		fmt.Printf("in %s\n", parse.FormatRemaining(int64(ev.RunAt.Sub(now)/time.Second)))
		if paused {
			fmt.Println("today is paused")
		}
		return nil
	},
}

var (
	logsLimit  int
	logsResult string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent firing decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, gormDB, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		filter := store.LogFilter{Limit: logsLimit}
		if logsResult != "" {
			filter.Result = model.Result(strings.ToUpper(logsResult))
		}
		logs, err := store.NewGormStore(gormDB).ListLogs(cmd.Context(), filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tRESULT\tSCHEDULE\tSOUND\tDETAIL")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				l.OccurredAt.In(cfg.Scheduler.Location).Format("2006-01-02 15:04:05"),
				l.Result, l.ScheduleName, l.SoundName, l.Detail)
		}
		return w.Flush()
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "number of entries")
	logsCmd.Flags().StringVarP(&logsResult, "result", "r", "", "only PLAYED, MISSED, SKIPPED or FAILED")
}
