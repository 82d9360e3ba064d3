package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/brandpulse/internal/poller"
	"github.com/sells-group/brandpulse/internal/session"
	"github.com/sells-group/brandpulse/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch <subject-id>...",
	Short: "Follow subjects until their pipeline round completes",
	Long:  "Polls each subject, triggers the domain-readiness audit and recommendations when their prerequisites finish, and streams the audit into the local history.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := initClient()
		if err != nil {
			return err
		}

		var st store.Store
		if save, _ := cmd.Flags().GetBool("save"); save {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		p := newPoller(client)
		defer p.Close()
		manager := session.NewManager(ctx, client, p, sessionOptions(st)...)
		defer manager.Close()

		var printMu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, subjectID := range args {
			g.Go(func() error {
				return watchSubject(gctx, manager, p, subjectID, func(line string) {
					printMu.Lock()
					defer printMu.Unlock()
					fmt.Fprintln(os.Stdout, line)
				})
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		zap.L().Info("watch complete", zap.Strings("subjects", args))
		return nil
	},
}

// watchSubject starts the subject's session and prints every update until
// the round completes or ctx ends.
func watchSubject(ctx context.Context, manager *session.Manager, p *poller.Poller, subjectID string, printLine func(string)) error {
	if _, err := manager.Get(subjectID); err != nil {
		return err
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := p.Subscribe(subjectID, func(u poller.Update) {
		printLine(formatUpdate(u))
		if u.IsComplete {
			once.Do(func() { close(done) })
		}
	})
	defer unsubscribe()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func init() {
	watchCmd.Flags().Bool("save", true, "save completed audits to the local history store")
	rootCmd.AddCommand(watchCmd)
}
