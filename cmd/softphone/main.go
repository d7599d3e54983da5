package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-dialer/internal/dialer"
	"crm-dialer/internal/session"
	"crm-dialer/pkg/logger"
)

func main() {
	var (
		apiURL       = flag.String("api", "http://localhost:8080", "CRM API base URL")
		realtimeURL  = flag.String("realtime", "", "realtime session WebSocket URL")
		token        = flag.String("token", os.Getenv("CRM_ACCESS_TOKEN"), "CRM access token (default $CRM_ACCESS_TOKEN)")
		contactID    = flag.String("contact", "", "contact id attached to placed calls")
		projectID    = flag.String("project", "", "project id attached to placed calls")
		from         = flag.String("from", "", "default caller id")
		lang         = flag.String("lang", "", "transcription language, e.g. en-US")
		setupTimeout = flag.Duration("setup-timeout", 0, "hang up calls not answered within this duration (0 disables)")
		env          = flag.String("env", "local", "log level profile (local|dev|production)")
	)
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, "crm-softphone", *env)
	slog.SetDefault(log)

	if *realtimeURL == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "softphone: -realtime and -token are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := session.NewClient(session.DialWebSocket(*realtimeURL, http.Header{}, log), log)
	defer sess.Close()

	api := dialer.NewAPIClient(*apiURL, *token)
	con := newConsole(ctx, os.Stdout)
	m := dialer.New(sess, api, api, dialer.Options{
		ContactID:    *contactID,
		ProjectID:    *projectID,
		DefaultFrom:  *from,
		Language:     *lang,
		SetupTimeout: *setupTimeout,
		OnChange:     con.render,
		OnEnded: func(s dialer.Snapshot) {
			// Re-read the record so the final provider-reported fields show up.
			if s.CorrelationID == "" {
				return
			}
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rec, err := api.GetCall(rctx, s.CorrelationID); err == nil {
				con.printf("record %s: %s\n", rec.CallID, rec.Status)
			}
		},
		Logger: log,
	})
	con.m = m

	go m.Run(ctx)

	con.printf("softphone ready; type help\n")
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
		case line, ok := <-lines:
			if ok && !con.exec(line) {
				continue
			}
		}
		// Runs before the deferred sess.Close so the hangup is actually sent.
		if err := con.shutdown(hangupGrace); err != nil {
			log.Warn("exiting before hangup completed", "err", err)
		}
		return
	}
}

const hangupGrace = 3 * time.Second
