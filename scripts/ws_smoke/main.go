// Command ws_smoke is a manual smoke test: it logs in, opens the push
// channel, joins a project and prints every event it receives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskwire/taskwire-server/internal/log"
	"github.com/taskwire/taskwire-server/pkg/taskwire"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
		username  = flag.String("user", "smoke", "username")
		password  = flag.String("pass", "smoke123", "password")
		projectID = flag.Int64("project", 0, "project ID to watch")
	)
	flag.Parse()

	logger := log.New("debug")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := taskwire.Login(ctx, *baseURL, *username, *password)
	if err != nil {
		token, err = taskwire.Register(ctx, *baseURL, *username, *password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "auth failed: %v\n", err)
			os.Exit(1)
		}
	}

	bus := taskwire.NewBus(logger)
	for _, kind := range []taskwire.EventKind{
		taskwire.EventTaskCreated,
		taskwire.EventTaskUpdated,
		taskwire.EventTaskDeleted,
		taskwire.EventProjectUpdated,
		taskwire.EventProjectDeleted,
		taskwire.EventMemberAdded,
		taskwire.EventMemberRemoved,
	} {
		k := kind
		bus.On(k, func(e *taskwire.Event) {
			logger.Info().Str("kind", string(k)).Int64("project_id", e.ProjectID()).Msg("event")
		})
	}

	conn, err := taskwire.Dial(ctx, *baseURL, token, bus, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if *projectID > 0 {
		if err := conn.JoinProject(*projectID); err != nil {
			fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
			os.Exit(1)
		}
		logger.Info().Int64("project_id", *projectID).Msg("joined, waiting for events")
	}

	<-ctx.Done()
}
