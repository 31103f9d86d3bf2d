package e2e

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"golang.org/x/crypto/bcrypt"

	"tripkey/internal/platform/config"
	"tripkey/internal/platform/logger"
	"tripkey/internal/server"
)

// joinLimit keeps the rate-limit scenario short.
const joinLimit = 5

var opts = godog.Options{
	Output: colors.Colored(os.Stdout),
	Format: "pretty",
	Paths:  []string{"features"},
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	opts.TestingT = t
	if os.Getenv("BASE_URL") != "" && opts.Tags == "" {
		// An external server has its own limits and shared counters.
		opts.Tags = "~@inprocess"
	}

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options:             &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := NewTestContext("")
	var (
		srv *httptest.Server
		app *server.App
	)

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		baseURL := os.Getenv("BASE_URL")
		if baseURL == "" {
			var err error
			app, err = newInProcessApp(ctx)
			if err != nil {
				return ctx, err
			}
			srv = httptest.NewServer(app.Handler)
			baseURL = srv.URL
		}
		*tc = *NewTestContext(baseURL)
		return ctx, nil
	})

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if err != nil {
			fmt.Printf("Scenario failed: %s\nLast Response: %s\n", s.Name, string(tc.LastResponseBody))
		}
		if srv != nil {
			srv.Close()
			srv = nil
		}
		if app != nil {
			app.Close(ctx)
			app = nil
		}
		return ctx, nil
	})

	RegisterSteps(sc, tc)
}

// newInProcessApp wires the full application on in-memory stores.
func newInProcessApp(ctx context.Context) (*server.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Environment = config.EnvDevelopment
	cfg.Session.SigningKey = config.DevSigningKey
	cfg.Session.Issuer = "tripkey"
	cfg.DatabaseURL = ""
	cfg.Redis.URL = ""
	cfg.Kafka.Brokers = nil
	cfg.PIN.HashCost = bcrypt.MinCost
	cfg.RateLimit.JoinMax = joinLimit
	return server.Build(ctx, cfg, logger.NewWithWriter(io.Discard, "error"))
}
