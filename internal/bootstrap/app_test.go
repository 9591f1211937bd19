package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/xray-diagnosis/internal/infra/config"
)

func TestRunShutsDownAndReleasesResources(t *testing.T) {
	cfg := &config.Config{HTTP: config.HTTPConfig{Address: "127.0.0.1:0"}}
	server := &http.Server{Addr: cfg.HTTP.Address, Handler: http.NotFoundHandler()}

	var order []string
	resources := NewResources()
	resources.Add(func() { order = append(order, "postgres") })
	resources.Add(nil)
	resources.Add(func() { order = append(order, "valkey") })

	app := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), server, resources)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	require.Equal(t, []string{"valkey", "postgres"}, order)
}
