// Command pushengine runs the engine against a console "tray" for local
// testing. Payloads arrive through the configured transport or as JSON lines
// on stdin; "click <tag>" and "close <tag>" lines simulate user interaction.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bew090/projectlocker/pkg/pushengine"
)

func main() {
	var cfgPath, metricsAddr string
	flag.StringVar(&cfgPath, "config", "./engine.yaml", "path to config (json or yaml)")
	flag.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	tray := &consoleTray{}
	eng, err := pushengine.NewFromFile(cfgPath, pushengine.Deps{
		Display:    tray,
		Windows:    tray,
		Registerer: reg,
		OnFatal: func(err error) {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			cancel()
		},
	})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := eng.Init(ctx); err != nil {
		fmt.Println("fatal init:", err)
		os.Exit(1)
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintln(os.Stderr, "metrics:", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	go readStdin(ctx, eng)

	<-ctx.Done()
	stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := eng.Shutdown(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
}

func readStdin(ctx context.Context, eng *pushengine.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "click":
			fmt.Println("click:", eng.OnClick(ctx, strings.TrimSpace(arg)))
		case "close":
			tr := eng.OnClose(ctx, strings.TrimSpace(arg))
			fmt.Printf("close: changed=%v removed=%v\n", tr.Changed, tr.Removed)
		case "records":
			for _, r := range eng.Records() {
				fmt.Printf("  %s gen=%d state=%s title=%q\n", r.Intent.Tag, r.Generation, r.State, r.Intent.Title)
			}
		default:
			d, err := eng.OnTransportMessage(ctx, []byte(line))
			if err != nil {
				fmt.Println("rejected:", err)
				continue
			}
			fmt.Println("admitted:", d)
		}
	}
}

// consoleTray prints display and window calls.
type consoleTray struct{}

func (consoleTray) Show(_ context.Context, req pushengine.Request) error {
	fmt.Printf("[show] %s: %s | %s (target %s)\n", req.Tag, req.Title, req.Body, req.Data["targetUrl"])
	return nil
}

func (consoleTray) Close(_ context.Context, tag string) error {
	fmt.Printf("[close] %s\n", tag)
	return nil
}

func (consoleTray) List(context.Context) ([]pushengine.Window, error) { return nil, nil }

func (consoleTray) Focus(_ context.Context, id string) error {
	fmt.Printf("[focus] %s\n", id)
	return nil
}

func (consoleTray) Open(_ context.Context, url string) error {
	fmt.Printf("[open] %s\n", url)
	return nil
}
