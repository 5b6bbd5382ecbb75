// transportd runs one node's transport endpoint as a standalone process: a
// UDP driver bound to -listen, a dispatch loop ticking the transport, and
// (unless the embedder wants a real service on top) an echo request handler
// so the daemon is independently useful for smoke-testing a deployment.
// Grounded on strand-cloud/cmd/strand-cloud/main.go's flag/store/signal
// wiring style.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/strand-protocol/strand-transport/pkg/config"
	"github.com/strand-protocol/strand-transport/pkg/dispatch"
	"github.com/strand-protocol/strand-transport/pkg/driver/udp"
	"github.com/strand-protocol/strand-transport/pkg/locator"
	"github.com/strand-protocol/strand-transport/pkg/rpc"
	"github.com/strand-protocol/strand-transport/pkg/telemetry"
	"github.com/strand-protocol/strand-transport/pkg/transport"
)

func main() {
	listen := flag.String("listen", ":7100", "UDP address to listen on")
	configPath := flag.String("config", "", "path to config YAML (default ~/.strand-transport/config.yaml)")
	clientID := flag.Uint64("client-id", 0, "this node's client identifier for outgoing RPCs (0 picks the process ID)")
	tickInterval := flag.Duration("tick", time.Millisecond, "dispatch poll interval")
	registerName := flag.String("register-name", "", "if set, publish this node's address under this name in etcd")
	etcdEndpoints := flag.String("etcd-endpoints", "", "comma-separated etcd endpoints, required with -register-name")
	adminAddr := flag.String("admin-addr", "", "if set, serve a JSON introspection snapshot for transportctl on this HTTP address")
	flag.Parse()

	logger, err := telemetry.New()
	if err != nil {
		log.Fatalf("transportd: build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush on exit

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalw("load config", "path", path, "err", err)
	}

	drv, err := udp.Listen(*listen)
	if err != nil {
		logger.Fatalw("listen", "addr", *listen, "err", err)
	}

	id := *clientID
	if id == 0 {
		id = uint64(os.Getpid())
	}

	disp := dispatch.New(*tickInterval)
	var tr *transport.Transport
	tr = transport.New(drv, cfg, logger, id, disp, func(r *rpc.ServerRpc) {
		echo := append([]byte(nil), r.Request.Bytes()...)
		if err := tr.SendReply(r.ID, echo); err != nil {
			logger.Warnw("send reply", "rpc", r.ID.String(), "err", err)
		}
	})

	var adminSrv *http.Server
	if *adminAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
			ticks := disp.Ticks()
			var snap transport.Snapshot
			disp.Guard(func() { snap = tr.Snapshot(ticks) })
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snap) //nolint:errcheck // best-effort, client will see a truncated body on failure
		})
		adminSrv = &http.Server{Addr: *adminAddr, Handler: mux}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warnw("admin server stopped", "err", err)
			}
		}()
		logger.Infow("admin snapshot endpoint listening", "addr", *adminAddr)
	}

	var resolver *locator.EtcdResolver
	if *registerName != "" {
		endpoints := strings.Split(*etcdEndpoints, ",")
		if *etcdEndpoints == "" {
			logger.Fatalw("register-name requires -etcd-endpoints")
		}
		resolver, err = locator.NewEtcdResolver(endpoints)
		if err != nil {
			logger.Fatalw("connect to etcd", "endpoints", endpoints, "err", err)
		}
		if err := resolver.Register(context.Background(), *registerName, drv.LocalAddress().String()); err != nil {
			logger.Fatalw("register in etcd", "name", *registerName, "err", err)
		}
		logger.Infow("registered", "name", *registerName, "addr", drv.LocalAddress().String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("shutdown signal received")
		cancel()
	}()

	logger.Infow("transportd listening", "addr", drv.LocalAddress().String(), "client_id", id)
	if err := disp.Run(ctx); err != nil && err != context.Canceled {
		logger.Warnw("dispatch loop stopped", "err", err)
	}

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, tr.Close())
	shutdownErr = multierr.Append(shutdownErr, drv.Close())
	if resolver != nil {
		shutdownErr = multierr.Append(shutdownErr, resolver.Close())
	}
	if adminSrv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		shutdownErr = multierr.Append(shutdownErr, adminSrv.Shutdown(shutCtx))
		shutCancel()
	}
	if shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "transportd: shutdown: %v\n", shutdownErr)
		os.Exit(1)
	}
}
