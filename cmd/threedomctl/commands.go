package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine"
	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/config"
	"github.com/Carmen-Shannon/oxy-threedom/engine/execution_context"
	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/sandbox"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
)

// settleQuiet is how long no mutation may arrive before a run counts as settled.
const settleQuiet = 250 * time.Millisecond

// progress logs load progress of url at verbosity 1.
func progress(url string) loader.ProgressFunc {
	return func(fraction float64) {
		glog.V(1).Infof("[Loader] %s: %3.0f%%", url, fraction*100)
	}
}

func inspect(opts docopt.Opts, cfg config.Config) error {
	url, _ := opts.String("<model>")
	e := engine.NewEngine(engine.WithConfig(cfg))
	defer e.Quit()
	m, err := e.LoadModel(context.Background(), url, progress(url))
	if err != nil {
		return err
	}
	defer m.Release()

	out, err := json.MarshalIndent(m.Graft.Model().ToJSON(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func run(opts docopt.Opts, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modelURL, _ := opts.String("<model>")
	scriptPath, _ := opts.String("<script>")
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	caps, err := cfg.CapabilitySet()
	if list, lerr := opts.String("--capabilities"); lerr == nil {
		caps, err = capability.Parse(list)
	}
	if err != nil {
		return err
	}

	e := engine.NewEngine(engine.WithConfig(cfg), engine.WithProfiling(true))
	defer e.Quit()
	m, err := e.LoadModel(ctx, modelURL, progress(modelURL))
	if err != nil {
		return err
	}
	defer m.Release()
	graft := m.Graft

	transport, err := newTransport(opts, cfg)
	if err != nil {
		return err
	}
	ec, err := e.NewExecutionContext(
		execution_context.WithCapabilities(caps),
		execution_context.WithTransport(transport),
	)
	if err != nil {
		return err
	}

	ec.OnMessage(func(data json.RawMessage) { fmt.Println(string(data)) })
	var scriptErrs []error
	var errMu sync.Mutex
	ec.OnError(func(err error) {
		errMu.Lock()
		scriptErrs = append(scriptErrs, err)
		errMu.Unlock()
		fmt.Fprintln(os.Stderr, err)
	})

	activity := make(chan struct{}, 1)
	defer graft.AddMutationListener(func(facade.MutationEvent) {
		select {
		case activity <- struct{}{}:
		default:
		}
	})()

	if err := ec.ChangeModel(ctx, graft); err != nil {
		return err
	}
	if err := ec.Eval(ctx, string(source)); err != nil {
		return err
	}
	if err := settle(ctx, activity, time.Duration(cfg.Context.MutationTimeout)); err != nil {
		return err
	}

	applied, failed := e.Profiler().Totals()
	glog.Infof("[Context] %s: %d mutations applied, %d failed", ec.ID(), applied, failed)

	if out, oerr := opts.String("--out"); oerr == nil {
		data, err := graft.Export()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
	}

	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(scriptErrs...)
}

// settle waits until no mutation arrived for settleQuiet, or until limit passed.
func settle(ctx context.Context, activity <-chan struct{}, limit time.Duration) error {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	quiet := time.NewTimer(settleQuiet)
	defer quiet.Stop()
	for {
		select {
		case <-activity:
			if !quiet.Stop() {
				<-quiet.C
			}
			quiet.Reset(settleQuiet)
		case <-quiet.C:
			return nil
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func newTransport(opts docopt.Opts, cfg config.Config) (execution_context.Transport, error) {
	url := cfg.Context.SandboxURL
	if remote, err := opts.String("--remote"); err == nil {
		url = remote
	} else if cfg.Context.Transport == config.TransportWorker {
		return execution_context.NewWorkerTransport(
			sandbox.WithWorkerMutationTimeout(time.Duration(cfg.Context.MutationTimeout)),
			sandbox.WithFetchTimeout(time.Duration(cfg.Sandbox.FetchTimeout)),
		), nil
	}
	if cfg.Context.GrantSecret == "" {
		return nil, errors.New("remote sandbox needs context.grant_secret in the config")
	}
	return execution_context.NewWebSocketTransport(url, []byte(cfg.Context.GrantSecret), time.Duration(cfg.Context.GrantTTL)), nil
}

func pack(opts docopt.Opts) error {
	in, _ := opts.String("<gltf>")
	out, _ := opts.String("<out>")
	jsonData, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	var bin []byte
	if binPath, berr := opts.String("--bin"); berr == nil {
		if bin, err = os.ReadFile(binPath); err != nil {
			return err
		}
	}
	data, err := gltf.PackGLB(jsonData, bin)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

// unpack writes <name>.gltf and, when the container has one, <name>.bin. The first
// buffer is pointed at the .bin file.
func unpack(opts docopt.Opts) error {
	in, _ := opts.String("<glb>")
	outDir, _ := opts.String("<outdir>")
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	glb, err := gltf.UnpackGLB(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	jsonData := glb.JSON
	if len(glb.Binary) > 0 {
		binName := name + ".bin"
		if err := os.WriteFile(filepath.Join(outDir, binName), glb.Binary, 0o644); err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(glb.JSON, &doc); err != nil {
			return err
		}
		if buffers, ok := doc["buffers"].([]any); ok && len(buffers) > 0 {
			if first, ok := buffers[0].(map[string]any); ok {
				first["uri"] = binName
			}
		}
		if jsonData, err = json.MarshalIndent(doc, "", "  "); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(outDir, name+".gltf"), jsonData, 0o644)
}

func serve(opts docopt.Opts, cfg config.Config) error {
	addr := cfg.Sandbox.ListenAddr
	if a, err := opts.String("--addr"); err == nil {
		addr = a
	}
	scriptPath := cfg.Sandbox.StartupScript
	if s, err := opts.String("--script"); err == nil {
		scriptPath = s
	}
	if cfg.Context.GrantSecret == "" {
		return errors.New("serve needs context.grant_secret in the config")
	}

	var startup string
	if scriptPath != "" {
		data, err := os.ReadFile(scriptPath)
		if err != nil {
			return fmt.Errorf("failed to read startup script: %w", err)
		}
		startup = string(data)
	}

	srv := sandbox.NewServer([]byte(cfg.Context.GrantSecret),
		sandbox.WithServerStartupScript(startup),
		sandbox.WithWorkerOptions(
			sandbox.WithWorkerMutationTimeout(time.Duration(cfg.Context.MutationTimeout)),
			sandbox.WithFetchTimeout(time.Duration(cfg.Sandbox.FetchTimeout)),
		),
	)
	httpServer := &http.Server{Addr: addr, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Shutdown()
		_ = httpServer.Close()
	}()

	glog.Infof("[Sandbox] serving on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
