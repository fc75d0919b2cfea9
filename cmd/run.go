package cmd

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrisuehlinger/hostdom/bridge"
	"github.com/chrisuehlinger/hostdom/config"
	"github.com/chrisuehlinger/hostdom/dom"
	"github.com/chrisuehlinger/hostdom/host"
	"github.com/chrisuehlinger/hostdom/js"
	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//go:embed scripts/lengthcheck.js
var lengthCheckScript string

var errLocalHostOnly = errors.New("needs the in-process host")

type runOptions struct {
	scripts   []string
	click     string
	focus     string
	keys      string
	dispatch  string
	target    string
	print     bool
	noBuiltin bool
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run PAGE.html",
		Short: "Run scripts against a page and simulate input",
		Long: `Run loads PAGE.html, runs the built-in length check, the page's
<script src> files and any --script files. It then clicks the first
element matching --click, types --keys into the element matching --focus
(or the clicked input) and dispatches --dispatch on every element
matching --target. Script and event failures are reported together.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.keys != "" && opts.focus == "" && opts.click == "" {
				return errors.New("--keys requires --focus or --click")
			}
			if opts.dispatch != "" && opts.target == "" {
				return errors.New("--dispatch requires --target")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if opts.noBuiltin {
				cfg.Script.Builtin = false
			}
			return runPage(cmd.Context(), &cfg, a.logger, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.scripts, "script", "s", nil, "script file to run after the page scripts (repeatable)")
	f.StringVar(&opts.click, "click", "", "selector of the element to click before typing")
	f.StringVar(&opts.focus, "focus", "", "selector of the element to type into")
	f.StringVar(&opts.keys, "keys", "", "text to type into the focused element")
	f.StringVar(&opts.dispatch, "dispatch", "", "event type to dispatch from script")
	f.StringVar(&opts.target, "target", "", "selector of the elements receiving --dispatch")
	f.String("host-cmd", "", "command of a host speaking the stream protocol on stdin/stdout")
	f.BoolVarP(&opts.print, "print", "p", false, "print the resulting document")
	f.BoolVar(&opts.noBuiltin, "no-builtin", false, "do not run the built-in length check")
	return cmd
}

func runPage(ctx context.Context, cfg *config.Config, logger *zap.Logger, page string, opts runOptions, stdout, stderr io.Writer) error {
	data, err := os.ReadFile(page)
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	doc, err := host.Parse(bytes.NewReader(data),
		host.WithLogOutput(stdout),
		host.WithLogger(logger.Named("host")),
	)
	if err != nil {
		return err
	}

	var h bridge.Host = doc
	local := true
	if cfg.Host.Command != "" {
		proc, err := startHostProcess(ctx, cfg.Host.Command, stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := proc.Close(); err != nil {
				logger.Warn("host process exited", zap.Error(err))
			}
		}()
		h, local = proc, false
	}

	session := dom.NewSession(h, dom.WithLogger(logger.Named("dom")))
	rt := js.NewRuntime(session)
	if err := rt.Set("LENGTH_LIMIT", cfg.Script.LengthLimit); err != nil {
		return err
	}
	logger = logger.With(zap.String("session", session.ID()), zap.String("page", page))

	var result *multierror.Error
	exec := func(code, src string) {
		logger.Debug("running script", zap.String("src", src))
		if err := rt.ExecuteScript(code, src); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", src, err))
		}
	}

	if cfg.Script.Builtin {
		exec(lengthCheckScript, "lengthcheck.js")
	}
	for _, src := range doc.Scripts() {
		path, ok := pageScriptPath(page, src)
		if !ok {
			logger.Warn("skipping remote script", zap.String("src", src))
			continue
		}
		code, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable script", zap.String("src", src), zap.Error(err))
			continue
		}
		exec(string(code), src)
	}
	for _, path := range opts.scripts {
		code, err := os.ReadFile(path)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("read script: %w", err))
			continue
		}
		exec(string(code), filepath.Base(path))
	}

	if opts.click != "" || opts.focus != "" {
		if err := simulateInput(doc, rt, local, opts); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if opts.dispatch != "" {
		if err := dispatchFromScript(rt, opts.target, opts.dispatch); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if opts.print {
		if !local {
			result = multierror.Append(result, fmt.Errorf("print: %w", errLocalHostOnly))
		} else if err := doc.Render(stdout); err != nil {
			result = multierror.Append(result, fmt.Errorf("print: %w", err))
		} else {
			fmt.Fprintln(stdout)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error("run finished with errors", zap.Int("errors", len(result.Errors)))
		return err
	}
	logger.Info("run finished")
	return nil
}

// pageScriptPath resolves a script src relative to the page. Sources with
// a URL scheme are not loaded.
func pageScriptPath(page, src string) (string, bool) {
	if strings.Contains(src, "://") || strings.HasPrefix(src, "//") {
		return "", false
	}
	src = strings.TrimPrefix(src, "file:")
	return filepath.Join(filepath.Dir(page), filepath.FromSlash(src)), true
}

// simulateInput clicks, focuses and types in that order. Clicking an input
// focuses it and clears its value; clicking anything else drops the focus.
func simulateInput(doc *host.Document, rt *js.Runtime, local bool, opts runOptions) error {
	if !local {
		return fmt.Errorf("input: %w", errLocalHostOnly)
	}
	doc.OnEvent(rt.DispatchEvent)

	if opts.click != "" {
		handles, err := bridge.New(doc).QuerySelectorAll(opts.click)
		if err != nil {
			return fmt.Errorf("click: %w", err)
		}
		if len(handles) == 0 {
			return fmt.Errorf("click: no element matches %q", opts.click)
		}
		if err := doc.Click(handles[0]); err != nil {
			return err
		}
	}
	if opts.focus != "" {
		if _, err := doc.Focus(opts.focus); err != nil {
			return err
		}
	}
	if opts.keys == "" {
		return nil
	}
	if _, ok := doc.Focused(); !ok {
		return fmt.Errorf("type: %q does not take focus", opts.click)
	}
	return doc.Type(opts.keys)
}

// dispatchFromScript dispatches eventType on every element matching
// selector from inside the runtime, as a page script would.
func dispatchFromScript(rt *js.Runtime, selector, eventType string) error {
	sel, err := jsoniter.MarshalToString(selector)
	if err != nil {
		return err
	}
	typ, err := jsoniter.MarshalToString(eventType)
	if err != nil {
		return err
	}
	code := fmt.Sprintf(`(function() {
	var nodes = document.querySelectorAll(%s);
	for (var i = 0; i < nodes.length; i++) {
		nodes[i].dispatchEvent(%s);
	}
})();`, sel, typ)

	if _, err := rt.Execute(code); err != nil {
		return fmt.Errorf("dispatch %s on %s: %w", eventType, selector, err)
	}
	return nil
}
