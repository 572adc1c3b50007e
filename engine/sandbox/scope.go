package sandbox

import (
	"fmt"
	"maps"
	"path"
	"reflect"
	"strings"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"

	"github.com/golang/glog"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// PackageName is the name scripts use to reach the sandbox API, e.g. threedom.Model().
const PackageName = "threedom"

// allowedStdlib lists the standard packages visible to scripts.
var allowedStdlib = []string{
	"bytes",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode/utf8",
}

// deniedStubs builds the replacement bound in place of a gated global when its
// capability is missing. Each stub keeps the signature of the API it replaces.
var deniedStubs = map[string]func(err error) any{
	capability.APIPostMessage: func(err error) any {
		return func(any) error { return err }
	},
	capability.APIFetch: func(err error) any {
		return func(string) ([]byte, error) { return nil, err }
	},
}

// scope returns every package visible to scripts of the worker.
func (w *Worker) scope() interp.Exports {
	symbols := map[string]reflect.Value{
		"Model":            reflect.ValueOf(w.model),
		"ElementsOfType":   reflect.ValueOf(w.elementsOfType),
		"AddEventListener": reflect.ValueOf(w.addEventListener),
		"PostMessage":      reflect.ValueOf(w.postMessage),
		"Fetch":            reflect.ValueOf(w.fetch),
		"Log":              reflect.ValueOf(w.log),

		"EventModelChange": reflect.ValueOf(EventModelChange),
		"EventMessage":     reflect.ValueOf(EventMessage),

		"Event":                reflect.ValueOf((*Event)(nil)),
		"Material":             reflect.ValueOf((*Material)(nil)),
		"PBRMetallicRoughness": reflect.ValueOf((*PBRMetallicRoughness)(nil)),
		"TextureInfo":          reflect.ValueOf((*TextureInfo)(nil)),
		"Texture":              reflect.ValueOf((*Texture)(nil)),
		"Sampler":              reflect.ValueOf((*Sampler)(nil)),
		"Image":                reflect.ValueOf((*Image)(nil)),
	}
	for api, stub := range deniedStubs {
		if err := w.caps.CheckAPI(api); err != nil {
			symbols[api] = reflect.ValueOf(stub(err))
		}
	}

	exports := interp.Exports{PackageName + "/" + PackageName: symbols}
	for _, pkg := range allowedStdlib {
		key := pkg + "/" + path.Base(pkg)
		if syms, ok := stdlib.Symbols[key]; ok {
			exports[key] = syms
		}
	}
	if syms, ok := exports["fmt/fmt"]; ok {
		exports["fmt/fmt"] = w.printSymbols(syms)
	}
	return exports
}

// printSymbols rebinds the fmt print functions to the worker output.
func (w *Worker) printSymbols(syms map[string]reflect.Value) map[string]reflect.Value {
	out := maps.Clone(syms)
	out["Print"] = reflect.ValueOf(func(a ...any) (int, error) { return fmt.Fprint(w.output, a...) })
	out["Printf"] = reflect.ValueOf(func(format string, a ...any) (int, error) { return fmt.Fprintf(w.output, format, a...) })
	out["Println"] = reflect.ValueOf(func(a ...any) (int, error) { return fmt.Fprintln(w.output, a...) })
	return out
}

func (w *Worker) model() *Model {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.kernel == nil {
		return nil
	}
	return w.kernel.Model()
}

// elementsOfType lists the elements of the current model with the given type name.
func (w *Worker) elementsOfType(elementType string) []any {
	w.mu.Lock()
	kernel := w.kernel
	w.mu.Unlock()
	if kernel == nil {
		return nil
	}
	return kernel.ElementsOfType(elementType)
}

func (w *Worker) addEventListener(eventType string, fn func(Event)) error {
	switch eventType {
	case EventMessage:
		if err := w.caps.CheckAPI(capability.APIMessageListener); err != nil {
			return err
		}
	case EventModelChange:
	default:
		return fmt.Errorf("%q: %w", eventType, errUnknownEvent)
	}
	w.mu.Lock()
	w.listeners[eventType] = append(w.listeners[eventType], fn)
	w.mu.Unlock()
	return nil
}

func (w *Worker) postMessage(data any) error {
	w.mu.Lock()
	port := w.port
	w.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}
	msg, err := protocol.NewUserMessage(data)
	if err != nil {
		return err
	}
	return port.PostMessage(msg)
}

func (w *Worker) fetch(location string) ([]byte, error) {
	return w.get(location)
}

func (w *Worker) log(args ...any) {
	glog.Infof("[Sandbox] %s: %s", w.id, strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}
