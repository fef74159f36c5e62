package handlebars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/require"
)

// moduleEnv loads emitted modules into a JavaScript VM backed by the stub
// runtime in testdata/runtime.js.
type moduleEnv struct {
	vm       *goja.Runtime
	runtime  *goja.Object
	imported []string
}

func newModuleEnv(t *testing.T) *moduleEnv {
	t.Helper()

	src, err := os.ReadFile(filepath.Join("testdata", "runtime.js"))
	require.NoError(t, err)

	vm := goja.New()
	_, err = vm.RunScript("runtime.js", string(src))
	require.NoError(t, err)

	return &moduleEnv{
		vm:      vm,
		runtime: vm.Get("HandlebarsStub").ToObject(vm),
	}
}

// load evaluates an emitted ES module and returns its default export. The
// module is converted to CommonJS with esbuild first.
func (e *moduleEnv) load(t *testing.T, fileID, code string) goja.Callable {
	t.Helper()

	res := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2015,
		Sourcefile: fileID,
	})
	require.Empty(t, res.Errors, "esbuild rejected emitted module: %v", res.Errors)

	module := e.vm.NewObject()
	exports := e.vm.NewObject()
	require.NoError(t, module.Set("exports", exports))

	wrapper, err := e.vm.RunScript(fileID, "(function(module, exports, require) {\n"+string(res.Code)+"\n})")
	require.NoError(t, err)
	factory, ok := goja.AssertFunction(wrapper)
	require.True(t, ok)

	requireFn := e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		e.imported = append(e.imported, call.Argument(0).String())
		return e.runtime
	})

	_, err = factory(goja.Undefined(), module, exports, requireFn)
	require.NoError(t, err)

	def := module.Get("exports").ToObject(e.vm).Get("default")
	render, ok := goja.AssertFunction(def)
	require.True(t, ok, "default export is not a function")

	return render
}

// render calls a loaded render function with data given as a JSON literal.
func (e *moduleEnv) render(t *testing.T, fn goja.Callable, dataJSON string) string {
	t.Helper()

	data, err := e.vm.RunString("(" + dataJSON + ")")
	require.NoError(t, err)

	out, err := fn(goja.Undefined(), data)
	require.NoError(t, err)

	return out.String()
}

// registrations returns the partial names registered so far, in order.
func (e *moduleEnv) registrations() []string {
	raw := e.runtime.Get("registrations").Export()
	items, _ := raw.([]interface{})

	names := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}

	return names
}
