package modules

import (
	"github.com/wudi/esprel/values"
)

// GetModuleNamespace implements ECMA-262 §16.2.1.10: build (once) the
// module namespace exotic object. Every resolvable export becomes an
// accessor property whose getter reads the source module's environment
// at access time, so namespace reads observe live bindings exactly the
// way direct imports do; ambiguous star exports are silently omitted
// (ECMA-262 §16.2.1.10 step 7).
func (m *SourceTextModule) GetModuleNamespace() *values.Object {
	if m.Namespace != nil {
		return m.Namespace
	}

	ns := values.NewObject(nil)
	ns.Class = "Module"
	ns.Extensible = false
	m.Namespace = ns

	for _, name := range m.GetExportedNames(nil) {
		resolution, err := m.ResolveExport(name, nil)
		if err != nil || resolution == nil {
			continue
		}
		if resolution.Namespace {
			nested := resolution.Module.GetModuleNamespace()
			ns.DefineOwnProperty(values.StringKey(name), values.PropertyDescriptor{
				Value: values.ObjectValue(nested), Writable: false, Enumerable: true,
			})
			continue
		}
		src := resolution.Module
		binding := resolution.BindingName
		getter := nativeFn(m.Realm, func(values.Value, []values.Value) (values.Value, error) {
			return src.Environment.GetBindingValue(binding)
		})
		ns.DefineOwnProperty(values.StringKey(name), values.PropertyDescriptor{
			IsAccessor: true, Get: getter, Enumerable: true,
		})
	}
	return ns
}
